package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/fieldinbox/internal/inbox"
	"github.com/vdavid/fieldinbox/internal/metrics"
	"github.com/vdavid/fieldinbox/internal/models"
)

// Channel is the Postgres notification channel fed by the communications insert trigger.
const Channel = "communication_inserts"

const (
	reconnectDelay = 2 * time.Second
	// queueSize bounds the events waiting for one slow subscriber.
	queueSize = 64
)

// ErrClosed is returned when subscribing to a stopped listener.
var ErrClosed = errors.New("realtime listener closed")

// Listener receives row-insert notifications on a dedicated connection and
// fans them out to subscriptions. The only server-side predicate is equality
// on the company id.
type Listener struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics

	mu     sync.RWMutex
	subs   map[*subscription]struct{}
	closed bool

	ready     chan struct{}
	readyOnce sync.Once
}

var _ inbox.Subscriber = (*Listener)(nil)

// NewListener creates a listener. Nothing is received until Run is called.
func NewListener(pool *pgxpool.Pool, m *metrics.Metrics) *Listener {
	return &Listener{
		pool:    pool,
		metrics: m,
		subs:    make(map[*subscription]struct{}),
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the first LISTEN succeeded.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

// Run listens until ctx is canceled, reconnecting after connection errors.
// On return every subscription is closed.
func (l *Listener) Run(ctx context.Context) error {
	defer l.shutdown()

	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		log.Printf("Realtime: listener error, reconnecting: %v", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{Channel}.Sanitize()); err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	log.Printf("Realtime: listening on %s", Channel)
	l.readyOnce.Do(func() { close(l.ready) })

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			// The session is still subscribed; do not hand it back to the pool.
			_ = conn.Conn().Close(context.Background())
			return err
		}
		l.dispatch(notification.Payload)
	}
}

// dispatch decodes one payload and queues it for every subscription of the
// row's company and table.
func (l *Listener) dispatch(payload string) {
	var row models.RowInsert
	if err := json.Unmarshal([]byte(payload), &row); err != nil {
		log.Printf("Realtime: malformed payload: %v", err)
		l.metrics.Realtime("malformed")
		return
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	for sub := range l.subs {
		if !inbox.CoarseMatch(row, sub.companyID) || (sub.table != "" && sub.table != row.Table) {
			continue
		}
		select {
		case sub.events <- row:
		default:
			log.Printf("Realtime: dropping event for slow subscription %s", sub.name)
			l.metrics.Realtime("dropped")
		}
	}
}

// Subscribe registers handler for inserts into table of companyID. Events are
// delivered one at a time, in arrival order, on the subscription's goroutine.
func (l *Listener) Subscribe(companyID, name, table string, handler func(models.RowInsert)) (inbox.Subscription, error) {
	sub := &subscription{
		listener:  l,
		companyID: companyID,
		name:      name,
		table:     table,
		events:    make(chan models.RowInsert, queueSize),
		done:      make(chan struct{}),
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	l.subs[sub] = struct{}{}
	l.mu.Unlock()

	go sub.deliver(handler)
	return sub, nil
}

func (l *Listener) unsubscribe(sub *subscription) {
	l.mu.Lock()
	delete(l.subs, sub)
	l.mu.Unlock()
}

func (l *Listener) shutdown() {
	l.mu.Lock()
	subs := l.subs
	l.subs = make(map[*subscription]struct{})
	l.closed = true
	l.mu.Unlock()

	for sub := range subs {
		sub.stop()
	}
}

type subscription struct {
	listener  *Listener
	companyID string
	name      string
	table     string
	events    chan models.RowInsert
	done      chan struct{}
	once      sync.Once
}

func (s *subscription) deliver(handler func(models.RowInsert)) {
	for {
		select {
		case <-s.done:
			return
		case row := <-s.events:
			handler(row)
		}
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// Close stops delivery. Events already queued are discarded.
func (s *subscription) Close() error {
	s.listener.unsubscribe(s)
	s.stop()
	return nil
}
