package imap

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/emersion/go-imap/client"
)

const (
	// workerIdleTimeout is how long an unused worker connection stays open.
	workerIdleTimeout = 10 * time.Minute
	// healthCheckThreshold is the idle time after which a NOOP runs before reuse.
	healthCheckThreshold = 1 * time.Minute
	cleanupInterval      = 1 * time.Minute
)

// Pool keeps IMAP connections per team member: one worker connection for
// on-demand fetches and one listener connection for IDLE.
type Pool struct {
	mu        sync.Mutex
	workers   map[string]*lockedClient
	listeners map[string]*lockedClient
	useTLS    bool
	cancel    context.CancelFunc
}

// NewPool creates a pool and starts its idle-connection cleanup.
func NewPool(useTLS bool) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		workers:   make(map[string]*lockedClient),
		listeners: make(map[string]*lockedClient),
		useTLS:    useTLS,
		cancel:    cancel,
	}
	go p.cleanupLoop(ctx)
	return p
}

// WithWorker runs fn on memberID's worker connection, connecting first if
// needed. A connection that fails health checks is replaced once.
func (p *Pool) WithWorker(memberID string, creds Credentials, fn func(*client.Client) error) error {
	w, err := p.acquire(p.workers, memberID, creds)
	if err != nil {
		return err
	}
	defer w.mu.Unlock()

	w.lastUsed = time.Now()
	return fn(w.client)
}

// Listener returns memberID's listener connection, locked. The caller must
// unlock it.
func (p *Pool) Listener(memberID string, creds Credentials) (*lockedClient, error) {
	return p.acquire(p.listeners, memberID, creds)
}

// acquire returns the locked connection of memberID in set, replacing a dead one.
func (p *Pool) acquire(set map[string]*lockedClient, memberID string, creds Credentials) (*lockedClient, error) {
	p.mu.Lock()
	existing := set[memberID]
	p.mu.Unlock()

	if existing != nil {
		existing.mu.Lock()
		alive := existing.healthy()
		if alive && time.Since(existing.lastUsed) > healthCheckThreshold {
			alive = existing.client.Noop() == nil
		}
		if alive {
			existing.lastUsed = time.Now()
			return existing, nil
		}
		existing.logout()
		existing.mu.Unlock()
		p.remove(set, memberID, existing)
	}

	c, err := connect(creds, p.useTLS)
	if err != nil {
		return nil, err
	}
	fresh := &lockedClient{client: c, lastUsed: time.Now()}
	fresh.mu.Lock()

	p.mu.Lock()
	if other := set[memberID]; other != nil {
		// Lost a race with another caller; keep theirs.
		p.mu.Unlock()
		fresh.logout()
		other.mu.Lock()
		return other, nil
	}
	set[memberID] = fresh
	p.mu.Unlock()

	return fresh, nil
}

func (p *Pool) remove(set map[string]*lockedClient, memberID string, c *lockedClient) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if set[memberID] == c {
		delete(set, memberID)
	}
}

// Forget drops the listener connection of memberID, e.g. after IDLE failed.
func (p *Pool) Forget(memberID string) {
	p.mu.Lock()
	listener := p.listeners[memberID]
	delete(p.listeners, memberID)
	p.mu.Unlock()

	if listener != nil {
		listener.logout()
	}
}

func (p *Pool) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.closeIdleWorkers()
		}
	}
}

// closeIdleWorkers logs out worker connections unused for workerIdleTimeout.
// Connections in use are skipped.
func (p *Pool) closeIdleWorkers() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for memberID, w := range p.workers {
		if !w.mu.TryLock() {
			continue
		}
		if time.Since(w.lastUsed) > workerIdleTimeout {
			w.logout()
			delete(p.workers, memberID)
		}
		w.mu.Unlock()
	}
}

// Close logs out every connection and stops the cleanup loop.
func (p *Pool) Close() {
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	for memberID, w := range p.workers {
		if err := w.client.Logout(); err != nil {
			log.Printf("IMAP: failed to logout worker for member %s: %v", memberID, err)
		}
		delete(p.workers, memberID)
	}
	for memberID, l := range p.listeners {
		_ = l.client.Logout()
		delete(p.listeners, memberID)
	}
}
