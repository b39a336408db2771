package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vdavid/fieldinbox/internal/api"
	"github.com/vdavid/fieldinbox/internal/auth"
	"github.com/vdavid/fieldinbox/internal/config"
	"github.com/vdavid/fieldinbox/internal/crypto"
	"github.com/vdavid/fieldinbox/internal/db"
	"github.com/vdavid/fieldinbox/internal/imap"
	"github.com/vdavid/fieldinbox/internal/metrics"
	"github.com/vdavid/fieldinbox/internal/outbound"
	"github.com/vdavid/fieldinbox/internal/realtime"
	ws "github.com/vdavid/fieldinbox/internal/websocket"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewConnection(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.CloseConnection(pool)

	log.Printf("Successfully connected to database")

	if err := run(ctx, cfg, pool); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	log.Printf("Server stopped")
}

// app holds the long-running parts of the server.
type app struct {
	handler  http.Handler
	listener *realtime.Listener
	imap     *imap.Service
	ws       *api.WebSocketHandler
}

// newApp wires every component against pool and registers metrics with reg.
func newApp(cfg *config.Config, pool *pgxpool.Pool, reg *prometheus.Registry) (*app, error) {
	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	useTLS := cfg.Environment != "test"
	store := db.NewStore(pool)
	imapService := imap.NewService(pool, imap.NewPool(useTLS), encryptor)
	mailer := outbound.NewMailer(pool, encryptor, useTLS)
	listener := realtime.NewListener(pool, m)
	hub := ws.NewHub(cfg.MaxConnectionsPerMember)

	var idle api.IdleStarter
	if cfg.IdleEnabled {
		idle = imapService
	}

	resolve := auth.DBResolver(pool)
	deps := api.NewCollaborators(store, imapService, mailer, listener)

	authHandler := api.NewAuthHandler(pool)
	mailboxHandler := api.NewMailboxHandler(pool, encryptor)
	communicationsHandler := api.NewCommunicationsHandler(store)
	wsHandler := api.NewWebSocketHandler(resolve, hub, deps, m, idle)

	mux := http.NewServeMux()

	mux.HandleFunc("/", handleRoot)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	mux.Handle("/api/v1/auth/status", auth.RequireAuth(resolve, http.HandlerFunc(authHandler.GetAuthStatus)))
	mux.Handle("/api/v1/mailbox", auth.RequireAuth(resolve, mailboxHandler))
	mux.Handle("/api/v1/communications", auth.RequireAuth(resolve, http.HandlerFunc(communicationsHandler.GetCommunications)))
	// The websocket handler authenticates via query parameter
	// (browsers can't set headers on websocket connections).
	mux.Handle("/api/v1/ws", http.HandlerFunc(wsHandler.Handle))

	return &app{
		handler:  mux,
		listener: listener,
		imap:     imapService,
		ws:       wsHandler,
	}, nil
}

// run serves until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
	a, err := newApp(cfg, pool, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer a.imap.Close()
	defer a.ws.Shutdown()

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.listener.Run(gctx)
	})

	if cfg.IdleEnabled {
		g.Go(func() error {
			catchUp(gctx, pool, a.imap)
			return nil
		})
	}

	g.Go(func() error {
		log.Printf("Field Inbox server starting on %s (environment: %s)", server.Addr, cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Printf("Shutting down HTTP server")
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// catchUp ingests mail that arrived while the server was down. Failures are
// per mailbox and only logged.
func catchUp(ctx context.Context, pool *pgxpool.Pool, service *imap.Service) {
	mailboxes, err := db.ListMailboxes(ctx, pool)
	if err != nil {
		log.Printf("Server: failed to list mailboxes for catch-up: %v", err)
		return
	}

	for _, mailbox := range mailboxes {
		if ctx.Err() != nil {
			return
		}
		count, err := service.SyncInbox(ctx, mailbox.MemberID)
		if err != nil {
			log.Printf("Server: catch-up sync failed for member %s: %v", mailbox.MemberID, err)
			continue
		}
		if count > 0 {
			log.Printf("Server: caught up %d messages for member %s", count, mailbox.MemberID)
		}
	}
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Field Inbox API is running")
}
