package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coomunity/ayni/internal/api"
	"github.com/coomunity/ayni/internal/app/economy"
	"github.com/coomunity/ayni/internal/infra/observability"
	"github.com/coomunity/ayni/internal/infra/sqlite"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// Daemon owns the store, the economy service and the HTTP server.
type Daemon struct {
	cfg    Config
	log    *slog.Logger
	db     *sqlite.DB
	tracer *observability.Tracer
	feed   *api.FeedHub
	svc    *economy.Service
}

// Open creates the data directory, opens the store and builds the service.
func Open(cfg Config, log *slog.Logger) (*Daemon, error) {
	if err := os.MkdirAll(cfg.Database.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := sqlite.Open(cfg.Database.Dir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	tcfg := observability.DefaultTracerConfig()
	tcfg.Enabled = cfg.Metrics.Enabled
	if cfg.Metrics.TraceBuffer > 0 {
		tcfg.MaxSpans = cfg.Metrics.TraceBuffer
	}
	tracer := observability.NewTracer(tcfg)
	feed := api.NewFeedHub()

	svc := economy.New(db, cfg.EconomyConfig(),
		economy.WithLogger(log),
		economy.WithTracer(tracer),
		economy.WithPublisher(feed),
	)
	log.Debug("store opened", "path", db.Path())
	return &Daemon{cfg: cfg, log: log, db: db, tracer: tracer, feed: feed, svc: svc}, nil
}

// Service returns the economy service.
func (d *Daemon) Service() *economy.Service { return d.svc }

// Close releases the store.
func (d *Daemon) Close() error { return d.db.Close() }

// Handler builds the HTTP handler.
func (d *Daemon) Handler() http.Handler {
	srv := api.NewServer(d.svc, d.db)
	srv.SetFeed(d.feed)
	srv.SetLogger(d.log)
	if d.cfg.Metrics.Enabled {
		srv.EnableMetrics()
		srv.SetTracer(d.tracer)
	}
	return srv.Handler()
}

// Run listens on the configured address and serves until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", d.cfg.Addr(), err)
	}
	return d.Serve(ctx, ln)
}

// Serve serves HTTP on ln until ctx is done, then shuts down gracefully.
func (d *Daemon) Serve(ctx context.Context, ln net.Listener) error {
	httpSrv := &http.Server{
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.log.Info("api listening", "addr", ln.Addr().String(), "metrics", d.cfg.Metrics.Enabled)
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		d.log.Info("api shutting down")
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
