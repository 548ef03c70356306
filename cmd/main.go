package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sadwik-learner/feedsync/internal/adapters/docstore"
	"github.com/sadwik-learner/feedsync/internal/adapters/docstore/memstore"
	"github.com/sadwik-learner/feedsync/internal/adapters/docstore/pgstore"
	"github.com/sadwik-learner/feedsync/internal/adapters/http/api"
	"github.com/sadwik-learner/feedsync/internal/auth"
	"github.com/sadwik-learner/feedsync/internal/config"
	"github.com/sadwik-learner/feedsync/internal/engine"
	"github.com/sadwik-learner/feedsync/pkg/logger"
)

// HTTP server timeout constants. WriteTimeout stays zero so websocket
// streams are not cut off by the server.
const (
	readTimeout       = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// Disable default Go metrics collection; the custom registry carries
	// the engine's own metrics.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Error(ctx, "failed to open store", logger.Error(err))
		return
	}
	defer closeStore()

	eng := engine.New(store,
		engine.WithLogger(log),
		engine.WithHandleBuffer(cfg.HandleBuffer),
		engine.WithMatchWindow(time.Duration(cfg.MatchWindowMS)*time.Millisecond),
		engine.WithReopenBackoff(
			time.Duration(cfg.ReopenBackoffMS)*time.Millisecond,
			time.Duration(cfg.ReopenBackoffMaxMS)*time.Millisecond,
		),
	)
	if err := eng.Start(ctx); err != nil {
		log.Error(ctx, "failed to start engine", logger.Error(err))
		return
	}
	defer eng.Stop()

	var verifierOpts []auth.Option
	if cfg.AuthSecret != "" {
		verifierOpts = append(verifierOpts, auth.WithSecret([]byte(cfg.AuthSecret)))
	}
	verifier := auth.NewVerifier(verifierOpts...)

	mux := http.NewServeMux()
	api.NewServer(eng, verifier, eng).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn(ctx, "HTTP shutdown incomplete", logger.Error(err))
	}
}

// openStore selects the configured document store backend.
func openStore(ctx context.Context, cfg *config.Config) (docstore.Store, func(), error) {
	switch cfg.StoreBackend {
	case "postgres":
		store, err := pgstore.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		store := memstore.New()
		return store, func() { _ = store.Close() }, nil
	}
}
