package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/chatsync/internal/handler"
	"github.com/zhouzirui/chatsync/internal/handler/live"
	"github.com/zhouzirui/chatsync/internal/metrics"
	"github.com/zhouzirui/chatsync/internal/service/chat"
	"github.com/zhouzirui/chatsync/internal/service/send"
	"github.com/zhouzirui/chatsync/internal/service/syncer"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Sync the remote chat and serve the local API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := newRemoteClient(cfg.Remote, log)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store := chat.NewStore()
	engine := syncer.New(client, store, syncer.Config{
		Interval: cfg.Remote.PollInterval,
		Logger:   log,
		Metrics:  m,
	})
	defer engine.Stop()

	// A failed initial load leaves the server up; POST /api/reload retries.
	if err := engine.Reload(ctx); err != nil {
		log.Error("initial load failed, waiting for a reload request", "error", err)
	}

	sender := send.New(client, store, send.Config{Logger: log, Metrics: m})
	liveHandler := live.New(live.Config{Store: store, SelfID: cfg.Remote.SelfID, Logger: log, Metrics: m})
	defer liveHandler.Close()

	router := handler.NewRouter(handler.Dependencies{
		Store:    store,
		Syncer:   engine,
		Sender:   sender,
		Live:     liveHandler,
		SelfID:   cfg.Remote.SelfID,
		Logger:   log,
		Gatherer: reg,
	})

	log.Info("chatsync listening", "addr", cfg.Server.Addr, "remote", cfg.Remote.BaseURL)
	return startServer(ctx, cfg.Server.Addr, router, log)
}

func startServer(ctx context.Context, addr string, router http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelWarn),
	}
	return runServer(ctx, srv, log)
}

// runServer serves until ctx ends, then drains in-flight requests for up to
// shutdownTimeout before returning.
func runServer(ctx context.Context, srv *http.Server, log *slog.Logger) error {
	served := make(chan error, 1)
	go func() {
		served <- srv.ListenAndServe()
	}()

	var err error
	select {
	case err = <-served:
	case <-ctx.Done():
		log.Info("shutting down http server", "addr", srv.Addr)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Warn("http server did not shut down cleanly", "addr", srv.Addr, "error", shutdownErr)
		}
		err = <-served
	}

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
