package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/duelrelay/internal/config"
	"github.com/DoyleJ11/duelrelay/internal/history"
	"github.com/DoyleJ11/duelrelay/internal/httpapi"
	"github.com/DoyleJ11/duelrelay/internal/hub"
	"github.com/DoyleJ11/duelrelay/internal/logging"
	"github.com/DoyleJ11/duelrelay/internal/metrics"
	"github.com/DoyleJ11/duelrelay/internal/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	flag "github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.StringP("config", "c", "", "path to relay.yaml")
	addr := flag.String("addr", "", "listen address, overrides config")
	flag.Parse()

	if err := run(*configPath, *addr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, addr string) (err error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Addr = addr
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Dev)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	hubOpts := hub.Options{
		Log:          log,
		Metrics:      m,
		IdleTimeout:  cfg.Room.IdleTimeout,
		ReapInterval: cfg.Room.ReapInterval,
	}
	deps := httpapi.Deps{
		Session: ws.Options{
			OutboxSize:     cfg.Session.OutboxSize,
			PingInterval:   cfg.Session.PingInterval,
			WriteTimeout:   cfg.Session.WriteTimeout,
			ReadLimit:      cfg.Session.ReadLimit,
			AllowedOrigins: cfg.Session.AllowedOrigins,
			Metrics:        m,
		},
		Gatherer:  reg,
		StaticDir: cfg.StaticDir,
		Log:       log,
	}

	if cfg.DatabaseURL != "" {
		store, openErr := history.Open(cfg.DatabaseURL, log)
		if openErr != nil {
			return openErr
		}
		defer func() { err = multierr.Append(err, store.Close()) }()
		hubOpts.History = store
		deps.History = store
		log.Info("room history enabled")
	}

	h := hub.NewHub(ctx, hubOpts)
	deps.Hub = h

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.SetupRoutes(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		h.Send(hub.ShutdownHub{})
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
