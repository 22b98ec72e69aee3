// Command judged is the self-hosted contest judge's server process: it
// wires the Store, Contest State, Broadcast Layer, Dispatcher, Lifecycle
// Controller, and the NDJSON transport together and serves them until
// signaled to stop, the multi-connection analogue of the teacher's
// cmd/attest-engine/main.go (stdin/stdout Session, flag-parsed log level,
// signal.NotifyContext shutdown).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/localjudge/engine/internal/broadcast"
	"github.com/localjudge/engine/internal/config"
	"github.com/localjudge/engine/internal/contest"
	"github.com/localjudge/engine/internal/dispatcher"
	"github.com/localjudge/engine/internal/lifecycle"
	"github.com/localjudge/engine/internal/metrics"
	"github.com/localjudge/engine/internal/sandbox"
	"github.com/localjudge/engine/internal/store"
	"github.com/localjudge/engine/internal/transport"
)

const version = "1.0.0"

func nowUnix() int64 { return time.Now().Unix() }

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("judged %s\n", version)
		os.Exit(0)
	}

	configPath := flag.String("config", "./judge.conf", "path to the flat key/value configuration file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	metricsAddr := flag.String("metrics-addr", ":9100", "address to serve /metrics on")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		fmt.Fprintf(os.Stderr, "invalid log level: %s\n", *logLevel)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("loading configuration", "err", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		logger.Error("opening store", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	hub := broadcast.New(logger)
	manager := contest.NewManager(st, hub)

	runner := sandbox.NewProcessRunner(sandbox.DefaultLimits)
	disp := dispatcher.New(dispatcher.Config{
		Workers: cfg.MaxChecks,
		Now:     nowUnix,
	}, runner, st, manager, logger)

	ctl := lifecycle.New(st, manager, logger, nowUnix)
	if err := ctl.Recover(); err != nil {
		logger.Error("recovering contests from store", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	disp.Start(ctx)
	ctl.Start()

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
	if err != nil {
		logger.Error("binding listener", "err", err)
		os.Exit(1)
	}

	srv := transport.New(listener, hub, logger)
	transport.RegisterBuiltinHandlers(srv, transport.Deps{
		Manager:           manager,
		Store:             st,
		Dispatcher:        disp,
		Hub:               hub,
		AdminPasswordHash: cfg.AdminPasswordHash,
		Now:               nowUnix,
		Logger:            logger,
	})

	metricsSrv := &http.Server{Addr: *metricsAddr, Handler: metrics.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "err", err)
		}
	}()

	logger.Info("judge engine starting", "version", version, "addr", listener.Addr().String())
	if err := srv.Serve(ctx); err != nil {
		logger.Error("transport server error", "err", err)
	}

	ctl.Stop()
	disp.Stop()
	_ = metricsSrv.Close()
	logger.Info("judge engine shutdown complete")
}
