package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/cardroom/holdem/internal/config"
	"github.com/cardroom/holdem/internal/orchestrator"
	"github.com/cardroom/holdem/internal/session"
	"github.com/cardroom/holdem/internal/statistics"
	"github.com/cardroom/holdem/internal/store"
	"github.com/cardroom/holdem/internal/transport"
)

var CLI struct {
	Config   string `short:"c" long:"config" default:"cardroom.hcl" help:"Path to HCL configuration file"`
	Addr     string `short:"a" long:"addr" help:"Server address to bind to (overrides config)"`
	LogLevel string `short:"l" long:"log-level" help:"Log level (overrides config)"`
	DataDir  string `short:"d" long:"data-dir" help:"Snapshot directory (overrides config)"`
}

func main() {
	kctx := kong.Parse(&CLI)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		kctx.Exit(1)
	}
	if CLI.Addr != "" {
		cfg.Server.Address = CLI.Addr
		cfg.Server.Port = 0
	}
	if CLI.LogLevel != "" {
		cfg.Server.LogLevel = CLI.LogLevel
	}
	if CLI.DataDir != "" {
		cfg.Server.DataDir = CLI.DataDir
	}

	logger := log.New(os.Stderr)
	switch cfg.Server.LogLevel {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "info":
		logger.SetLevel(log.InfoLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		kctx.Exit(1)
	}
}

func run(cfg *config.ServerConfig, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fs, err := store.NewFileStore(cfg.Server.DataDir, 0)
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}
	writer := store.NewWriter(fs, logger, quartz.NewReal(), 64)
	defer writer.Close()

	stats := statistics.NewCollector()

	orch := orchestrator.New(orchestrator.Options{
		Logger:    logger,
		Persister: writer,
		Stats:     stats,
	})
	defer orch.Close()

	for _, tc := range cfg.Tables {
		id, err := orch.CreateSession(session.ConfigFromTable(tc))
		if err != nil {
			return fmt.Errorf("creating table %s: %w", tc.Name, err)
		}
		logger.Info("created table",
			"session", id,
			"name", tc.Name,
			"stakes", fmt.Sprintf("%d/%d", tc.SmallBlind, tc.BigBlind),
			"limit", tc.BettingLimit,
			"maxPlayers", tc.MaxPlayers)
	}

	addr := cfg.Server.Address
	if cfg.Server.Port != 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)
	}
	srv := transport.NewServer(addr, orch, nil, logger)
	orch.Subscribe(srv)
	defer orch.Unsubscribe(srv)

	logger.Info("starting cardroom server", "addr", addr, "tables", len(cfg.Tables), "dataDir", cfg.Server.DataDir)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return nil
	})
	return g.Wait()
}
