package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"logsink/db"
	"logsink/formats"
	"logsink/listener"
	"logsink/server"
	"logsink/supervisor"
	"logsink/utils"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "logsink: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	logger := utils.NewLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize database
	store, err := db.Open(ctx, db.Config{
		Driver: cfg.DBDriver,
		Path:   cfg.DBPath,
		Logger: logger.With("component", "db"),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	// Initialize database schema
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}

	decoder, err := formats.GetDecoder(cfg.Format)
	if err != nil {
		return err
	}

	receiver := listener.NewReceiver(listener.Config{
		Addr:      cfg.UDPAddr,
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
	}, store, decoder, logger)

	httpServer := server.NewServer(server.Config{Addr: cfg.HTTPAddr}, store, logger)

	// Both transports are bound before either loop starts, so a bind
	// failure aborts startup instead of leaving half the process running.
	if err := receiver.Bind(); err != nil {
		return fmt.Errorf("failed to start UDP listener: %w", err)
	}
	if err := httpServer.Bind(); err != nil {
		receiver.Close()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	logger.Info("logsink started",
		"udp", receiver.Addr().String(),
		"http", httpServer.Addr().String(),
		"db", cfg.DBPath,
		"driver", store.Driver(),
		"format", decoder.Name())

	err = supervisor.Run(ctx, logger,
		supervisor.Task{Name: "udp-receiver", Run: receiver.Run},
		supervisor.Task{Name: "http-server", Run: httpServer.Run},
	)
	if err != nil {
		return err
	}

	logger.Info("Shutdown complete")
	return nil
}

// loadConfig layers defaults, the optional YAML file, LOGSINK_* variables
// and command-line flags, in that order.
func loadConfig(args []string) (utils.Config, error) {
	cfg := utils.Default()

	// The config file location has to be known before the other flags are
	// bound, so it is picked out in a first pass.
	pre := pflag.NewFlagSet("logsink", pflag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.Usage = func() {}
	pre.SetOutput(io.Discard)
	configPath := pre.String("config", os.Getenv("LOGSINK_CONFIG"), "")
	_ = pre.Parse(args)

	if *configPath != "" {
		if err := utils.LoadFile(*configPath, &cfg); err != nil {
			return cfg, err
		}
	}
	utils.FromEnv(&cfg)

	flags := pflag.NewFlagSet("logsink", pflag.ContinueOnError)
	flags.String("config", *configPath, "path to a YAML config file")
	utils.BindFlags(flags, &cfg)
	if err := flags.Parse(args); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
