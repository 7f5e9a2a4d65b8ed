// Command sipstackd runs the server transaction layer over UDP
// with a built-in application that answers every request with configured statuses.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ghettovoice/sipstack/internal/config"
	"github.com/ghettovoice/sipstack/log"
)

func main() {
	cfgPath := flag.String("config", "", "path to the YAML config file")
	envFile := flag.String("env", ".env", "path to the .env file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.Log.Logger(os.Stderr)
	log.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "sipstackd failed", slog.Any("error", err))
		os.Exit(1) //nolint:gocritic
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	srv, err := newServer(cfg, logger)
	if err != nil {
		return err
	}
	return srv.serve(ctx)
}
