package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"

	"crypto-tracker-go/internal/app"
	"crypto-tracker-go/internal/config"
	"crypto-tracker-go/internal/logger"
	"github.com/google/subcommands"
	"go.uber.org/zap"
)

var configDir = flag.String("config", "./configs", "directory holding config.yml")

// connect builds the tracker from the configuration on disk.
func connect(ctx context.Context) (ledgerService, func(), error) {
	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	// Only warnings and errors: the command output goes to stdout.
	cfg.Logger.Level = "warn"
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, err
	}

	tracker, err := app.New(ctx, &cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return tracker.Service, func() {
		if err := tracker.Close(); err != nil {
			log.Warn("Failed to release resources", zap.Error(err))
		}
		_ = log.Sync()
	}, nil
}

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	t := &tool{out: os.Stdout, connect: connect}
	for _, c := range t.commands() {
		commander.Register(c, "")
	}

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
