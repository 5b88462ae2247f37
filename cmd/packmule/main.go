package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/okvist/packmule/internal/app"
	"github.com/okvist/packmule/internal/config"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (default ~/.config/packmule/config.yaml)")
	headless := flag.Bool("headless", false, "unattended run: no console output, no interactive authorization")
	cron := flag.Bool("cron", false, "alias for -headless, for crontab entries")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, config.ErrCreated) {
			return err
		}
		return fmt.Errorf("load config: %w", err)
	}

	application, err := app.New(cfg, app.Options{Headless: *headless || *cron})
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}
	defer application.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return application.Run(ctx)
}
