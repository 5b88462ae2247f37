package app

import (
	"context"
	"fmt"
	"os"

	"github.com/okvist/packmule/internal/adapter/archive"
	"github.com/okvist/packmule/internal/adapter/compressor"
	"github.com/okvist/packmule/internal/adapter/database"
	"github.com/okvist/packmule/internal/adapter/notify"
	"github.com/okvist/packmule/internal/adapter/storage"
	"github.com/okvist/packmule/internal/config"
	"github.com/okvist/packmule/internal/domain"
	"github.com/okvist/packmule/internal/infrastructure/logger"
	"github.com/okvist/packmule/internal/usecase"
)

type App struct {
	config *config.Config
	logger *logger.Logger
	backup *usecase.Backup
}

// Options are the run-mode switches from the command line.
type Options struct {
	// Headless marks an unattended run: no console output and no
	// interactive authorization prompts.
	Headless bool
}

func New(cfg *config.Config, opts Options) (*App, error) {
	log := logger.New(cfg.App.LogLevel, cfg.App.LogFile, !opts.Headless)

	backend, err := buildBackend(cfg, !opts.Headless)
	if err != nil {
		return nil, err
	}
	log.Infof("✓ %s backend selected", backend.Name())

	producers := buildProducers(cfg, log)
	if len(producers) == 0 {
		return nil, fmt.Errorf("nothing to back up: no database configured and no usable files.app_dir")
	}

	backup := usecase.NewBackup(
		backend,
		producers,
		compressor.NewGzip(),
		buildNotifiers(cfg, log),
		cfg,
		log,
		cfg.Backup.Folder,
		cfg.Backup.Compress,
		cfg.Notify.BroadcastAll,
	)

	return &App{
		config: cfg,
		logger: log,
		backup: backup,
	}, nil
}

func buildBackend(cfg *config.Config, interactive bool) (domain.Backend, error) {
	switch cfg.Backend {
	case "drive":
		return storage.NewDrive(&cfg.Drive, interactive), nil
	case "sftp":
		return storage.NewSFTP(cfg.SFTP), nil
	case "local":
		return storage.NewLocal(cfg.Local.Path), nil
	case "s3":
		return storage.NewS3(cfg.S3), nil
	default:
		return nil, fmt.Errorf("unknown backend: %s", cfg.Backend)
	}
}

func buildProducers(cfg *config.Config, log *logger.Logger) []domain.Producer {
	var producers []domain.Producer

	switch cfg.Database.Type {
	case "mysql":
		producers = append(producers, database.NewMySQL(&cfg.Database))
	case "postgresql":
		producers = append(producers, database.NewPostgreSQL(&cfg.Database))
	case "mongodb":
		producers = append(producers, database.NewMongoDB(&cfg.Database))
	}

	if cfg.Files.AppDir != "" {
		if info, err := os.Stat(cfg.Files.AppDir); err == nil && info.IsDir() {
			producers = append(producers, archive.NewPacker(cfg.Files.AppDir))
		} else {
			log.Warnf("files.app_dir %s is not a directory, skipping the filesystem stage", cfg.Files.AppDir)
		}
	}

	return producers
}

func buildNotifiers(cfg *config.Config, log *logger.Logger) []domain.Notifier {
	var notifiers []domain.Notifier

	broadcaster := notify.NewBroadcaster(cfg.Notify)
	if broadcaster.Enabled() {
		notifiers = append(notifiers, broadcaster)
		log.Infof("✓ announce broadcasts enabled (%s:%d)", cfg.Notify.Host, cfg.Notify.Port)
	} else if cfg.Notify.Host != "" || cfg.Notify.Secret != "" {
		log.Warnf("announce destination incomplete, broadcasts disabled")
	}

	if cfg.Notify.Telegram.BotToken != "" && cfg.Notify.Telegram.ChatID != 0 {
		tg, err := notify.NewTelegram(cfg.Notify.Telegram)
		if err != nil {
			log.Errorf("Failed to initialize telegram notifications: %v", err)
		} else {
			notifiers = append(notifiers, tg)
			log.Infof("✓ telegram notifications enabled")
		}
	}

	return notifiers
}

// Run executes one backup run.
func (a *App) Run(ctx context.Context) error {
	a.logger.Infof("Starting %s", a.config.App.Name)
	return a.backup.Execute(ctx)
}

func (a *App) Shutdown() {
	_ = a.logger.Sync()
}
