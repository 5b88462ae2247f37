package usecase

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/okvist/packmule/internal/domain"
)

// Logger is the slice of the application logger the use case needs.
type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// ConfigStore persists the run configuration. Save is called exactly once,
// after every stage has succeeded, so credential rotations from a broken
// run never reach disk.
type ConfigStore interface {
	Save() error
}

// Backup drives one unattended run: connect the backend, resolve the
// target, produce and upload each artifact in order, persist the
// configuration. The first failing stage aborts the run; nothing uploaded
// so far is rolled back.
type Backup struct {
	backend      domain.Backend
	producers    []domain.Producer
	compressor   domain.Compressor
	notifiers    []domain.Notifier
	store        ConfigStore
	logger       Logger
	folder       string
	compress     bool
	broadcastAll bool
	workDir      string
}

func NewBackup(
	backend domain.Backend,
	producers []domain.Producer,
	compressor domain.Compressor,
	notifiers []domain.Notifier,
	store ConfigStore,
	logger Logger,
	folder string,
	compress bool,
	broadcastAll bool,
) *Backup {
	return &Backup{
		backend:      backend,
		producers:    producers,
		compressor:   compressor,
		notifiers:    notifiers,
		store:        store,
		logger:       logger,
		folder:       folder,
		compress:     compress,
		broadcastAll: broadcastAll,
		workDir:      os.TempDir(),
	}
}

func (uc *Backup) Execute(ctx context.Context) error {
	start := time.Now()
	uc.info("starting backup to %s...", uc.backend.Name())

	uploaded, err := uc.run(ctx)
	if err != nil {
		uc.logger.Errorf("backup failed: %v", err)
		uc.notify(domain.SeverityFailure, fmt.Sprintf("backup failed: %v", err))
		return err
	}

	elapsed := time.Since(start).Round(time.Second)
	uc.info("backup complete: %d file(s) stored on %s in %s", uploaded, uc.backend.Name(), elapsed)

	return nil
}

func (uc *Backup) run(ctx context.Context) (int, error) {
	if err := uc.backend.Connect(ctx); err != nil {
		return 0, fmt.Errorf("connect %s: %w", uc.backend.Name(), err)
	}
	defer uc.backend.Close()

	target, err := uc.backend.EnsureTarget(ctx, uc.folder)
	if err != nil {
		return 0, fmt.Errorf("resolve backup target: %w", err)
	}

	host, err := os.Hostname()
	if err != nil {
		return 0, fmt.Errorf("failed to resolve hostname: %w", err)
	}
	base := baseName(host, time.Now())

	uploaded := 0
	for _, p := range uc.producers {
		if err := uc.runStage(ctx, p, target, base); err != nil {
			return uploaded, err
		}
		uploaded++
	}

	// Close before saving: backends record rotated credentials into the
	// configuration on Close, and those must be part of the snapshot.
	if err := uc.backend.Close(); err != nil {
		uc.logger.Warnf("failed to close %s cleanly: %v", uc.backend.Name(), err)
	}

	if err := uc.store.Save(); err != nil {
		return uploaded, fmt.Errorf("save configuration: %w", err)
	}

	return uploaded, nil
}

func (uc *Backup) runStage(ctx context.Context, p domain.Producer, target domain.Target, base string) error {
	art, err := p.Produce(ctx, uc.workDir, base)
	if err != nil {
		return err
	}
	defer os.Remove(art.Path)

	if info, err := os.Stat(art.Path); err == nil {
		uc.info("%s ready: %s (%.2f MB)", art.Kind, art.Name, float64(info.Size())/(1024*1024))
	}

	if uc.compress && art.Kind == domain.DatabaseDump && !art.Compressed {
		gzPath, err := uc.compressor.Compress(art.Path)
		if err != nil {
			return fmt.Errorf("compress %s: %w", art.Name, err)
		}
		art = domain.Artifact{
			Name:        art.Name + ".gz",
			Kind:        art.Kind,
			ContentType: "application/gzip",
			Path:        gzPath,
			Compressed:  true,
		}
		defer os.Remove(art.Path)
	}

	uc.info("uploading %s to %s...", art.Name, uc.backend.Name())
	res, err := uc.backend.Upload(ctx, target, art)
	if err != nil {
		return fmt.Errorf("%w: %s to %s: %v", domain.ErrUpload, art.Name, uc.backend.Name(), err)
	}
	uc.info("uploaded %s (%s)", res.Name, res.ID)

	return nil
}

// info logs a progress message and mirrors it to the notification routes
// when every message is broadcast.
func (uc *Backup) info(format string, args ...interface{}) {
	uc.logger.Infof(format, args...)
	if uc.broadcastAll {
		uc.notify(domain.SeverityInfo, fmt.Sprintf(format, args...))
	}
}

// notify fans a message out to every route on a detached context: the
// run's own context may already be canceled, and the message still has to
// go out. Delivery failures are logged and go no further.
func (uc *Backup) notify(sev domain.Severity, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	for _, n := range uc.notifiers {
		if err := n.Notify(ctx, sev, text); err != nil {
			uc.logger.Warnf("notification failed: %v", err)
		}
	}
}

// baseName derives the shared name stem for a run's artifacts: the host
// that produced them and a second-resolution UTC timestamp.
func baseName(host string, now time.Time) string {
	return fmt.Sprintf("%s %s", host, now.UTC().Format("2006-01-02 15-04-05"))
}
