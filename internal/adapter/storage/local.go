package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/okvist/packmule/internal/domain"
)

// LocalBackend stores artifacts in a directory on the machine itself.
type LocalBackend struct {
	basePath string
}

func NewLocal(basePath string) *LocalBackend {
	return &LocalBackend{basePath: basePath}
}

func (l *LocalBackend) Name() string { return "local" }

func (l *LocalBackend) Connect(ctx context.Context) error {
	if l.basePath == "" {
		return fmt.Errorf("%w: local.path is not set", domain.ErrBackendPrereq)
	}
	return nil
}

func (l *LocalBackend) Close() error { return nil }

// EnsureTarget creates the configured directory if it is not there yet. The
// operator names the destination directly, so the logical folder name plays
// no role here.
func (l *LocalBackend) EnsureTarget(ctx context.Context, name string) (domain.Target, error) {
	if err := os.MkdirAll(l.basePath, 0o755); err != nil {
		return domain.Target{}, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return domain.Target{Locator: l.basePath}, nil
}

// Upload copies the artifact into the target directory. An existing file
// with the same name is overwritten; names carry a timestamp, so that only
// happens when a run repeats within the clock resolution.
func (l *LocalBackend) Upload(ctx context.Context, target domain.Target, art domain.Artifact) (domain.UploadResult, error) {
	destPath := filepath.Join(target.Locator, art.Name)

	source, err := os.Open(art.Path)
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("failed to open source: %w", err)
	}
	defer source.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("failed to create dest: %w", err)
	}
	defer dest.Close()

	if _, err := dest.ReadFrom(source); err != nil {
		return domain.UploadResult{}, fmt.Errorf("failed to copy: %w", err)
	}

	return domain.UploadResult{ID: destPath, Name: art.Name}, nil
}
