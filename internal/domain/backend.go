package domain

import "context"

// Target locates the resolved backup container on a backend: a Drive folder
// ID, a remote directory path, or a local directory path.
type Target struct {
	Locator string
}

// UploadResult reports where an uploaded artifact landed. ID is the
// backend-assigned identifier when the backend issues one, otherwise the
// destination path.
type UploadResult struct {
	ID   string
	Name string
}

// Backend is the storage destination for a run. Connect establishes the
// session or authorization and must succeed before EnsureTarget or Upload.
// Close releases the session and gives the backend a chance to record
// rotated credentials back into the configuration; it is safe to call more
// than once.
//
// EnsureTarget resolves the backup container for the run. Backends that
// address containers by name (Drive) resolve or create the named folder;
// backends with an explicitly configured location (sftp, local, s3) ensure
// that location exists and ignore the name. EnsureTarget is idempotent:
// resolving twice without out-of-band changes yields the same target and
// never duplicates an existing container.
//
// Upload stores the artifact's backing file under the artifact name inside
// the target. The caller owns the backing file and removes it afterwards
// whatever the outcome.
type Backend interface {
	Name() string
	Connect(ctx context.Context) error
	Close() error
	EnsureTarget(ctx context.Context, name string) (Target, error)
	Upload(ctx context.Context, target Target, art Artifact) (UploadResult, error)
}
