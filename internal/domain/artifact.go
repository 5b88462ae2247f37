package domain

import "context"

// ContentKind tags what a backup artifact contains.
type ContentKind int

const (
	DatabaseDump ContentKind = iota
	FilesystemArchive
)

func (k ContentKind) String() string {
	switch k {
	case DatabaseDump:
		return "database dump"
	case FilesystemArchive:
		return "filesystem archive"
	default:
		return "unknown"
	}
}

// Artifact is one named byte stream produced by a backup stage. Path points
// at the backing temporary file; it is consumed exactly once by an upload and
// removed afterwards regardless of the upload outcome. Compressed marks
// content that is already compressed at the source, which exempts it from
// the gzip stage.
type Artifact struct {
	Name        string
	Kind        ContentKind
	ContentType string
	Path        string
	Compressed  bool
}

// Producer creates one backup artifact. dir is where the backing temporary
// file goes; baseName is the run-scoped name stem the artifact name is
// derived from.
type Producer interface {
	Produce(ctx context.Context, dir, baseName string) (Artifact, error)
}

// Compressor shrinks a produced file into a sibling compressed file and
// returns the new path. The source file is left in place.
type Compressor interface {
	Compress(sourcePath string) (string, error)
}
