package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/okvist/packmule/internal/domain"
)

// Packer produces the filesystem artifact: a zip of the application's
// config.ini and the storage tree that file points at.
type Packer struct {
	appDir string
}

func NewPacker(appDir string) *Packer {
	return &Packer{appDir: appDir}
}

func (p *Packer) Produce(ctx context.Context, dir, baseName string) (domain.Artifact, error) {
	iniPath := filepath.Join(p.appDir, "config.ini")
	if _, err := os.Stat(iniPath); err != nil {
		return domain.Artifact{}, fmt.Errorf("%w: %s", domain.ErrArchiveSource, iniPath)
	}

	storageDir, err := p.storageDir(iniPath)
	if err != nil {
		return domain.Artifact{}, err
	}
	if info, err := os.Stat(storageDir); err != nil || !info.IsDir() {
		return domain.Artifact{}, fmt.Errorf("%w: storage directory %s", domain.ErrArchiveSource, storageDir)
	}

	outPath := filepath.Join(dir, baseName+".zip")
	if err := pack(ctx, outPath, p.appDir, iniPath, storageDir); err != nil {
		os.Remove(outPath)
		return domain.Artifact{}, err
	}

	return domain.Artifact{
		Name:        baseName + ".zip",
		Kind:        domain.FilesystemArchive,
		ContentType: "application/zip",
		Path:        outPath,
		Compressed:  true,
	}, nil
}

// storageDir resolves the application's storage tree from its config.ini,
// falling back to the conventional "storage" subdirectory. Relative paths
// are anchored at the application directory.
func (p *Packer) storageDir(iniPath string) (string, error) {
	f, err := ini.Load(iniPath)
	if err != nil {
		return "", fmt.Errorf("%w: unreadable %s: %v", domain.ErrArchiveSource, iniPath, err)
	}

	path := f.Section("Storage").Key("path").MustString("storage")
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.appDir, path)
	}
	return path, nil
}

// pack writes a zip of the given files and trees with entry names relative
// to root. A tree outside root is anchored at its own base name instead.
func pack(ctx context.Context, outPath, root string, paths ...string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	for _, p := range paths {
		if err := addTree(ctx, zw, root, p); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

func addTree(ctx context.Context, zw *zip.Writer, root, tree string) error {
	prefix, err := filepath.Rel(root, tree)
	if err != nil || strings.HasPrefix(prefix, "..") {
		prefix = filepath.Base(tree)
	}

	info, err := os.Stat(tree)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", tree, err)
	}
	if !info.IsDir() {
		return addFile(zw, filepath.ToSlash(prefix), tree)
	}

	return filepath.WalkDir(tree, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to walk %s: %w", p, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(tree, p)
		if err != nil {
			return err
		}
		return addFile(zw, filepath.ToSlash(filepath.Join(prefix, rel)), p)
	})
}

func addFile(zw *zip.Writer, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to build header for %s: %w", path, err)
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s to archive: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to write %s to archive: %w", name, err)
	}
	return nil
}
