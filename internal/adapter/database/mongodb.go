package database

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/okvist/packmule/internal/config"
	"github.com/okvist/packmule/internal/domain"
)

// MongoDBDumper produces a gzipped archive via mongodump.
type MongoDBDumper struct {
	config *config.DatabaseConfig
}

func NewMongoDB(cfg *config.DatabaseConfig) *MongoDBDumper {
	return &MongoDBDumper{config: cfg}
}

func (m *MongoDBDumper) Produce(ctx context.Context, dir, baseName string) (domain.Artifact, error) {
	outPath := filepath.Join(dir, baseName+".archive.gz")

	bin := m.config.DumpCommand
	if bin == "" {
		bin = "mongodump"
	}

	args := []string{
		fmt.Sprintf("--uri=%s", m.uri()),
		fmt.Sprintf("--archive=%s", outPath),
		"--gzip",
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		// mongodump creates the archive before connecting.
		os.Remove(outPath)
		return domain.Artifact{}, fmt.Errorf("%w: mongodump: %v, output: %s", domain.ErrDumpProcess, err, string(output))
	}

	return domain.Artifact{
		Name:        baseName + ".archive.gz",
		Kind:        domain.DatabaseDump,
		ContentType: "application/gzip",
		Path:        outPath,
		Compressed:  true,
	}, nil
}

// uri assembles the connection string. Credentials and the database name
// are optional: without a database every database is dumped.
func (m *MongoDBDumper) uri() string {
	cred := ""
	if m.config.Username != "" {
		cred = fmt.Sprintf("%s:%s@", m.config.Username, m.config.Password)
	}

	uri := fmt.Sprintf("mongodb://%s%s:%d/%s", cred, m.config.Host, m.config.Port, m.config.Database)

	if m.config.AuthDatabase != "" {
		uri += fmt.Sprintf("?authSource=%s", m.config.AuthDatabase)
	}

	return uri
}
