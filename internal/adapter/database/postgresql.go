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

// PostgreSQLDumper produces a custom-format dump via pg_dump. The password
// travels in the environment, following the tool's own convention.
type PostgreSQLDumper struct {
	config *config.DatabaseConfig
}

func NewPostgreSQL(cfg *config.DatabaseConfig) *PostgreSQLDumper {
	return &PostgreSQLDumper{config: cfg}
}

func (p *PostgreSQLDumper) Produce(ctx context.Context, dir, baseName string) (domain.Artifact, error) {
	if p.config.Database == "" {
		return domain.Artifact{}, fmt.Errorf("%w: pg_dump requires a database name", domain.ErrDumpProcess)
	}

	outPath := filepath.Join(dir, baseName+".dump")

	bin := p.config.DumpCommand
	if bin == "" {
		bin = "pg_dump"
	}

	cmd := exec.CommandContext(ctx, bin,
		fmt.Sprintf("--host=%s", p.config.Host),
		fmt.Sprintf("--port=%d", p.config.Port),
		fmt.Sprintf("--username=%s", p.config.Username),
		"--format=custom",
		"--compress=9",
		fmt.Sprintf("--file=%s", outPath),
		p.config.Database,
	)
	cmd.Env = append(os.Environ(), fmt.Sprintf("PGPASSWORD=%s", p.config.Password))

	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(outPath)
		return domain.Artifact{}, fmt.Errorf("%w: pg_dump: %v, output: %s", domain.ErrDumpProcess, err, string(output))
	}

	return domain.Artifact{
		Name:        baseName + ".dump",
		Kind:        domain.DatabaseDump,
		ContentType: "application/octet-stream",
		Path:        outPath,
		Compressed:  true, // the custom format compresses internally
	}, nil
}
