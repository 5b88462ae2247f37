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

// MySQLDumper produces a logical dump via mysqldump.
type MySQLDumper struct {
	config *config.DatabaseConfig
}

func NewMySQL(cfg *config.DatabaseConfig) *MySQLDumper {
	return &MySQLDumper{config: cfg}
}

func (m *MySQLDumper) Produce(ctx context.Context, dir, baseName string) (domain.Artifact, error) {
	outPath := filepath.Join(dir, baseName+".sql")

	defaults, err := writeDefaultsFile(dir, m.config.Username, m.config.Password)
	if err != nil {
		return domain.Artifact{}, err
	}
	defer os.Remove(defaults)

	bin := m.config.DumpCommand
	if bin == "" {
		bin = "mysqldump"
	}

	cmd := exec.CommandContext(ctx, bin, dumpArgs(m.config, defaults, outPath)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		// mysqldump opens the result file before connecting, so a failed
		// run leaves a partial dump behind.
		os.Remove(outPath)
		return domain.Artifact{}, fmt.Errorf("%w: mysqldump: %v, output: %s", domain.ErrDumpProcess, err, string(output))
	}

	return domain.Artifact{
		Name:        baseName + ".sql",
		Kind:        domain.DatabaseDump,
		ContentType: "application/sql",
		Path:        outPath,
	}, nil
}

// dumpArgs builds the mysqldump argument list. Credentials travel in the
// defaults file, never on the command line where the process list would
// expose them. The defaults file option must come first.
func dumpArgs(cfg *config.DatabaseConfig, defaultsFile, outPath string) []string {
	args := []string{
		fmt.Sprintf("--defaults-extra-file=%s", defaultsFile),
		fmt.Sprintf("--host=%s", cfg.Host),
		fmt.Sprintf("--port=%d", cfg.Port),
		"--single-transaction",
		"--routines",
		"--triggers",
		"--hex-blob",
		"--order-by-primary",
		fmt.Sprintf("--result-file=%s", outPath),
	}

	if cfg.Database == "" {
		args = append(args, "--all-databases")
	} else {
		args = append(args, cfg.Database)
	}

	return args
}

// writeDefaultsFile stores the client credentials in a temp file only the
// owner can read. CreateTemp opens it 0600.
func writeDefaultsFile(dir, user, password string) (string, error) {
	f, err := os.CreateTemp(dir, "defaults-*.cnf")
	if err != nil {
		return "", fmt.Errorf("failed to create defaults file: %w", err)
	}

	content := fmt.Sprintf("[client]\nuser=%s\npassword=%s\ndefault-character-set=utf8mb4\n", user, password)
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write defaults file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close defaults file: %w", err)
	}

	return f.Name(), nil
}
