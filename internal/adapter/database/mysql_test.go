package database

import (
	"os"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okvist/packmule/internal/config"
)

func TestDumpArgs(t *testing.T) {
	Convey("Given database settings", t, func() {
		cfg := &config.DatabaseConfig{
			Host:     "db.internal",
			Port:     3307,
			Username: "dbadmin",
			Password: "s3cret!pw",
			Database: "shop",
		}

		args := dumpArgs(cfg, "/tmp/defaults.cnf", "/tmp/out.sql")
		joined := strings.Join(args, " ")

		Convey("The defaults file option comes first", func() {
			So(args[0], ShouldEqual, "--defaults-extra-file=/tmp/defaults.cnf")
		})

		Convey("Credentials never appear on the command line", func() {
			So(joined, ShouldNotContainSubstring, "dbadmin")
			So(joined, ShouldNotContainSubstring, "s3cret!pw")
		})

		Convey("The consistency and completeness options are set", func() {
			So(joined, ShouldContainSubstring, "--single-transaction")
			So(joined, ShouldContainSubstring, "--routines")
			So(joined, ShouldContainSubstring, "--triggers")
			So(joined, ShouldContainSubstring, "--hex-blob")
			So(joined, ShouldContainSubstring, "--order-by-primary")
		})

		Convey("Output goes through the result file, the target database last", func() {
			So(joined, ShouldContainSubstring, "--result-file=/tmp/out.sql")
			So(args[len(args)-1], ShouldEqual, "shop")
		})

		Convey("An empty database name dumps everything", func() {
			cfg.Database = ""
			args := dumpArgs(cfg, "/tmp/defaults.cnf", "/tmp/out.sql")
			So(args[len(args)-1], ShouldEqual, "--all-databases")
		})
	})
}

func TestWriteDefaultsFile(t *testing.T) {
	Convey("Given credentials", t, func() {
		dir := t.TempDir()

		path, err := writeDefaultsFile(dir, "dbadmin", "s3cret!pw")
		So(err, ShouldBeNil)
		defer os.Remove(path)

		Convey("The file carries the client section", func() {
			data, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual,
				"[client]\nuser=dbadmin\npassword=s3cret!pw\ndefault-character-set=utf8mb4\n")
		})

		Convey("Only the owner can read it", func() {
			info, err := os.Stat(path)
			So(err, ShouldBeNil)
			So(info.Mode().Perm(), ShouldEqual, os.FileMode(0o600))
		})
	})
}
