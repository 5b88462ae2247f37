package app

import (
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okvist/packmule/internal/config"
	"github.com/okvist/packmule/internal/infrastructure/logger"
)

func TestNew(t *testing.T) {
	Convey("Given a local backend configuration", t, func() {
		cfg := &config.Config{Backend: "local"}
		cfg.App.LogLevel = "info"
		cfg.Database.Type = "mysql"
		cfg.Local.Path = t.TempDir()
		cfg.Backup.Folder = "Backups"

		Convey("The app wires up headless without touching the network", func() {
			a, err := New(cfg, Options{Headless: true})
			So(err, ShouldBeNil)
			So(a, ShouldNotBeNil)
			a.Shutdown()
		})
	})

	Convey("Given neither a database nor an app directory", t, func() {
		cfg := &config.Config{Backend: "local"}
		cfg.Local.Path = t.TempDir()

		Convey("New refuses to build an app with nothing to do", func() {
			_, err := New(cfg, Options{Headless: true})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "nothing to back up")
		})
	})
}

func TestBuildBackend(t *testing.T) {
	Convey("Given a configuration", t, func() {
		cfg := &config.Config{}

		Convey("Each backend name selects its implementation", func() {
			for _, name := range []string{"drive", "sftp", "local", "s3"} {
				cfg.Backend = name
				b, err := buildBackend(cfg, false)
				So(err, ShouldBeNil)
				So(b.Name(), ShouldEqual, name)
			}
		})

		Convey("An unknown name is rejected", func() {
			cfg.Backend = "ftp"
			_, err := buildBackend(cfg, false)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestBuildProducers(t *testing.T) {
	Convey("Given a database-only configuration", t, func() {
		log := logger.New("info", "", false)
		cfg := &config.Config{}
		cfg.Database.Type = "mysql"

		Convey("Only the dump producer is built", func() {
			So(buildProducers(cfg, log), ShouldHaveLength, 1)
		})

		Convey("An existing app_dir adds the filesystem producer", func() {
			cfg.Files.AppDir = t.TempDir()
			So(buildProducers(cfg, log), ShouldHaveLength, 2)
		})

		Convey("A missing app_dir skips the filesystem stage", func() {
			cfg.Files.AppDir = filepath.Join(t.TempDir(), "gone")
			So(buildProducers(cfg, log), ShouldHaveLength, 1)
		})
	})
}

func TestBuildNotifiers(t *testing.T) {
	Convey("Given no notification settings", t, func() {
		log := logger.New("info", "", false)

		Convey("No route is built, telegram included", func() {
			So(buildNotifiers(&config.Config{}, log), ShouldBeEmpty)
		})
	})

	Convey("Given a complete announce destination", t, func() {
		log := logger.New("info", "", false)
		cfg := &config.Config{}
		cfg.Notify = config.NotifyConfig{Host: "127.0.0.1", Port: 4711, Secret: "s3cret"}

		Convey("The broadcaster is the only route", func() {
			So(buildNotifiers(cfg, log), ShouldHaveLength, 1)
		})
	})
}
