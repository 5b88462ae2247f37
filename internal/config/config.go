package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// ErrCreated is returned by Load when no configuration file existed and a
// default one was written out. The run must abort so the operator can fill
// it in.
var ErrCreated = errors.New("default configuration created")

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Backend  string         `mapstructure:"backend"`
	Database DatabaseConfig `mapstructure:"database"`
	Files    FilesConfig    `mapstructure:"files"`
	Backup   BackupConfig   `mapstructure:"backup"`
	Drive    DriveConfig    `mapstructure:"drive"`
	SFTP     SFTPConfig     `mapstructure:"sftp"`
	Local    LocalConfig    `mapstructure:"local"`
	S3       S3Config       `mapstructure:"s3"`
	Notify   NotifyConfig   `mapstructure:"notify"`

	v    *viper.Viper
	path string
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

type DatabaseConfig struct {
	Type     string `mapstructure:"type"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`

	// AuthDatabase is the authSource for mongodb; the other engines ignore
	// it.
	AuthDatabase string `mapstructure:"auth_database"`

	// Optional override for the dump tool binary (mysqldump, pg_dump,
	// mongodump). Empty means look it up on PATH.
	DumpCommand string `mapstructure:"dump_command"`
}

type FilesConfig struct {
	// Data directory of the application whose files get archived. Empty, or
	// missing on disk, skips the filesystem stage entirely.
	AppDir string `mapstructure:"app_dir"`
}

type BackupConfig struct {
	// Folder is the name of the backup container resolved on the backend.
	Folder   string `mapstructure:"folder"`
	Compress bool   `mapstructure:"compress"`
}

type DriveConfig struct {
	ClientID     string      `mapstructure:"client_id"`
	ClientSecret string      `mapstructure:"client_secret"`
	Token        TokenRecord `mapstructure:"token"`
}

// TokenRecord is the persisted credential state of the delegated
// authorization flow. It is rewritten in place whenever the flow issues or
// rotates a token, and lands on disk only when the whole run succeeds.
type TokenRecord struct {
	AccessToken  string `mapstructure:"access_token"`
	TokenType    string `mapstructure:"token_type"`
	ExpiresIn    int64  `mapstructure:"expires_in"`
	RefreshToken string `mapstructure:"refresh_token"`
	IssuedAt     int64  `mapstructure:"issued_at"`
}

// Empty reports whether no token has ever been stored.
func (t TokenRecord) Empty() bool {
	return t.AccessToken == "" && t.RefreshToken == ""
}

type SFTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Dir      string `mapstructure:"dir"`

	// HostIdentity pins the expected server identity as
	// "type#base64(hostkey)#base64(fingerprint)". Empty accepts any host.
	HostIdentity   string        `mapstructure:"host_identity"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type LocalConfig struct {
	Path string `mapstructure:"path"`
}

type S3Config struct {
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

type NotifyConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	Secret string `mapstructure:"secret"`

	// BroadcastAll routes informational messages to the channel too.
	// Fatal messages are always broadcast.
	BroadcastAll bool `mapstructure:"broadcast_all"`

	Telegram TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// DefaultPath returns the well-known configuration location under the
// user's home directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "packmule", "config.yaml"), nil
}

// Load reads the configuration file at path (the well-known default when
// path is empty). When the file does not exist, a commented template is
// written there and ErrCreated is returned.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefault(path); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
		return nil, fmt.Errorf("no config at %s, wrote a template: %w", path, ErrCreated)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("app.name", "packmule")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("backend", "local")
	v.SetDefault("database.type", "mysql")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 3306)
	v.SetDefault("backup.folder", "Backups")
	v.SetDefault("backup.compress", true)
	v.SetDefault("sftp.port", 22)
	v.SetDefault("sftp.connect_timeout", "30s")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := &Config{v: v, path: path}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Backend {
	case "drive", "sftp", "local", "s3":
	case "":
		return fmt.Errorf("backend is required")
	default:
		return fmt.Errorf("unknown backend: %s", c.Backend)
	}

	switch c.Database.Type {
	case "mysql", "postgresql", "mongodb":
	default:
		return fmt.Errorf("unknown database type: %s", c.Database.Type)
	}

	if c.Backup.Folder == "" {
		return fmt.Errorf("backup.folder is required")
	}

	return nil
}

// Path reports where the configuration was loaded from.
func (c *Config) Path() string { return c.path }

// Save serializes the configuration in full back to the file it was loaded
// from. Only keys this version knows are overwritten in the underlying
// store, so keys from other backend variants or newer versions survive the
// round trip untouched.
func (c *Config) Save() error {
	if c.v == nil || c.path == "" {
		return fmt.Errorf("configuration was not loaded from a file")
	}

	c.v.Set("app.name", c.App.Name)
	c.v.Set("app.log_level", c.App.LogLevel)
	c.v.Set("app.log_file", c.App.LogFile)
	c.v.Set("backend", c.Backend)
	c.v.Set("database.type", c.Database.Type)
	c.v.Set("database.host", c.Database.Host)
	c.v.Set("database.port", c.Database.Port)
	c.v.Set("database.username", c.Database.Username)
	c.v.Set("database.password", c.Database.Password)
	c.v.Set("database.database", c.Database.Database)
	c.v.Set("database.auth_database", c.Database.AuthDatabase)
	c.v.Set("database.dump_command", c.Database.DumpCommand)
	c.v.Set("files.app_dir", c.Files.AppDir)
	c.v.Set("backup.folder", c.Backup.Folder)
	c.v.Set("backup.compress", c.Backup.Compress)
	c.v.Set("drive.client_id", c.Drive.ClientID)
	c.v.Set("drive.client_secret", c.Drive.ClientSecret)
	c.v.Set("drive.token.access_token", c.Drive.Token.AccessToken)
	c.v.Set("drive.token.token_type", c.Drive.Token.TokenType)
	c.v.Set("drive.token.expires_in", c.Drive.Token.ExpiresIn)
	c.v.Set("drive.token.refresh_token", c.Drive.Token.RefreshToken)
	c.v.Set("drive.token.issued_at", c.Drive.Token.IssuedAt)
	c.v.Set("sftp.host", c.SFTP.Host)
	c.v.Set("sftp.port", c.SFTP.Port)
	c.v.Set("sftp.username", c.SFTP.Username)
	c.v.Set("sftp.password", c.SFTP.Password)
	c.v.Set("sftp.dir", c.SFTP.Dir)
	c.v.Set("sftp.host_identity", c.SFTP.HostIdentity)
	c.v.Set("sftp.connect_timeout", c.SFTP.ConnectTimeout.String())
	c.v.Set("local.path", c.Local.Path)
	c.v.Set("s3.region", c.S3.Region)
	c.v.Set("s3.bucket", c.S3.Bucket)
	c.v.Set("s3.access_key", c.S3.AccessKey)
	c.v.Set("s3.secret_key", c.S3.SecretKey)
	c.v.Set("s3.prefix", c.S3.Prefix)
	c.v.Set("notify.host", c.Notify.Host)
	c.v.Set("notify.port", c.Notify.Port)
	c.v.Set("notify.secret", c.Notify.Secret)
	c.v.Set("notify.broadcast_all", c.Notify.BroadcastAll)
	c.v.Set("notify.telegram.bot_token", c.Notify.Telegram.BotToken)
	c.v.Set("notify.telegram.chat_id", c.Notify.Telegram.ChatID)

	if err := c.v.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

const defaultYAML = `# packmule configuration.
# Fill in the backend you use; sections of other backends are ignored but
# kept as-is across runs.

app:
  name: packmule
  log_level: info
  # log_file: /var/log/packmule/packmule.log

# One of: drive, sftp, local, s3
backend: local

database:
  type: mysql
  host: 127.0.0.1
  port: 3306
  username: ""
  password: ""
  # Empty dumps all databases.
  database: ""

files:
  # Data directory of the application to archive. Leave empty to skip the
  # filesystem stage.
  app_dir: ""

backup:
  folder: Backups
  compress: true

drive:
  client_id: ""
  client_secret: ""
  token:
    access_token: ""
    token_type: ""
    expires_in: 0
    refresh_token: ""
    issued_at: 0

sftp:
  host: ""
  port: 22
  username: ""
  password: ""
  dir: backups
  # Pinned server identity "type#base64(hostkey)#base64(fingerprint)".
  # Empty accepts any host.
  host_identity: ""
  connect_timeout: 30s

local:
  path: ""

s3:
  region: ""
  bucket: ""
  access_key: ""
  secret_key: ""
  prefix: ""

notify:
  host: ""
  port: 0
  secret: ""
  broadcast_all: false
  telegram:
    bot_token: ""
    chat_id: 0
`

func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(defaultYAML), 0o600)
}
