package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/0xysh/codex-switcher/internal/observability"
	"github.com/0xysh/codex-switcher/internal/oauthlistener"
	"github.com/0xysh/codex-switcher/internal/secretstore"
	"github.com/0xysh/codex-switcher/internal/session"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// SecretStorageType represents the backends supported for account secrets.
type SecretStorageType string

const (
	SecretStorageTypeKeyring SecretStorageType = "keyring"
	SecretStorageTypeFile    SecretStorageType = "file"
)

// Default configuration values
const (
	DefaultConfigLogFormat     = LogFormatText
	DefaultConfigLogExporter   = observability.ExporterNone
	DefaultConfigDirName       = ".codex-switcher"
	DefaultConfigSecretStorage = SecretStorageTypeKeyring
	DefaultConfigSecretService = secretstore.DefaultService
	DefaultConfigCallbackPort  = oauthlistener.DefaultPort
	DefaultConfigLoginTimeout  = oauthlistener.DefaultTimeout
)

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	// ConfigDir holds the account index and, by default, snapshots and file secrets.
	ConfigDir string `json:"config_dir"`
	// CodexHome is the Codex CLI home directory containing auth.json.
	CodexHome    string `json:"codex_home"`
	SnapshotsDir string `json:"snapshots_dir"`
}

// SecretsConfig describes how to construct the SecretStore.
type SecretsConfig struct {
	Storage SecretStorageType `json:"storage" validate:"required,oneof=keyring file"`

	// Storage-specific settings
	Service string `json:"service,omitempty"` // For keyring storage: service namespace
	Dir     string `json:"dir,omitempty"`     // For file storage: directory of secret files
}

// NewSecretStore creates a SecretStore from the secrets configuration.
func (s *SecretsConfig) NewSecretStore() (secretstore.SecretStore, error) {
	switch s.Storage {
	case SecretStorageTypeKeyring:
		return secretstore.NewKeyringStore(s.Service)
	case SecretStorageTypeFile:
		return secretstore.NewFileStore(s.Dir)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", s.Storage)
	}
}

// LoginConfig holds OAuth login settings.
type LoginConfig struct {
	// CallbackPort is the local port the browser redirects to.
	CallbackPort uint16 `json:"callback_port"`
	// Timeout bounds how long a login waits for the browser.
	Timeout time.Duration `json:"timeout" validate:"gt=0"`
}

// SessionConfig holds session switching settings.
type SessionConfig struct {
	// SnapshotOnSwitch copies the current auth.json into the snapshots directory before switching.
	SnapshotOnSwitch bool `json:"snapshot_on_switch"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel    slog.Level             `json:"log_level"`
	LogFormat   LogFormat              `json:"log_format" validate:"oneof=text json"`
	LogExporter observability.Exporter `json:"log_exporter" validate:"oneof=none stdout otlphttp otlpgrpc"`
	Paths       PathsConfig            `json:"paths"`
	Secrets     SecretsConfig          `json:"secrets"`
	Login       LoginConfig            `json:"login"`
	Session     SessionConfig          `json:"session"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.LogExporter == "" {
		c.LogExporter = DefaultConfigLogExporter
	}
	if c.Secrets.Storage == "" {
		c.Secrets.Storage = DefaultConfigSecretStorage
	}
	if c.Login.CallbackPort == 0 {
		c.Login.CallbackPort = DefaultConfigCallbackPort
	}
	if c.Login.Timeout == 0 {
		c.Login.Timeout = DefaultConfigLoginTimeout
	}

	if c.Paths.ConfigDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("paths.config_dir required (auto-detect failed: %w)", err)
		}
		c.Paths.ConfigDir = filepath.Join(home, DefaultConfigDirName)
	}
	if c.Paths.CodexHome == "" {
		codexHome, err := session.DefaultCodexHome()
		if err != nil {
			return fmt.Errorf("paths.codex_home required (auto-detect failed: %w)", err)
		}
		c.Paths.CodexHome = codexHome
	}
	if c.Paths.SnapshotsDir == "" {
		c.Paths.SnapshotsDir = filepath.Join(c.Paths.ConfigDir, "snapshots")
	}

	// Dynamic defaults based on storage type
	switch c.Secrets.Storage {
	case SecretStorageTypeKeyring:
		if c.Secrets.Service == "" {
			c.Secrets.Service = DefaultConfigSecretService
		}
	case SecretStorageTypeFile:
		if c.Secrets.Dir == "" {
			c.Secrets.Dir = filepath.Join(c.Paths.ConfigDir, "secrets")
		}
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Paths.ConfigDir == "" || c.Paths.CodexHome == "" || c.Paths.SnapshotsDir == "" {
		return errors.New("config_dir, codex_home and snapshots_dir are required")
	}

	switch c.Secrets.Storage {
	case SecretStorageTypeKeyring:
		if c.Secrets.Service == "" {
			return errors.New("service required for keyring storage")
		}
	case SecretStorageTypeFile:
		if c.Secrets.Dir == "" {
			return errors.New("dir required for file storage")
		}
	}

	return nil
}

// AccountsFile returns the location of the account index.
func (c *Config) AccountsFile() string {
	return filepath.Join(c.Paths.ConfigDir, "accounts.json")
}
