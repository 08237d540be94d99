// Package config resolves runtime settings from a TOML file, TT_* environment
// variables and built-in defaults, in that order of precedence (env wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configName = "config"
	configType = "toml"
	envPrefix  = "TT"
	appDirName = "tasktracker"

	BackendTOML   = "toml"
	BackendSQLite = "sqlite"

	SecretsPass = "pass"
	SecretsFile = "file"
)

type Config struct {
	API      APIConfig
	Realtime RealtimeConfig
	Session  SessionConfig
	Ledger   LedgerConfig
	Logging  LoggingConfig
}

type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

type RealtimeConfig struct {
	URL         string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
}

type SessionConfig struct {
	Backend    string
	Path       string
	SQLitePath string
	// SecretsBackend selects where the TOML backend keeps tokens: "pass"
	// tries pass first and falls back to files, "file" uses files only.
	SecretsBackend string
	SecretsDir     string
}

type LedgerConfig struct {
	Capacity int
}

type LoggingConfig struct {
	Enabled bool
	Level   string
	File    string
}

// Load reads configuration into v. A missing config file is not an error.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	dir, err := Dir()
	if err != nil {
		return Config{}, err
	}

	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(dir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, dir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		API: APIConfig{
			BaseURL: strings.TrimRight(strings.TrimSpace(v.GetString("api.base_url")), "/"),
			Timeout: v.GetDuration("api.timeout"),
		},
		Realtime: RealtimeConfig{
			URL:         strings.TrimSpace(v.GetString("realtime.url")),
			MaxAttempts: v.GetInt("realtime.max_attempts"),
			BaseDelay:   v.GetDuration("realtime.base_delay"),
			MaxDelay:    v.GetDuration("realtime.max_delay"),
			Jitter:      v.GetFloat64("realtime.jitter"),
		},
		Session: SessionConfig{
			Backend:        strings.ToLower(strings.TrimSpace(v.GetString("session.backend"))),
			Path:           v.GetString("session.path"),
			SQLitePath:     v.GetString("session.sqlite_path"),
			SecretsBackend: strings.ToLower(strings.TrimSpace(v.GetString("secrets.backend"))),
			SecretsDir:     v.GetString("secrets.dir"),
		},
		Ledger: LedgerConfig{
			Capacity: v.GetInt("ledger.capacity"),
		},
		Logging: LoggingConfig{
			Enabled: v.GetBool("logging.enabled"),
			Level:   v.GetString("logging.level"),
			File:    v.GetString("logging.file"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("api.base_url", "http://localhost:3001/api")
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("realtime.url", "ws://localhost:3005")
	v.SetDefault("realtime.max_attempts", 5)
	v.SetDefault("realtime.base_delay", time.Second)
	v.SetDefault("realtime.max_delay", 30*time.Second)
	v.SetDefault("realtime.jitter", 0.2)
	v.SetDefault("session.backend", BackendTOML)
	v.SetDefault("session.path", filepath.Join(dir, "session.toml"))
	v.SetDefault("session.sqlite_path", filepath.Join(dir, "session.db"))
	v.SetDefault("secrets.backend", SecretsPass)
	v.SetDefault("secrets.dir", filepath.Join(dir, "secrets"))
	v.SetDefault("ledger.capacity", 50)
	v.SetDefault("logging.enabled", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
}

func (c Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is empty")
	}
	if c.Realtime.URL == "" {
		return errors.New("realtime.url is empty")
	}
	if c.Realtime.MaxAttempts < 1 {
		return fmt.Errorf("realtime.max_attempts must be at least 1, got %d", c.Realtime.MaxAttempts)
	}
	if c.Realtime.Jitter < 0 || c.Realtime.Jitter > 1 {
		return fmt.Errorf("realtime.jitter must be within [0,1], got %v", c.Realtime.Jitter)
	}
	switch c.Session.Backend {
	case BackendTOML, BackendSQLite:
	default:
		return fmt.Errorf("unsupported session.backend %q", c.Session.Backend)
	}
	if strings.TrimSpace(c.Session.Path) == "" {
		return errors.New("session.path is empty")
	}
	switch c.Session.SecretsBackend {
	case SecretsPass, SecretsFile:
	default:
		return fmt.Errorf("unsupported secrets.backend %q", c.Session.SecretsBackend)
	}
	if c.Session.Backend == BackendSQLite && strings.TrimSpace(c.Session.SQLitePath) == "" {
		return errors.New("session.sqlite_path is empty")
	}
	if c.Ledger.Capacity < 1 {
		return fmt.Errorf("ledger.capacity must be at least 1, got %d", c.Ledger.Capacity)
	}

	return nil
}

// Dir returns the per-user configuration directory for the CLI.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return "", fmt.Errorf("resolve config directory: %w", errors.Join(err, homeErr))
		}
		base = filepath.Join(home, ".config")
	}

	return filepath.Join(base, appDirName), nil
}
