package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
	Audit   AuditConfig   `yaml:"audit"`
	Formula FormulaConfig `yaml:"formula"`
	Metrics MetricsConfig `yaml:"metrics"`
	Theme   string        `yaml:"theme"` // "default" or "light"
}

// StorageConfig selects the database backing the registry and every
// collection table. DSN wins over the individual connection fields.
type StorageConfig struct {
	Adapter     string `yaml:"adapter"`
	DSN         string `yaml:"dsn,omitempty"`
	Host        string `yaml:"host,omitempty"`
	Port        int    `yaml:"port,omitempty"`
	User        string `yaml:"user,omitempty"`
	Password    string `yaml:"password,omitempty"`
	Database    string `yaml:"database,omitempty"`
	File        string `yaml:"file,omitempty"`
	DropColumns string `yaml:"drop_columns"` // "best-effort" or "strict"
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// AuditConfig holds mutation journal settings. An empty Path selects
// ConfigDir()/audit.jsonl.
type AuditConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path,omitempty"`
	MaxSizeMB int    `yaml:"max_size_mb"`
}

// FormulaConfig holds expression engine settings.
type FormulaConfig struct {
	CacheSize int `yaml:"cache_size"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Adapter:     "sqlite",
			DropColumns: "best-effort",
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
		},
		Audit: AuditConfig{
			Enabled:   true,
			MaxSizeMB: 10,
		},
		Formula: FormulaConfig{
			CacheSize: 256,
		},
		Theme: "default",
	}
}

// ConfigDir returns the tabula configuration directory path.
// It uses os.UserConfigDir to locate the base config directory and
// appends "tabula" to it, typically resulting in ~/.config/tabula/.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config dir: %w", err)
	}
	return filepath.Join(base, "tabula"), nil
}

// Load reads a Config from the YAML file at path. If the file does not exist,
// it returns DefaultConfig without error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads configuration from the default path
// (ConfigDir()/config.yaml).
func LoadDefault() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return Load(filepath.Join(dir, "config.yaml"))
}

// Save writes the Config to the YAML file at path, creating any necessary
// parent directories.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SaveDefault writes the Config to the default path
// (ConfigDir()/config.yaml).
func (c *Config) SaveDefault() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return c.Save(filepath.Join(dir, "config.yaml"))
}

var (
	adapters  = []string{"sqlite", "postgres", "mysql", "duckdb"}
	levels    = []string{"debug", "info", "warn", "error"}
	formats   = []string{"console", "json"}
	policies  = []string{"best-effort", "strict"}
	themeList = []string{"default", "light"}
)

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var problems []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Errorf(format, args...))
		}
	}
	check(oneOf(c.Storage.Adapter, adapters), "storage.adapter: %q is not one of %s", c.Storage.Adapter, strings.Join(adapters, ", "))
	check(c.Storage.DropColumns == "" || oneOf(c.Storage.DropColumns, policies), "storage.drop_columns: %q is not one of %s", c.Storage.DropColumns, strings.Join(policies, ", "))
	check(c.Storage.Port >= 0 && c.Storage.Port <= 65535, "storage.port: %d is out of range", c.Storage.Port)
	check(oneOf(c.Log.Level, levels), "log.level: %q is not one of %s", c.Log.Level, strings.Join(levels, ", "))
	check(c.Log.Format == "" || oneOf(c.Log.Format, formats), "log.format: %q is not one of %s", c.Log.Format, strings.Join(formats, ", "))
	check(c.Audit.MaxSizeMB >= 0, "audit.max_size_mb: must not be negative")
	check(c.Formula.CacheSize >= 0, "formula.cache_size: must not be negative")
	check(c.Theme == "" || oneOf(c.Theme, themeList), "theme: %q is not one of %s", c.Theme, strings.Join(themeList, ", "))
	return errors.Join(problems...)
}

// DataSource returns the connection string for the configured adapter.
// A sqlite store without a DSN or file lives in ConfigDir()/tracker.db.
func (c *Config) DataSource() (string, error) {
	if dsn := c.Storage.BuildDSN(); dsn != "" {
		return dsn, nil
	}
	if !strings.EqualFold(c.Storage.Adapter, "sqlite") {
		return "", fmt.Errorf("storage: %s needs a dsn or host", c.Storage.Adapter)
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return filepath.Join(dir, "tracker.db"), nil
}

// AuditPath returns the journal location.
func (c *Config) AuditPath() (string, error) {
	if c.Audit.Path != "" {
		return c.Audit.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "audit.jsonl"), nil
}

// BuildDSN constructs a connection string from the individual fields of a
// StorageConfig. If DSN is already set, it is returned as-is. For
// file-based adapters (sqlite, duckdb) it returns the File field. For
// network adapters it builds "user:password@host:port/database", or ""
// when no host, user or database is given.
func (sc *StorageConfig) BuildDSN() string {
	if sc.DSN != "" {
		return sc.DSN
	}

	adapter := strings.ToLower(sc.Adapter)
	if adapter == "sqlite" || adapter == "duckdb" {
		return sc.File
	}
	if sc.Host == "" && sc.User == "" && sc.Database == "" {
		return ""
	}

	var b strings.Builder

	if sc.User != "" {
		b.WriteString(sc.User)
		if sc.Password != "" {
			b.WriteByte(':')
			b.WriteString(sc.Password)
		}
		b.WriteByte('@')
	}

	host := sc.Host
	if host == "" {
		host = "localhost"
	}
	b.WriteString(host)

	if sc.Port > 0 {
		fmt.Fprintf(&b, ":%d", sc.Port)
	}

	if sc.Database != "" {
		b.WriteByte('/')
		b.WriteString(sc.Database)
	}

	return b.String()
}

// DisplayString returns a human-readable representation of the storage
// location without credentials, formatted as "adapter://host:port/database"
// for network adapters or "adapter://file" for file-based adapters.
func (sc *StorageConfig) DisplayString() string {
	adapter := strings.ToLower(sc.Adapter)
	if adapter == "sqlite" || adapter == "duckdb" {
		file := sc.File
		if file == "" {
			file = sc.DSN
		}
		return fmt.Sprintf("%s://%s", sc.Adapter, file)
	}
	if sc.DSN != "" && sc.Host == "" {
		return fmt.Sprintf("%s (dsn)", sc.Adapter)
	}

	host := sc.Host
	if host == "" {
		host = "localhost"
	}

	var location string
	if sc.Port > 0 {
		location = fmt.Sprintf("%s:%d", host, sc.Port)
	} else {
		location = host
	}

	db := sc.Database
	if db != "" {
		return fmt.Sprintf("%s://%s/%s", sc.Adapter, location, db)
	}
	return fmt.Sprintf("%s://%s", sc.Adapter, location)
}
