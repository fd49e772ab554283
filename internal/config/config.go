// Package config loads YAML configuration for the dungeon server and
// client host processes. Defaults are always valid on their own; a config
// file, when present, only overrides fields it sets. Configuration loading
// is a host-integration concern, kept out of the core and only consumed
// at the cmd/ entrypoints.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Server holds the dungeon game server's configuration.
type Server struct {
	BindAddress string `yaml:"bind_address"`
	Port int `yaml:"port"`

	TickHz int `yaml:"tick_hz"`
	SnapshotHz int `yaml:"snapshot_hz"`

	ReadTimeout time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	SendQueueSize int `yaml:"send_queue_size"`

	LevelName string `yaml:"level_name"`

	LogLevel string `yaml:"log_level"`

	Audit AuditConfig `yaml:"audit"`
}

// AuditConfig controls the optional session-lifecycle audit sink. When
// Enabled is false, no database connection is attempted and the core runs
// with audit.Sink(nil).
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
	DSN DatabaseConfig `yaml:"database"`
}

// DatabaseConfig holds PostgreSQL connection parameters for the audit sink.
type DatabaseConfig struct {
	Host string `yaml:"host"`
	Port int `yaml:"port"`
	User string `yaml:"user"`
	Password string `yaml:"password"`
	DBName string `yaml:"dbname"`
	SSLMode string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// DefaultServer returns Server config with sensible defaults.
func DefaultServer() Server {
	return Server{
		BindAddress: "0.0.0.0",
		Port: 7777,
		TickHz: 20,
		SnapshotHz: 20,
		ReadTimeout: 120 * time.Second,
		WriteTimeout: 5 * time.Second,
		SendQueueSize: 256,
		LevelName: "maze",
		LogLevel: "info",
		Audit: AuditConfig{
			Enabled: false,
			DSN: DatabaseConfig{
				Host: "127.0.0.1",
				Port: 5432,
				User: "dungeonnet",
				Password: "dungeonnet",
				DBName: "dungeonnet",
				SSLMode: "disable",
			},
		},
	}
}

// LoadServer loads server config from a YAML file, falling back to
// DefaultServer() fields for anything the file doesn't set. A missing file
// is not an error — it just means "use the defaults."
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Client holds the thin client's configuration.
type Client struct {
	ServerHost string `yaml:"server_host"`
	ServerPort int `yaml:"server_port"`
	PlayerName string `yaml:"player_name"`

	RegisterRetryInterval time.Duration `yaml:"register_retry_interval"`
	RegisterMaxAttempts int `yaml:"register_max_attempts"`

	LogLevel string `yaml:"log_level"`
}

// DefaultClient returns Client config with sensible defaults.
func DefaultClient() Client {
	return Client{
		ServerHost: "127.0.0.1",
		ServerPort: 7777,
		RegisterRetryInterval: 500 * time.Millisecond,
		RegisterMaxAttempts: 5,
		LogLevel: "info",
	}
}

// LoadClient loads client config from a YAML file, falling back to
// DefaultClient() fields for anything the file doesn't set.
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
