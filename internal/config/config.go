// Package config loads the TOML configuration for both tablejohn
// subcommands (server, worker) via viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalidWorkerTimeout is returned when worker_timeout is non-positive.
var ErrInvalidWorkerTimeout = errors.New("worker_timeout must be positive")

// ErrNoServers is returned when a worker config names no servers.
var ErrNoServers = errors.New("worker config must name at least one server")

const (
	defaultListen        = "127.0.0.1:8880"
	defaultWorkerTimeout = 60 * time.Second
	defaultPing          = 5 * time.Second
	defaultBatch         = 60 * time.Second
)

// ServerConfig is the configuration for `tablejohn server`.
type ServerConfig struct {
	Listen        string        `mapstructure:"listen"`
	DBPath        string        `mapstructure:"db_path"`
	RepoPath      string        `mapstructure:"repo_path"`
	RepoFetchURL  string        `mapstructure:"repo_fetch_url"`
	BenchRepoPath string        `mapstructure:"bench_repo_path"`
	WorkerToken   string        `mapstructure:"worker_token"`
	WorkerTimeout time.Duration `mapstructure:"worker_timeout"`
	IngestPeriod  time.Duration `mapstructure:"ingest_period"`
	LogJSON       bool          `mapstructure:"log_json"`
}

// WorkerServerConfig is one server entry in a worker's configuration,
// used when a single worker splits its time across multiple servers.
type WorkerServerConfig struct {
	Name  string `mapstructure:"name"`
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"worker_token"`
}

// WorkerConfig is the configuration for `tablejohn worker`.
type WorkerConfig struct {
	Name    string               `mapstructure:"name"`
	Info    string               `mapstructure:"info"`
	Ping    time.Duration        `mapstructure:"ping"`
	Batch   time.Duration        `mapstructure:"batch"`
	LogJSON bool                 `mapstructure:"log_json"`
	Servers []WorkerServerConfig `mapstructure:"servers"`
}

// LoadServerConfig reads and validates a server config from path.
func LoadServerConfig(path string) (*ServerConfig, error) {
	v := newViper(path)

	v.SetDefault("listen", defaultListen)
	v.SetDefault("worker_timeout", defaultWorkerTimeout)
	v.SetDefault("ingest_period", 30*time.Second)
	v.SetDefault("log_json", true)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read server config: %w", err)
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal server config: %w", err)
	}

	if cfg.WorkerTimeout <= 0 {
		return nil, ErrInvalidWorkerTimeout
	}

	return &cfg, nil
}

// LoadWorkerConfig reads and validates a worker config from path.
func LoadWorkerConfig(path string) (*WorkerConfig, error) {
	v := newViper(path)

	v.SetDefault("ping", defaultPing)
	v.SetDefault("batch", defaultBatch)
	v.SetDefault("log_json", true)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read worker config: %w", err)
	}

	var cfg WorkerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal worker config: %w", err)
	}

	if len(cfg.Servers) == 0 {
		return nil, ErrNoServers
	}

	return &cfg, nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetEnvPrefix("TABLEJOHN")
	v.AutomaticEnv()

	return v
}
