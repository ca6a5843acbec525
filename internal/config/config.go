package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Backend selects where browser contexts are launched
type Backend string

const (
	BackendLocal  Backend = "local"
	BackendDocker Backend = "docker"
)

// Config holds all runtime settings
type Config struct {
	ListenAddr       string        `mapstructure:"listen_addr"`
	DataDir          string        `mapstructure:"data_dir"`
	DBPath           string        `mapstructure:"db_path"`
	SnapshotDir      string        `mapstructure:"snapshot_dir"`
	Backend          Backend       `mapstructure:"backend"`
	ChromePath       string        `mapstructure:"chrome_path"`
	Headless         bool          `mapstructure:"headless"`
	DockerImage      string        `mapstructure:"docker_image"`
	MaxSessions      int           `mapstructure:"max_sessions"`
	HostWidth        int           `mapstructure:"host_width"`
	HostHeight       int           `mapstructure:"host_height"`
	LoadTimeout      time.Duration `mapstructure:"load_timeout"`
	SettleDelay      time.Duration `mapstructure:"settle_delay"`
	RateLimitPerHour int           `mapstructure:"rate_limit_per_hour"`
	RateLimitBurst   int           `mapstructure:"rate_limit_burst"`
	LogLevel         string        `mapstructure:"log_level"`
	LogDev           bool          `mapstructure:"log_dev"`
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("data_dir", "./storage")
	v.SetDefault("db_path", "")
	v.SetDefault("snapshot_dir", "")
	v.SetDefault("backend", string(BackendLocal))
	v.SetDefault("chrome_path", "")
	v.SetDefault("headless", false)
	v.SetDefault("docker_image", "browserless/chrome:latest")
	v.SetDefault("max_sessions", 0)
	v.SetDefault("host_width", 1600)
	v.SetDefault("host_height", 900)
	v.SetDefault("load_timeout", 25*time.Second)
	v.SetDefault("settle_delay", 2*time.Second)
	v.SetDefault("rate_limit_per_hour", 600)
	v.SetDefault("rate_limit_burst", 20)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_dev", false)
}

// Load reads .env, the optional config file and HYPERCART_* environment variables
func Load(v *viper.Viper, configFile string) (*Config, error) {
	// A missing .env is fine, system environment is used instead
	_ = godotenv.Load()

	SetDefaults(v)
	v.SetEnvPrefix("hypercart")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("hypercart")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "hypercart.db")
	}
	if c.SnapshotDir == "" {
		c.SnapshotDir = filepath.Join(c.DataDir, "snapshots")
	}
	switch c.Backend {
	case BackendLocal, BackendDocker:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("max_sessions must not be negative")
	}
	if c.LoadTimeout <= 0 {
		return fmt.Errorf("load_timeout must be positive")
	}
	return nil
}

// PartitionDir is where per-account browser profiles live
func (c *Config) PartitionDir() string {
	return filepath.Join(c.DataDir, "partitions")
}
