package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/kumarlokesh/cow-trie/internal/store"
	"github.com/kumarlokesh/cow-trie/internal/wal"
)

// EnvPrefix prefixes environment overrides, e.g. COWTRIE_SERVER_PORT.
const EnvPrefix = "COWTRIE"

// Config holds all configuration for the store and its binaries
type Config struct {
	Store  StoreConfig  `mapstructure:"store"`
	WAL    WALConfig    `mapstructure:"wal"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
}

// StoreConfig holds versioned store configuration
type StoreConfig struct {
	Dir         string `mapstructure:"dir"`
	MaxVersions int    `mapstructure:"max_versions"`
}

// WALConfig holds write-ahead log configuration
type WALConfig struct {
	Sync          bool          `mapstructure:"sync"`
	SegmentSize   int64         `mapstructure:"segment_size"`
	BufferSize    int           `mapstructure:"buffer_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Option overrides a built-in default before the file and environment are
// read.
type Option func(v *viper.Viper)

// WithDefault replaces the default for key. Values set in the config file or
// the environment still take precedence.
func WithDefault(key string, value any) Option {
	return func(v *viper.Viper) {
		v.SetDefault(key, value)
	}
}

// LoadConfig loads configuration from defaults, an optional file and
// environment variables, in increasing order of precedence.
func LoadConfig(configPath string, opts ...Option) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	for _, opt := range opts {
		opt(v)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("store.dir", "./data")
	v.SetDefault("store.max_versions", 16)

	v.SetDefault("wal.sync", true)
	v.SetDefault("wal.segment_size", 64*1024*1024) // 64MB
	v.SetDefault("wal.buffer_size", 64*1024)
	v.SetDefault("wal.flush_interval", "1s")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Store.Dir == "" {
		return fmt.Errorf("store dir is required")
	}
	if c.Store.MaxVersions < 0 {
		return fmt.Errorf("invalid max versions: %d", c.Store.MaxVersions)
	}
	if c.WAL.SegmentSize <= 0 {
		return fmt.Errorf("invalid wal segment size: %d", c.WAL.SegmentSize)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	return nil
}

// StoreConfig converts c into the options store.Open takes
func (c *Config) StoreConfig(logger zerolog.Logger) store.Config {
	return store.Config{
		Dir:         c.Store.Dir,
		MaxVersions: c.Store.MaxVersions,
		WAL: wal.Config{
			Sync:          c.WAL.Sync,
			SegmentSize:   c.WAL.SegmentSize,
			BufferSize:    c.WAL.BufferSize,
			FlushInterval: c.WAL.FlushInterval,
		},
		Logger: logger,
	}
}

// Addr returns the host:port the server listens on
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewLogger builds the process logger described by c
func (c *LogConfig) NewLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if c.JSON {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// GetConfigPath returns the first config file found in the default locations,
// or an error if there is none.
func GetConfigPath() (string, error) {
	configPaths := []string{
		".",
		"./configs",
		"/etc/cowtrie",
	}

	for _, path := range configPaths {
		configPath := filepath.Join(path, "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
	}

	return "", fmt.Errorf("config file not found in any of the default locations")
}
