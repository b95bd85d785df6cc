// Package config provides configuration management for mosaic using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mosaictv/mosaic/pkg/bytesize"
)

// Default configuration values.
const (
	defaultServerPort       = 8000
	defaultReadTimeout      = 30 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultIdleTimeout      = 60 * time.Second
	defaultMaxStreamSize    = 500 * 1024 * 1024
	defaultChunkSize        = 64 * 1024
	defaultViewerQueueDepth = 100
	defaultStartupDeadline  = 30 * time.Second
	defaultWatchdogInterval = 5 * time.Second
	defaultProbeTimeout     = 15 * time.Second
	defaultServiceName      = "mosaic"
)

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Source  SourceConfig  `mapstructure:"source"`
	Encoder EncoderConfig `mapstructure:"encoder"`
	Stream  StreamConfig  `mapstructure:"stream"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout must stay zero: /stream responses are unbounded.
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// SourceConfig holds channel catalog source configuration.
type SourceConfig struct {
	// URL is an http(s) URL or a local file path to an M3U playlist.
	URL string `mapstructure:"url"`

	// UserAgent overrides the User-Agent sent to upstream servers.
	// Empty uses the mosaic build User-Agent.
	UserAgent string `mapstructure:"user_agent"`

	// Headers are extra headers forwarded on playlist and stream fetches.
	Headers map[string]string `mapstructure:"headers"`

	// ServiceName filters out catalog entries that point back at this
	// service, avoiding feedback loops.
	ServiceName string `mapstructure:"service_name"`
}

// EncoderConfig holds encoder probe configuration.
type EncoderConfig struct {
	// Preference narrows the probe: "auto", a profile name, or "cpu".
	Preference string `mapstructure:"preference"`

	// BinaryPath points at the ffmpeg binary (empty = auto-detect).
	BinaryPath string `mapstructure:"binary_path"`

	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// StreamConfig holds broadcast and lifecycle configuration.
type StreamConfig struct {
	// IdleTimeout is how long the encoder keeps running with no viewers.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// MaxStreamSize bounds cumulative output bytes per child instance;
	// exceeding it triggers a recycle.
	MaxStreamSize int64 `mapstructure:"max_stream_size"`

	// ChunkSize is the broadcast reader's read size.
	ChunkSize int `mapstructure:"chunk_size"`

	// ViewerQueueDepth bounds each viewer's pending-chunk backlog.
	ViewerQueueDepth int `mapstructure:"viewer_queue_depth"`

	// StartupDeadline bounds cold starts: first chunk or failure.
	StartupDeadline time.Duration `mapstructure:"startup_deadline"`

	WatchdogInterval time.Duration `mapstructure:"watchdog_interval"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with MOSAIC_ and use underscores
// for nesting. Example: MOSAIC_SERVER_PORT=8000.
//
// The bare legacy variables M3U_SOURCE, ENCODER_PREFERENCE, IDLE_TIMEOUT
// (seconds), PORT, and MAX_STREAM_SIZE (bytes) are honoured as aliases
// and take precedence over everything else.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/mosaic")
		v.AddConfigPath("$HOME/.mosaic")
	}

	v.SetEnvPrefix("MOSAIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	if err := applyLegacyEnv(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultReadTimeout)
	v.SetDefault("server.write_timeout", time.Duration(0))
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Source defaults
	v.SetDefault("source.url", "")
	v.SetDefault("source.user_agent", "")
	v.SetDefault("source.service_name", defaultServiceName)

	// Encoder defaults
	v.SetDefault("encoder.preference", "auto")
	v.SetDefault("encoder.binary_path", "")
	v.SetDefault("encoder.probe_timeout", defaultProbeTimeout)

	// Stream defaults
	v.SetDefault("stream.idle_timeout", defaultIdleTimeout)
	v.SetDefault("stream.max_stream_size", int64(defaultMaxStreamSize))
	v.SetDefault("stream.chunk_size", defaultChunkSize)
	v.SetDefault("stream.viewer_queue_depth", defaultViewerQueueDepth)
	v.SetDefault("stream.startup_deadline", defaultStartupDeadline)
	v.SetDefault("stream.watchdog_interval", defaultWatchdogInterval)
}

// applyLegacyEnv maps the original flat environment variables onto the
// nested configuration keys.
func applyLegacyEnv(v *viper.Viper) error {
	if s := os.Getenv("M3U_SOURCE"); s != "" {
		v.Set("source.url", s)
	}
	if s := os.Getenv("ENCODER_PREFERENCE"); s != "" {
		v.Set("encoder.preference", s)
	}
	if s := os.Getenv("IDLE_TIMEOUT"); s != "" {
		secs, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("parsing IDLE_TIMEOUT: %w", err)
		}
		v.Set("stream.idle_timeout", time.Duration(secs)*time.Second)
	}
	if s := os.Getenv("PORT"); s != "" {
		port, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("parsing PORT: %w", err)
		}
		v.Set("server.port", port)
	}
	if s := os.Getenv("MAX_STREAM_SIZE"); s != "" {
		// plain integers are bytes; human sizes like "500MB" work too
		size, err := bytesize.Parse(s)
		if err != nil {
			return fmt.Errorf("parsing MAX_STREAM_SIZE: %w", err)
		}
		v.Set("stream.max_stream_size", size.Bytes())
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	validPrefs := map[string]bool{"auto": true, "nvenc": true, "qsv": true, "vaapi": true, "cpu": true}
	if !validPrefs[c.Encoder.Preference] {
		return fmt.Errorf("encoder.preference must be one of: auto, nvenc, qsv, vaapi, cpu")
	}

	if c.Stream.IdleTimeout <= 0 {
		return fmt.Errorf("stream.idle_timeout must be positive")
	}
	if c.Stream.MaxStreamSize < 1 {
		return fmt.Errorf("stream.max_stream_size must be at least 1 byte")
	}
	if c.Stream.ChunkSize < 1 {
		return fmt.Errorf("stream.chunk_size must be at least 1 byte")
	}
	if c.Stream.ViewerQueueDepth < 1 {
		return fmt.Errorf("stream.viewer_queue_depth must be at least 1")
	}
	if c.Stream.StartupDeadline <= 0 {
		return fmt.Errorf("stream.startup_deadline must be positive")
	}
	if c.Stream.WatchdogInterval <= 0 {
		return fmt.Errorf("stream.watchdog_interval must be positive")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
