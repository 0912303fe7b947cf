// Package config provides configuration management for hlsvault using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort            = 8080
	defaultServerTimeout         = 30 * time.Second
	defaultShutdownTimeout       = 10 * time.Second
	defaultMaxOpenConns          = 25
	defaultMaxIdleConns          = 10
	defaultConnMaxIdleTime       = 30 * time.Minute
	defaultMaxSegmentBytes       = 18 * 1024 * 1024 // 18MB, under common 20MB chat-platform caps
	defaultMinSegmentDuration    = 2 * time.Second
	defaultMaxSegmentDuration    = 30 * time.Second
	defaultPlanTimeBudget        = 20 * time.Second
	defaultReencodeSafetyFactor  = 0.9
	defaultCacheSize             = 512 * 1024 * 1024 // 512MB
	defaultCacheTTL              = 10 * time.Minute
	defaultPreloadSegments       = 3
	defaultMaxConcurrentPreloads = 2
	defaultUploadConcurrency     = 4
	defaultUploadRetries         = 3
	defaultUploadRetryDelay      = 5 * time.Second
	defaultUploadTimeout         = 10 * time.Minute
	defaultInfoTimeout           = 30 * time.Second
	defaultDownloadTimeout       = 5 * time.Minute
	defaultPingTimeout           = 10 * time.Second
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Planner    PlannerConfig    `mapstructure:"planner"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Upload     UploadConfig     `mapstructure:"upload"`
	Accounts   []AccountConfig  `mapstructure:"accounts"`
	Platform   PlatformConfig   `mapstructure:"platform"`
	FFmpeg     FFmpegConfig     `mapstructure:"ffmpeg"`
	Public     PublicConfig     `mapstructure:"public"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	BaseDir    string `mapstructure:"base_dir"`
	ScratchDir string `mapstructure:"scratch_dir"`
	CacheDir   string `mapstructure:"cache_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// PlannerConfig holds segment-planning configuration.
type PlannerConfig struct {
	MaxSegmentBytes      ByteSize      `mapstructure:"max_segment_bytes"`
	MinSegmentDuration   time.Duration `mapstructure:"min_segment_duration"`
	MaxSegmentDuration   time.Duration `mapstructure:"max_segment_duration"`
	PlanTimeBudget       time.Duration `mapstructure:"plan_time_budget"`
	ReencodeSafetyFactor float64       `mapstructure:"reencode_safety_factor"`
}

// CacheConfig holds segment-cache configuration.
type CacheConfig struct {
	Type                  string        `mapstructure:"type"` // memory, disk
	Size                  ByteSize      `mapstructure:"size"`
	TTL                   time.Duration `mapstructure:"ttl"`
	PreloadSegments       int           `mapstructure:"preload_segments"`
	MaxConcurrentPreloads int           `mapstructure:"max_concurrent_preloads"`
}

// UploadConfig holds upload-distributor configuration.
type UploadConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	Retries     int           `mapstructure:"retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

// AccountConfig describes one blob-store account the distributor can assign
// uploads to.
type AccountConfig struct {
	ID            string `mapstructure:"id"`
	Credential    string `mapstructure:"credential"`
	DestinationID string `mapstructure:"destination_id"`
}

// PlatformConfig holds connection settings for the external chat/file
// platform that backs the blob store.
type PlatformConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	UploadTimeout   time.Duration `mapstructure:"upload_timeout"`
	InfoTimeout     time.Duration `mapstructure:"info_timeout"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath      string   `mapstructure:"binary_path"`      // Path to ffmpeg binary (empty = auto-detect)
	ProbePath       string   `mapstructure:"probe_path"`       // Path to ffprobe binary (empty = auto-detect)
	HWAccelPriority []string `mapstructure:"hwaccel_priority"` // Priority order: vaapi, nvenc, qsv, amf
}

// PublicConfig controls how absolute URLs are assembled for HLS output.
type PublicConfig struct {
	PublicDomain string `mapstructure:"public_domain"` // empty = derive from request Host
	ForceHTTPS   bool   `mapstructure:"force_https"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with HLSVAULT_ and use underscores for
// nesting. Example: HLSVAULT_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/hlsvault")
		v.AddConfigPath("$HOME/.hlsvault")
	}

	v.SetEnvPrefix("HLSVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
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
// This should be called before reading the config file to ensure defaults
// are in place.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "hlsvault.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.scratch_dir", "scratch")
	v.SetDefault("storage.cache_dir", "cache")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("planner.max_segment_bytes", defaultMaxSegmentBytes)
	v.SetDefault("planner.min_segment_duration", defaultMinSegmentDuration)
	v.SetDefault("planner.max_segment_duration", defaultMaxSegmentDuration)
	v.SetDefault("planner.plan_time_budget", defaultPlanTimeBudget)
	v.SetDefault("planner.reencode_safety_factor", defaultReencodeSafetyFactor)

	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.size", defaultCacheSize)
	v.SetDefault("cache.ttl", defaultCacheTTL)
	v.SetDefault("cache.preload_segments", defaultPreloadSegments)
	v.SetDefault("cache.max_concurrent_preloads", defaultMaxConcurrentPreloads)

	v.SetDefault("upload.concurrency", defaultUploadConcurrency)
	v.SetDefault("upload.retries", defaultUploadRetries)
	v.SetDefault("upload.retry_delay", defaultUploadRetryDelay)

	v.SetDefault("platform.base_url", "")
	v.SetDefault("platform.upload_timeout", defaultUploadTimeout)
	v.SetDefault("platform.info_timeout", defaultInfoTimeout)
	v.SetDefault("platform.download_timeout", defaultDownloadTimeout)
	v.SetDefault("platform.ping_timeout", defaultPingTimeout)

	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.hwaccel_priority", []string{"vaapi", "nvenc", "qsv", "amf"})

	v.SetDefault("public.public_domain", "")
	v.SetDefault("public.force_https", false)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Planner.MaxSegmentBytes <= 0 {
		return fmt.Errorf("planner.max_segment_bytes must be positive")
	}
	if c.Planner.MinSegmentDuration <= 0 || c.Planner.MaxSegmentDuration <= c.Planner.MinSegmentDuration {
		return fmt.Errorf("planner.max_segment_duration must be greater than planner.min_segment_duration")
	}
	if c.Planner.ReencodeSafetyFactor <= 0 || c.Planner.ReencodeSafetyFactor > 1 {
		return fmt.Errorf("planner.reencode_safety_factor must be in (0, 1]")
	}

	validCacheTypes := map[string]bool{"memory": true, "disk": true}
	if !validCacheTypes[c.Cache.Type] {
		return fmt.Errorf("cache.type must be one of: memory, disk")
	}

	if c.Upload.Concurrency < 1 {
		return fmt.Errorf("upload.concurrency must be at least 1")
	}

	if c.Platform.BaseURL == "" {
		return fmt.Errorf("platform.base_url is required")
	}

	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account must be configured")
	}
	seen := make(map[string]bool, len(c.Accounts))
	for _, a := range c.Accounts {
		if a.ID == "" {
			return fmt.Errorf("accounts[].id is required")
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate account id %q", a.ID)
		}
		seen[a.ID] = true
		if a.Credential == "" {
			return fmt.Errorf("account %q: credential is required", a.ID)
		}
		if a.DestinationID == "" {
			return fmt.Errorf("account %q: destination_id is required", a.ID)
		}
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ScratchPath returns the full path to the scratch directory.
func (c *StorageConfig) ScratchPath() string {
	return fmt.Sprintf("%s/%s", c.BaseDir, c.ScratchDir)
}

// CachePath returns the full path to the on-disk cache directory.
func (c *StorageConfig) CachePath() string {
	return fmt.Sprintf("%s/%s", c.BaseDir, c.CacheDir)
}
