// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

const defaultPrivateKey = "88888888888888888888888888888888"

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`
	PrivateKey  string   `mapstructure:"privatekey"`

	// File paths
	DatabasePath          string `mapstructure:"storagepath"`
	DatabaseName          string `mapstructure:"-"` // Derived from other settings
	GeoDBPath             string `mapstructure:"geodbpath"`
	GeoLiteLicenseKey     string `mapstructure:"geolitelicensekey"`
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseMaxOpenConns int `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int `mapstructure:"dbmaxidleconns"`

	// Tracking settings
	SessionTimeoutSeconds    int `mapstructure:"sessiontimeoutseconds"`
	HeartbeatIntervalSeconds int `mapstructure:"heartbeatintervalseconds"`
	IdentityCookieMaxAgeDays int `mapstructure:"identitycookiemaxagedays"`

	// Aggregation settings
	BounceThresholdMs     int `mapstructure:"bouncethresholdms"`
	RealtimeWindowSeconds int `mapstructure:"realtimewindowseconds"`
	StatsWorkers          int `mapstructure:"statsworkers"`

	// Data retention settings
	TrackingRetentionDays int `mapstructure:"trackingretentiondays"`
	JobIntervalSeconds    int `mapstructure:"jobintervalseconds"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		// A missing .env file is fine, real environments set variables directly.
		_ = godotenv.Load()

		v := viper.New()

		v.SetDefault("appname", "nighthub")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", defaultPrivateKey)
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "storage/GeoLite2-Country.mmdb")
		v.SetDefault("geolitelicensekey", "")
		v.SetDefault("publicdir", "public")
		v.SetDefault("publicassetsurlprefix", "/")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("sessiontimeoutseconds", 1800)
		v.SetDefault("heartbeatintervalseconds", 30)
		v.SetDefault("identitycookiemaxagedays", 180)
		v.SetDefault("bouncethresholdms", 10000)
		v.SetDefault("realtimewindowseconds", 120)
		v.SetDefault("statsworkers", 4)
		v.SetDefault("trackingretentiondays", 400)
		v.SetDefault("jobintervalseconds", 86400)

		v.BindEnv("appname", "NIGHTHUB_APP_NAME")
		v.BindEnv("appport", "NIGHTHUB_APP_PORT")
		v.BindEnv("environment", "NIGHTHUB_ENV")
		v.BindEnv("loglevel", "NIGHTHUB_LOG_LEVEL")
		v.BindEnv("privatekey", "NIGHTHUB_PRIVATE_KEY")
		v.BindEnv("storagepath", "NIGHTHUB_STORAGE_PATH")
		v.BindEnv("geodbpath", "NIGHTHUB_GEO_DB_PATH")
		v.BindEnv("geolitelicensekey", "NIGHTHUB_GEOLITE_LICENSE_KEY")
		v.BindEnv("publicdir", "NIGHTHUB_PUBLIC_DIR")
		v.BindEnv("publicassetsurlprefix", "NIGHTHUB_PUBLIC_ASSETS_URL_PREFIX")
		v.BindEnv("logsdir", "NIGHTHUB_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "NIGHTHUB_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "NIGHTHUB_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "NIGHTHUB_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbmaxopenconns", "NIGHTHUB_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "NIGHTHUB_DB_MAX_IDLE_CONNS")
		v.BindEnv("sessiontimeoutseconds", "NIGHTHUB_SESSION_TIMEOUT_SECONDS")
		v.BindEnv("heartbeatintervalseconds", "NIGHTHUB_HEARTBEAT_INTERVAL_SECONDS")
		v.BindEnv("identitycookiemaxagedays", "NIGHTHUB_IDENTITY_COOKIE_MAX_AGE_DAYS")
		v.BindEnv("bouncethresholdms", "NIGHTHUB_BOUNCE_THRESHOLD_MS")
		v.BindEnv("realtimewindowseconds", "NIGHTHUB_REALTIME_WINDOW_SECONDS")
		v.BindEnv("statsworkers", "NIGHTHUB_STATS_WORKERS")
		v.BindEnv("trackingretentiondays", "NIGHTHUB_TRACKING_RETENTION_DAYS")
		v.BindEnv("jobintervalseconds", "NIGHTHUB_JOB_INTERVAL_SECONDS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	if c.PrivateKey == "" {
		return fmt.Errorf("private key is required")
	}
	if c.IsProduction() && c.PrivateKey == defaultPrivateKey {
		return fmt.Errorf("production requires a unique NIGHTHUB_PRIVATE_KEY (cannot use default)")
	}

	if c.SessionTimeoutSeconds <= 0 {
		return fmt.Errorf("session timeout must be positive: %d", c.SessionTimeoutSeconds)
	}
	if c.HeartbeatIntervalSeconds <= 0 {
		return fmt.Errorf("heartbeat interval must be positive: %d", c.HeartbeatIntervalSeconds)
	}
	// The heartbeat has to fire before the session it keeps alive expires.
	if c.HeartbeatIntervalSeconds >= c.SessionTimeoutSeconds {
		return fmt.Errorf("heartbeat interval (%ds) must be shorter than session timeout (%ds)",
			c.HeartbeatIntervalSeconds, c.SessionTimeoutSeconds)
	}
	if c.TrackingRetentionDays < 365 {
		return fmt.Errorf("tracking retention must cover the 365 day activity range, got %d days", c.TrackingRetentionDays)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// cartridge.Config and cartridge.FactoryConfig.

func (c *Config) GetPort() string            { return c.AppPort }
func (c *Config) GetPublicDirectory() string { return c.PublicDirectory }
func (c *Config) GetAssetsPrefix() string    { return c.PublicAssetsUrlPrefix }
func (c *Config) GetAppName() string         { return c.AppName }
func (c *Config) DatabaseDSN() string        { return c.GetDatabasePath() }
func (c *Config) GetSessionSecret() string   { return c.PrivateKey }

// SessionTimeout is the inactivity gap after which a tracked session expires.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSeconds) * time.Second
}

// HeartbeatInterval is how often an open tab refreshes its session.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}

// IdentityCookieMaxAge is the lifetime of the identity cookies.
func (c *Config) IdentityCookieMaxAge() time.Duration {
	return time.Duration(c.IdentityCookieMaxAgeDays) * 24 * time.Hour
}

// BounceThreshold is the dwell time under which a page view counts as a bounce.
func (c *Config) BounceThreshold() time.Duration {
	return time.Duration(c.BounceThresholdMs) * time.Millisecond
}

// RealtimeWindow is the trailing window used by "active now" widgets.
func (c *Config) RealtimeWindow() time.Duration {
	return time.Duration(c.RealtimeWindowSeconds) * time.Second
}

// GetMaxOpenConns honors NIGHTHUB_DB_MAX_OPEN_CONNS, else 1 under test and 10
// elsewhere so the stats engine can read slices in parallel.
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.IsTest() {
		return 1
	}
	return 10
}

// GetMaxIdleConns mirrors GetMaxOpenConns for idle connections.
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.IsTest() {
		return 1
	}
	return 5
}

// cartridge.LogConfigProvider; logs rotate through lumberjack inside cartridge.

func (c *Config) GetLogLevel() string     { return string(c.LogLevel) }
func (c *Config) GetLogDirectory() string { return c.LogsDirectory }
func (c *Config) GetLogMaxSizeMB() int    { return c.LogsMaxSizeInMb }
func (c *Config) GetLogMaxBackups() int   { return c.LogsMaxBackups }
func (c *Config) GetLogMaxAgeDays() int   { return c.LogsMaxAgeInDays }

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
