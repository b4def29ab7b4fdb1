// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

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

// Config holds all configuration parameters for the tracking engine.
// Session, consent, retry and bot-score policy are tunables, not code.
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`
	Debug       bool     `mapstructure:"debug"`

	// Embedding site identity and backend endpoint
	WebsiteID  string `mapstructure:"websiteid"`
	APIBaseURL string `mapstructure:"apibaseurl"`

	// File paths
	StoragePath   string `mapstructure:"storagepath"`
	DatabaseName  string `mapstructure:"-"` // Derived from other settings
	CookieJarPath string `mapstructure:"cookiejarpath"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseMaxOpenConns int `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int `mapstructure:"dbmaxidleconns"`

	// Tracking policy
	SessionTimeoutSeconds int `mapstructure:"sessiontimeoutseconds"`
	IdleTimeoutSeconds    int `mapstructure:"idletimeoutseconds"`
	VisitorTokenTTLDays   int `mapstructure:"visitortokenttldays"`

	// Consent policy
	ConsentRequired bool `mapstructure:"consentrequired"`
	ConsentTTLDays  int  `mapstructure:"consentttldays"`

	// Delivery queue policy
	RetryAttempts      int `mapstructure:"retryattempts"`
	RetryBaseDelayMs   int `mapstructure:"retrybasedelayms"`
	OfflineMaxAgeHours int `mapstructure:"offlinemaxagehours"`

	// Bot detection policy
	BotScoreThreshold     int `mapstructure:"botscorethreshold"`
	BotObservationSeconds int `mapstructure:"botobservationseconds"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		// Set defaults
		v.SetDefault("appname", "wibi")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("debug", false)
		v.SetDefault("websiteid", "")
		v.SetDefault("apibaseurl", "https://wibi.wilbertzgroup.com")
		v.SetDefault("storagepath", "storage")
		v.SetDefault("cookiejarpath", "")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("sessiontimeoutseconds", 1800)
		v.SetDefault("idletimeoutseconds", 60)
		v.SetDefault("visitortokenttldays", 365)
		v.SetDefault("consentrequired", true)
		v.SetDefault("consentttldays", 365)
		v.SetDefault("retryattempts", 3)
		v.SetDefault("retrybasedelayms", 1000)
		v.SetDefault("offlinemaxagehours", 24)
		v.SetDefault("botscorethreshold", 5)
		v.SetDefault("botobservationseconds", 5)

		// Bind environment variables
		v.BindEnv("appname", "WIBI_APP_NAME")
		v.BindEnv("environment", "WIBI_ENV")
		v.BindEnv("loglevel", "WIBI_LOG_LEVEL")
		v.BindEnv("debug", "WIBI_DEBUG")
		v.BindEnv("websiteid", "WIBI_WEBSITE_ID")
		v.BindEnv("apibaseurl", "WIBI_API_BASE")
		v.BindEnv("storagepath", "WIBI_STORAGE_PATH")
		v.BindEnv("cookiejarpath", "WIBI_COOKIE_JAR_PATH")
		v.BindEnv("logsdir", "WIBI_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "WIBI_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "WIBI_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "WIBI_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbmaxopenconns", "WIBI_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "WIBI_DB_MAX_IDLE_CONNS")
		v.BindEnv("sessiontimeoutseconds", "WIBI_SESSION_TIMEOUT_SECONDS")
		v.BindEnv("idletimeoutseconds", "WIBI_IDLE_TIMEOUT_SECONDS")
		v.BindEnv("visitortokenttldays", "WIBI_VISITOR_TOKEN_TTL_DAYS")
		v.BindEnv("consentrequired", "WIBI_CONSENT_REQUIRED")
		v.BindEnv("consentttldays", "WIBI_CONSENT_TTL_DAYS")
		v.BindEnv("retryattempts", "WIBI_RETRY_ATTEMPTS")
		v.BindEnv("retrybasedelayms", "WIBI_RETRY_BASE_DELAY_MS")
		v.BindEnv("offlinemaxagehours", "WIBI_OFFLINE_MAX_AGE_HOURS")
		v.BindEnv("botscorethreshold", "WIBI_BOT_SCORE_THRESHOLD")
		v.BindEnv("botobservationseconds", "WIBI_BOT_OBSERVATION_SECONDS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		// Validate
		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		// Set derived values
		cfg.DatabaseName = cfg.GetDatabasePath()
		if cfg.CookieJarPath == "" {
			cfg.CookieJarPath = filepath.Join(cfg.StoragePath,
				fmt.Sprintf("%s-%s-cookies.json", cfg.AppName, cfg.Environment))
		}
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

	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1, got %d", c.RetryAttempts)
	}

	// The behavioral observation window only produces a meaningful signal
	// between 2 and 10 seconds.
	if c.BotObservationSeconds < 2 || c.BotObservationSeconds > 10 {
		return fmt.Errorf("bot observation window must be between 2 and 10 seconds, got %d", c.BotObservationSeconds)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.StoragePath,
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

// GetMaxOpenConns returns the configured max open connections, 0 means driver default
func (c *Config) GetMaxOpenConns() int {
	return c.DatabaseMaxOpenConns
}

// GetMaxIdleConns returns the configured max idle connections, 0 means driver default
func (c *Config) GetMaxIdleConns() int {
	return c.DatabaseMaxIdleConns
}

// SessionTimeout returns the rolling session timeout.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSeconds) * time.Second
}

// IdleTimeout returns the inactivity window before a synthetic idle action fires.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// VisitorTokenTTL returns how long the visitor token stays valid.
func (c *Config) VisitorTokenTTL() time.Duration {
	return time.Duration(c.VisitorTokenTTLDays) * 24 * time.Hour
}

// ConsentTTL returns how long a stored consent decision stays valid.
func (c *Config) ConsentTTL() time.Duration {
	return time.Duration(c.ConsentTTLDays) * 24 * time.Hour
}

// RetryBaseDelay returns the first retry backoff delay.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

// OfflineMaxAge returns how long an undelivered request may sit in the offline queue.
func (c *Config) OfflineMaxAge() time.Duration {
	return time.Duration(c.OfflineMaxAgeHours) * time.Hour
}

// BotObservationWindow returns the behavioral observation window.
func (c *Config) BotObservationWindow() time.Duration {
	return time.Duration(c.BotObservationSeconds) * time.Second
}
