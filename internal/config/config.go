package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the main structure mapping the entire application configuration.
// This struct uses mapstructure tags to map YAML keys to Go struct fields.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Redirect  RedirectConfig  `mapstructure:"redirect"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Geo       GeoConfig       `mapstructure:"geo"`
	Sink      SinkConfig      `mapstructure:"sink"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
	// BaseURL prefixes every short URL: <base_url>/?r=<code>
	BaseURL string `mapstructure:"base_url"`
	// DashboardURL is linked from the "Invalid or expired link" page
	DashboardURL    string `mapstructure:"dashboard_url"`
	Mode            string `mapstructure:"mode"` // gin mode: debug, release, test
	ShutdownSeconds int    `mapstructure:"shutdown_seconds"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // sqlite or postgres
	Name         string `mapstructure:"name"`   // SQLite database file
	DSN          string `mapstructure:"dsn"`    // Postgres DSN
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type AnalyticsConfig struct {
	BufferSize        int `mapstructure:"buffer_size"`  // Size of the sink forwarding queue
	WorkerCount       int `mapstructure:"worker_count"` // Number of sink forwarding workers
	DefaultWindowDays int `mapstructure:"default_window_days"`
}

type MonitorConfig struct {
	IntervalMinutes int  `mapstructure:"interval_minutes"`
	CheckURLs       bool `mapstructure:"check_urls"`
}

type RedirectConfig struct {
	// FailClosed answers 503 when the click cannot be recorded instead of redirecting anyway
	FailClosed        bool   `mapstructure:"fail_closed"`
	SessionCookie     string `mapstructure:"session_cookie"`
	SessionTTLMinutes int    `mapstructure:"session_ttl_minutes"`
}

type CacheConfig struct {
	RedisAddr     string  `mapstructure:"redis_addr"` // empty disables the redis cache
	RedisPassword string  `mapstructure:"redis_password"`
	RedisDB       int     `mapstructure:"redis_db"`
	TTLMinutes    int     `mapstructure:"ttl_minutes"`
	BloomCapacity uint    `mapstructure:"bloom_capacity"`
	BloomFPRate   float64 `mapstructure:"bloom_fp_rate"`
}

type GeoConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ProviderURL string `mapstructure:"provider_url"`
	TimeoutMS   int    `mapstructure:"timeout_ms"`
	MemoSize    int    `mapstructure:"memo_size"`
}

type SinkConfig struct {
	MeasurementID  string `mapstructure:"measurement_id"`
	APISecret      string `mapstructure:"api_secret"`
	PropertyID     string `mapstructure:"property_id"`
	Endpoint       string `mapstructure:"endpoint"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type AuthConfig struct {
	SessionTTLHours int `mapstructure:"session_ttl_hours"`
	BcryptCost      int `mapstructure:"bcrypt_cost"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json or console
	File       string `mapstructure:"file"`   // empty logs to stdout only
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

func (c GeoConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// Enabled reports whether both sink credentials are present.
func (c SinkConfig) Enabled() bool {
	return c.MeasurementID != "" && c.APISecret != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.dashboard_url", "http://localhost:8080/dashboard")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_seconds", 5)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.name", "campaigns.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("analytics.buffer_size", 1000)
	v.SetDefault("analytics.worker_count", 5)
	v.SetDefault("analytics.default_window_days", 30)

	v.SetDefault("monitor.interval_minutes", 5)
	v.SetDefault("monitor.check_urls", true)

	v.SetDefault("redirect.fail_closed", false)
	v.SetDefault("redirect.session_cookie", "session_id")
	v.SetDefault("redirect.session_ttl_minutes", 30)

	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl_minutes", 10)
	v.SetDefault("cache.bloom_capacity", 1000000)
	v.SetDefault("cache.bloom_fp_rate", 0.001)

	v.SetDefault("geo.enabled", true)
	v.SetDefault("geo.provider_url", "http://ip-api.com/json")
	v.SetDefault("geo.timeout_ms", 1500)
	v.SetDefault("geo.memo_size", 10000)

	v.SetDefault("sink.endpoint", "https://www.google-analytics.com/mp/collect")
	v.SetDefault("sink.timeout_seconds", 5)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("auth.session_ttl_hours", 24)
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// LoadConfig loads the application configuration from ./configs/config.yaml and the
// environment ("server.port" is overridden by SERVER_PORT). A missing file is not an error.
func LoadConfig() (*Config, error) {
	return load(viper.GetViper(), "./configs")
}

// LoadConfigFrom is LoadConfig with an explicit directory and a private viper instance.
func LoadConfigFrom(dir string) (*Config, error) {
	return load(viper.New(), dir)
}

func load(v *viper.Viper, dir string) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	setDefaults(v)

	// The analytics sink keeps the variable names the measurement protocol documents.
	_ = v.BindEnv("sink.measurement_id", "GA_MEASUREMENT_ID")
	_ = v.BindEnv("sink.api_secret", "GA_API_SECRET")
	_ = v.BindEnv("sink.property_id", "GA_PROPERTY_ID")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}
