package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Allocator   AllocatorConfig
	Breaker     BreakerConfig
	Sweeper     SweeperConfig
	Idempotency IdempotencyConfig
	Telemetry   TelemetryConfig
	Profiler    ProfilerConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	TrustedProxies []string
}

// AllocatorConfig holds identifier allocation settings
type AllocatorConfig struct {
	Series               string
	ReservationValidity  time.Duration
	CollisionMaxAttempts int
	RetryMaxAttempts     int
	RetryBaseDelay       time.Duration
	// EmergencyEnabled allows the process-local counter of last resort.
	// Operators running many instances behind one database may prefer hard
	// failure over numbers without a single point of truth.
	EmergencyEnabled bool
	MaxBatchSize     int
}

// BreakerConfig holds circuit breaker settings. The top-level values are
// defaults; each protected dependency can override them in its own section.
type BreakerConfig struct {
	FailureThreshold  int
	OpenTimeout       time.Duration
	SequenceAuthority BreakerSettings
	FallbackCounter   BreakerSettings
}

// BreakerSettings holds the per-dependency breaker tuning
type BreakerSettings struct {
	FailureThreshold int
	OpenTimeout      time.Duration
}

// SweeperConfig holds reservation sweeper settings
type SweeperConfig struct {
	Enabled  bool
	Interval time.Duration
}

// IdempotencyConfig holds duplicate-request detection settings for the
// allocation endpoint
type IdempotencyConfig struct {
	Enabled bool
	TTL     time.Duration
}

// TelemetryConfig holds OpenTelemetry tracing settings
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	Insecure          bool
}

// ProfilerConfig holds Pyroscope continuous profiling settings
type ProfilerConfig struct {
	Enabled       bool
	ServerAddress string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with NUMBERING_ prefix (e.g., NUMBERING_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("NUMBERING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// booleans that default to true need explicit defaults so an absent key
	// is distinguishable from false
	v.SetDefault("allocator.emergency_enabled", true)
	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("idempotency.enabled", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Allocator: AllocatorConfig{
			Series:               v.GetString("allocator.series"),
			ReservationValidity:  v.GetDuration("allocator.reservation_validity"),
			CollisionMaxAttempts: v.GetInt("allocator.collision_max_attempts"),
			RetryMaxAttempts:     v.GetInt("allocator.retry_max_attempts"),
			RetryBaseDelay:       v.GetDuration("allocator.retry_base_delay"),
			EmergencyEnabled:     v.GetBool("allocator.emergency_enabled"),
			MaxBatchSize:         v.GetInt("allocator.max_batch_size"),
		},
		Breaker: BreakerConfig{
			FailureThreshold: v.GetInt("breaker.failure_threshold"),
			OpenTimeout:      v.GetDuration("breaker.open_timeout"),
			SequenceAuthority: BreakerSettings{
				FailureThreshold: v.GetInt("breaker.sequence_authority.failure_threshold"),
				OpenTimeout:      v.GetDuration("breaker.sequence_authority.open_timeout"),
			},
			FallbackCounter: BreakerSettings{
				FailureThreshold: v.GetInt("breaker.fallback_counter.failure_threshold"),
				OpenTimeout:      v.GetDuration("breaker.fallback_counter.open_timeout"),
			},
		},
		Sweeper: SweeperConfig{
			Enabled:  v.GetBool("sweeper.enabled"),
			Interval: v.GetDuration("sweeper.interval"),
		},
		Idempotency: IdempotencyConfig{
			Enabled: v.GetBool("idempotency.enabled"),
			TTL:     v.GetDuration("idempotency.ttl"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			Insecure:          v.GetBool("telemetry.insecure"),
		},
		Profiler: ProfilerConfig{
			Enabled:       v.GetBool("profiler.enabled"),
			ServerAddress: v.GetString("profiler.server_address"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "numbering-service"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "numbering"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.Allocator.Series == "" {
		cfg.Allocator.Series = "INV"
	}
	if cfg.Allocator.ReservationValidity == 0 {
		cfg.Allocator.ReservationValidity = 30 * time.Minute
	}
	if cfg.Allocator.CollisionMaxAttempts == 0 {
		cfg.Allocator.CollisionMaxAttempts = 3
	}
	if cfg.Allocator.RetryMaxAttempts == 0 {
		cfg.Allocator.RetryMaxAttempts = 3
	}
	if cfg.Allocator.RetryBaseDelay == 0 {
		cfg.Allocator.RetryBaseDelay = 100 * time.Millisecond
	}
	if cfg.Allocator.MaxBatchSize == 0 {
		cfg.Allocator.MaxBatchSize = 1000
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.OpenTimeout == 0 {
		cfg.Breaker.OpenTimeout = 60 * time.Second
	}
	applyBreakerDefaults(&cfg.Breaker.SequenceAuthority, cfg.Breaker)
	applyBreakerDefaults(&cfg.Breaker.FallbackCounter, cfg.Breaker)
	if cfg.Sweeper.Interval == 0 {
		cfg.Sweeper.Interval = 5 * time.Minute
	}
	if cfg.Idempotency.TTL == 0 {
		cfg.Idempotency.TTL = 24 * time.Hour
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
}

// applyBreakerDefaults fills a per-dependency section from the shared values
func applyBreakerDefaults(s *BreakerSettings, base BreakerConfig) {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = base.FailureThreshold
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = base.OpenTimeout
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Allocator.CollisionMaxAttempts < 1 {
		return fmt.Errorf("allocator.collision_max_attempts must be at least 1")
	}
	if c.Allocator.RetryMaxAttempts < 1 {
		return fmt.Errorf("allocator.retry_max_attempts must be at least 1")
	}
	if c.Allocator.ReservationValidity < time.Minute {
		return fmt.Errorf("allocator.reservation_validity must be at least 1 minute, got %s", c.Allocator.ReservationValidity)
	}
	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("breaker.failure_threshold must be at least 1")
	}
	if c.Breaker.OpenTimeout <= 0 {
		return fmt.Errorf("breaker.open_timeout must be positive")
	}
	for name, s := range map[string]BreakerSettings{
		"sequence_authority": c.Breaker.SequenceAuthority,
		"fallback_counter":   c.Breaker.FallbackCounter,
	} {
		if s.FailureThreshold < 1 {
			return fmt.Errorf("breaker.%s.failure_threshold must be at least 1", name)
		}
		if s.OpenTimeout <= 0 {
			return fmt.Errorf("breaker.%s.open_timeout must be positive", name)
		}
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
