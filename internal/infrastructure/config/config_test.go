package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Save original env vars and restore after tests
	originalEnv := map[string]string{
		"NUMBERING_APP_NAME":                         os.Getenv("NUMBERING_APP_NAME"),
		"NUMBERING_APP_ENV":                          os.Getenv("NUMBERING_APP_ENV"),
		"NUMBERING_APP_PORT":                         os.Getenv("NUMBERING_APP_PORT"),
		"NUMBERING_DATABASE_HOST":                    os.Getenv("NUMBERING_DATABASE_HOST"),
		"NUMBERING_DATABASE_PORT":                    os.Getenv("NUMBERING_DATABASE_PORT"),
		"NUMBERING_DATABASE_USER":                    os.Getenv("NUMBERING_DATABASE_USER"),
		"NUMBERING_DATABASE_PASSWORD":                os.Getenv("NUMBERING_DATABASE_PASSWORD"),
		"NUMBERING_DATABASE_DBNAME":                  os.Getenv("NUMBERING_DATABASE_DBNAME"),
		"NUMBERING_DATABASE_SSLMODE":                 os.Getenv("NUMBERING_DATABASE_SSLMODE"),
		"NUMBERING_DATABASE_MAX_OPEN_CONNS":          os.Getenv("NUMBERING_DATABASE_MAX_OPEN_CONNS"),
		"NUMBERING_DATABASE_MAX_IDLE_CONNS":          os.Getenv("NUMBERING_DATABASE_MAX_IDLE_CONNS"),
		"NUMBERING_ALLOCATOR_SERIES":                 os.Getenv("NUMBERING_ALLOCATOR_SERIES"),
		"NUMBERING_ALLOCATOR_RESERVATION_VALIDITY":   os.Getenv("NUMBERING_ALLOCATOR_RESERVATION_VALIDITY"),
		"NUMBERING_ALLOCATOR_COLLISION_MAX_ATTEMPTS": os.Getenv("NUMBERING_ALLOCATOR_COLLISION_MAX_ATTEMPTS"),
		"NUMBERING_ALLOCATOR_EMERGENCY_ENABLED":      os.Getenv("NUMBERING_ALLOCATOR_EMERGENCY_ENABLED"),
		"NUMBERING_BREAKER_FAILURE_THRESHOLD":        os.Getenv("NUMBERING_BREAKER_FAILURE_THRESHOLD"),
		"NUMBERING_BREAKER_OPEN_TIMEOUT":             os.Getenv("NUMBERING_BREAKER_OPEN_TIMEOUT"),
		"NUMBERING_BREAKER_SEQUENCE_AUTHORITY_FAILURE_THRESHOLD": os.Getenv("NUMBERING_BREAKER_SEQUENCE_AUTHORITY_FAILURE_THRESHOLD"),
		"NUMBERING_BREAKER_SEQUENCE_AUTHORITY_OPEN_TIMEOUT":      os.Getenv("NUMBERING_BREAKER_SEQUENCE_AUTHORITY_OPEN_TIMEOUT"),
		"NUMBERING_BREAKER_FALLBACK_COUNTER_FAILURE_THRESHOLD":   os.Getenv("NUMBERING_BREAKER_FALLBACK_COUNTER_FAILURE_THRESHOLD"),
		"NUMBERING_BREAKER_FALLBACK_COUNTER_OPEN_TIMEOUT":        os.Getenv("NUMBERING_BREAKER_FALLBACK_COUNTER_OPEN_TIMEOUT"),
		"NUMBERING_SWEEPER_ENABLED":                  os.Getenv("NUMBERING_SWEEPER_ENABLED"),
		"NUMBERING_SWEEPER_INTERVAL":                 os.Getenv("NUMBERING_SWEEPER_INTERVAL"),
		"NUMBERING_IDEMPOTENCY_ENABLED":              os.Getenv("NUMBERING_IDEMPOTENCY_ENABLED"),
		"NUMBERING_IDEMPOTENCY_TTL":                  os.Getenv("NUMBERING_IDEMPOTENCY_TTL"),
		"NUMBERING_TELEMETRY_ENABLED":                os.Getenv("NUMBERING_TELEMETRY_ENABLED"),
		"NUMBERING_TELEMETRY_COLLECTOR_ENDPOINT":     os.Getenv("NUMBERING_TELEMETRY_COLLECTOR_ENDPOINT"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	clearEnv := func() {
		for k := range originalEnv {
			os.Unsetenv(k)
		}
	}

	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "numbering-service", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, "INV", cfg.Allocator.Series)
		assert.Equal(t, 30*time.Minute, cfg.Allocator.ReservationValidity)
		assert.Equal(t, 3, cfg.Allocator.CollisionMaxAttempts)
		assert.Equal(t, 3, cfg.Allocator.RetryMaxAttempts)
		assert.Equal(t, 100*time.Millisecond, cfg.Allocator.RetryBaseDelay)
		assert.True(t, cfg.Allocator.EmergencyEnabled)
		assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
		assert.Equal(t, 60*time.Second, cfg.Breaker.OpenTimeout)
		assert.Equal(t, 5, cfg.Breaker.SequenceAuthority.FailureThreshold)
		assert.Equal(t, 60*time.Second, cfg.Breaker.SequenceAuthority.OpenTimeout)
		assert.Equal(t, 5, cfg.Breaker.FallbackCounter.FailureThreshold)
		assert.Equal(t, 60*time.Second, cfg.Breaker.FallbackCounter.OpenTimeout)
		assert.True(t, cfg.Sweeper.Enabled)
		assert.Equal(t, 5*time.Minute, cfg.Sweeper.Interval)
		assert.True(t, cfg.Idempotency.Enabled)
		assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
		assert.False(t, cfg.Telemetry.Enabled)
		assert.Equal(t, "localhost:4317", cfg.Telemetry.CollectorEndpoint)
		assert.Equal(t, 1.0, cfg.Telemetry.SamplingRatio)
		assert.False(t, cfg.Profiler.Enabled)
	})

	t.Run("loads values from environment variables with NUMBERING prefix", func(t *testing.T) {
		clearEnv()
		os.Setenv("NUMBERING_APP_NAME", "test-app")
		os.Setenv("NUMBERING_APP_PORT", "9000")
		os.Setenv("NUMBERING_DATABASE_HOST", "testdb.local")
		os.Setenv("NUMBERING_DATABASE_PORT", "5433")
		os.Setenv("NUMBERING_ALLOCATOR_SERIES", "GST")
		os.Setenv("NUMBERING_ALLOCATOR_RESERVATION_VALIDITY", "10m")
		os.Setenv("NUMBERING_ALLOCATOR_EMERGENCY_ENABLED", "false")
		os.Setenv("NUMBERING_BREAKER_FAILURE_THRESHOLD", "10")
		os.Setenv("NUMBERING_BREAKER_SEQUENCE_AUTHORITY_FAILURE_THRESHOLD", "2")
		os.Setenv("NUMBERING_BREAKER_FALLBACK_COUNTER_OPEN_TIMEOUT", "15s")
		os.Setenv("NUMBERING_SWEEPER_INTERVAL", "30s")
		os.Setenv("NUMBERING_IDEMPOTENCY_ENABLED", "false")
		os.Setenv("NUMBERING_IDEMPOTENCY_TTL", "1h")
		os.Setenv("NUMBERING_TELEMETRY_ENABLED", "true")
		os.Setenv("NUMBERING_TELEMETRY_COLLECTOR_ENDPOINT", "otel-collector:4317")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, "GST", cfg.Allocator.Series)
		assert.Equal(t, 10*time.Minute, cfg.Allocator.ReservationValidity)
		assert.False(t, cfg.Allocator.EmergencyEnabled)
		assert.Equal(t, 10, cfg.Breaker.FailureThreshold)
		// per-dependency overrides win; unset fields inherit the shared values
		assert.Equal(t, 2, cfg.Breaker.SequenceAuthority.FailureThreshold)
		assert.Equal(t, 60*time.Second, cfg.Breaker.SequenceAuthority.OpenTimeout)
		assert.Equal(t, 10, cfg.Breaker.FallbackCounter.FailureThreshold)
		assert.Equal(t, 15*time.Second, cfg.Breaker.FallbackCounter.OpenTimeout)
		assert.Equal(t, 30*time.Second, cfg.Sweeper.Interval)
		assert.False(t, cfg.Idempotency.Enabled)
		assert.Equal(t, time.Hour, cfg.Idempotency.TTL)
		assert.True(t, cfg.Telemetry.Enabled)
		assert.Equal(t, "otel-collector:4317", cfg.Telemetry.CollectorEndpoint)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv()
		os.Setenv("NUMBERING_DATABASE_MAX_OPEN_CONNS", "10")
		os.Setenv("NUMBERING_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns")
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("rejects a reservation validity below one minute", func(t *testing.T) {
		clearEnv()
		os.Setenv("NUMBERING_ALLOCATOR_RESERVATION_VALIDITY", "5s")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reservation_validity")
	})

	t.Run("zero MaxOpenConns uses default", func(t *testing.T) {
		clearEnv()
		os.Setenv("NUMBERING_DATABASE_MAX_OPEN_CONNS", "0")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	originalEnv := map[string]string{
		"NUMBERING_APP_ENV":           os.Getenv("NUMBERING_APP_ENV"),
		"NUMBERING_DATABASE_PASSWORD": os.Getenv("NUMBERING_DATABASE_PASSWORD"),
		"NUMBERING_DATABASE_SSLMODE":  os.Getenv("NUMBERING_DATABASE_SSLMODE"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	clearEnv := func() {
		for k := range originalEnv {
			os.Unsetenv(k)
		}
	}

	t.Run("requires database.password in production", func(t *testing.T) {
		clearEnv()
		os.Setenv("NUMBERING_APP_ENV", "production")
		os.Setenv("NUMBERING_DATABASE_SSLMODE", "require")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		clearEnv()
		os.Setenv("NUMBERING_APP_ENV", "production")
		os.Setenv("NUMBERING_DATABASE_PASSWORD", "secure-password")
		os.Setenv("NUMBERING_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		clearEnv()
		os.Setenv("NUMBERING_APP_ENV", "production")
		os.Setenv("NUMBERING_DATABASE_PASSWORD", "secure-password")
		os.Setenv("NUMBERING_DATABASE_SSLMODE", "require")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost")
		assert.Contains(t, dsn, "5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "pass%40word%23123")
	})
}
