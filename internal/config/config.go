package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ctleak/domain/leakage"
	"ctleak/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Detection leakage.Params
	Target    TargetConfig
	Ledger    LedgerConfig
	Server    ServerConfig
	Export    ExportConfig
	Logging   LoggingConfig
}

// TargetConfig holds settings consumed by the devices under test
type TargetConfig struct {
	// Seed makes class assignment and token generation reproducible; zero uses crypto/rand.
	Seed         uint64
	OperandsFile string
}

// LedgerConfig selects where finished reports are stored. An empty driver disables the ledger.
type LedgerConfig struct {
	Driver string
	DSN    string
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port              string
	GinMode           string
	MaxConcurrentRuns int64
	RunTimeout        time.Duration
}

// ExportConfig holds raw sample export settings
type ExportConfig struct {
	Path string
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables and validates it.
// Malformed values are errors, never replaced by defaults.
func Load() (*Config, error) {
	env := &envReader{}
	defaults := leakage.DefaultParams()

	config := &Config{
		Detection: leakage.Params{
			NumberMeasurements: env.getInt("CTLEAK_NUMBER_MEASUREMENTS", defaults.NumberMeasurements),
			DropSize:           env.getInt("CTLEAK_DROP_SIZE", defaults.DropSize),
			ChunkSize:          env.getInt("CTLEAK_CHUNK_SIZE", defaults.ChunkSize),
			NumberPercentiles:  env.getInt("CTLEAK_NUMBER_PERCENTILES", defaults.NumberPercentiles),
			TotalMeasurements:  env.getInt("CTLEAK_TOTAL_MEASUREMENTS", defaults.TotalMeasurements),
			EnoughMeasurements: env.getInt64("CTLEAK_ENOUGH_MEASUREMENTS", defaults.EnoughMeasurements),
			SecondOrderFloor:   env.getInt64("CTLEAK_SECOND_ORDER_FLOOR", defaults.SecondOrderFloor),
			TModerate:          env.getFloat("CTLEAK_T_MODERATE", defaults.TModerate),
			TBananas:           env.getFloat("CTLEAK_T_BANANAS", defaults.TBananas),
			EarlyStop:          env.getBool("CTLEAK_EARLY_STOP", defaults.EarlyStop),
			MaxBatchBytes:      env.getInt64("CTLEAK_MAX_BATCH_BYTES", defaults.MaxBatchBytes),
		},
		Target: TargetConfig{
			Seed:         env.getUint64("CTLEAK_SEED", 0),
			OperandsFile: getEnvOrDefault("CTLEAK_OPERANDS_FILE", "div.txt"),
		},
		Ledger: LedgerConfig{
			Driver: getEnvOrDefault("LEDGER_DRIVER", ""),
			DSN:    getEnvOrDefault("DATABASE_URL", ""),
		},
		Server: ServerConfig{
			Port:              getEnvOrDefault("PORT", "8080"),
			GinMode:           getEnvOrDefault("GIN_MODE", "release"),
			MaxConcurrentRuns: env.getInt64("MAX_CONCURRENT_RUNS", 1),
			RunTimeout:        env.getDuration("RUN_TIMEOUT", 10*time.Minute),
		},
		Export: ExportConfig{
			Path: getEnvOrDefault("EXPORT_PATH", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "INFO"),
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
		},
	}

	if err := env.err(); err != nil {
		return nil, err
	}
	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func validateConfig(config *Config) error {
	if err := config.Detection.Validate(); err != nil {
		return err
	}
	switch config.Ledger.Driver {
	case "":
	case "postgres", "sqlite3":
		if config.Ledger.DSN == "" {
			return errors.ConfigInvalid("DATABASE_URL is required when LEDGER_DRIVER is set")
		}
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unsupported LEDGER_DRIVER %q", config.Ledger.Driver))
	}
	if config.Server.MaxConcurrentRuns <= 0 {
		return errors.ConfigInvalid("MAX_CONCURRENT_RUNS must be positive")
	}
	if config.Server.RunTimeout <= 0 {
		return errors.ConfigInvalid("RUN_TIMEOUT must be positive")
	}
	return nil
}

// envReader collects every malformed variable so one run reports them all.
type envReader struct {
	bad []string
}

func (r *envReader) err() error {
	if len(r.bad) == 0 {
		return nil
	}
	return errors.ConfigInvalid("malformed environment: " + strings.Join(r.bad, ", "))
}

func (r *envReader) getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		v, err := strconv.Atoi(value)
		if err != nil {
			r.bad = append(r.bad, key)
			return defaultValue
		}
		return v
	}
	return defaultValue
}

func (r *envReader) getInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			r.bad = append(r.bad, key)
			return defaultValue
		}
		return v
	}
	return defaultValue
}

func (r *envReader) getUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			r.bad = append(r.bad, key)
			return defaultValue
		}
		return v
	}
	return defaultValue
}

func (r *envReader) getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			r.bad = append(r.bad, key)
			return defaultValue
		}
		return v
	}
	return defaultValue
}

func (r *envReader) getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		v, err := strconv.ParseBool(value)
		if err != nil {
			r.bad = append(r.bad, key)
			return defaultValue
		}
		return v
	}
	return defaultValue
}

func (r *envReader) getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		v, err := time.ParseDuration(value)
		if err != nil {
			r.bad = append(r.bad, key)
			return defaultValue
		}
		return v
	}
	return defaultValue
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
