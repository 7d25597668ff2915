package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// EnvPrefix prefixes environment overrides, e.g. INVOICEQC_SERVER_PORT
const EnvPrefix = "INVOICEQC"

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Validation ValidationConfig `mapstructure:"validation"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// DatabaseConfig holds the history store configuration. An empty path
// disables the store and every run starts from an empty tracker.
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ValidationConfig holds rule thresholds
type ValidationConfig struct {
	Tolerance             float64  `mapstructure:"tolerance"`
	MinAnomalySamples     int      `mapstructure:"min_anomaly_samples"`
	AnomalySigma          float64  `mapstructure:"anomaly_sigma"`
	DuplicateWindowMonths int      `mapstructure:"duplicate_window_months"`
	FutureGraceDays       int      `mapstructure:"future_grace_days"`
	MaxAgeYears           int      `mapstructure:"max_age_years"`
	MaxQuantity           float64  `mapstructure:"max_quantity"`
	DisabledRules         []string `mapstructure:"disabled_rules"`
	TopErrorCodes         int      `mapstructure:"top_error_codes"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from an optional YAML file, a .env file and
// environment variables. With an empty configPath only defaults and the
// environment apply.
func Load(configPath string) (*Config, error) {
	// .env is optional
	_ = gotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration with every default applied
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// defaults always decode
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.max_body_bytes", 10*1024*1024)

	// Database defaults
	v.SetDefault("database.path", "")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Validation defaults
	v.SetDefault("validation.tolerance", 0.005)
	v.SetDefault("validation.min_anomaly_samples", 5)
	v.SetDefault("validation.anomaly_sigma", 3.0)
	v.SetDefault("validation.duplicate_window_months", 12)
	v.SetDefault("validation.future_grace_days", 7)
	v.SetDefault("validation.max_age_years", 5)
	v.SetDefault("validation.max_quantity", 1_000_000.0)
	v.SetDefault("validation.disabled_rules", []string{})
	v.SetDefault("validation.top_error_codes", 3)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stderr")
	v.SetDefault("logger.format", "json")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}

	v := c.Validation
	if v.Tolerance <= 0 || v.Tolerance >= 1 {
		return fmt.Errorf("validation.tolerance must be between 0 and 1, got %v", v.Tolerance)
	}
	if v.MinAnomalySamples < 2 {
		return fmt.Errorf("validation.min_anomaly_samples must be at least 2, got %d", v.MinAnomalySamples)
	}
	if v.AnomalySigma <= 0 {
		return fmt.Errorf("validation.anomaly_sigma must be positive")
	}
	if v.DuplicateWindowMonths <= 0 {
		return fmt.Errorf("validation.duplicate_window_months must be positive")
	}
	if v.FutureGraceDays < 0 {
		return fmt.Errorf("validation.future_grace_days must not be negative")
	}
	if v.MaxAgeYears <= 0 {
		return fmt.Errorf("validation.max_age_years must be positive")
	}
	if v.MaxQuantity <= 0 {
		return fmt.Errorf("validation.max_quantity must be positive")
	}

	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console, got %q", c.Logger.Format)
	}

	return nil
}
