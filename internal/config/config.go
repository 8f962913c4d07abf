package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"phone-resale/internal/core"
)

// Config is everything the binaries read at startup. Connection settings come
// from the environment (or .env); business rules come from the lifecycle file.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	LogLevel  string
	Lifecycle LifecycleConfig
}

type ServerConfig struct {
	Port           string
	AllowedOrigins string
	JWTSecret      string
	JWTExpiry      time.Duration
}

type DatabaseConfig struct {
	URL string
}

// RedisConfig is optional. An empty Addr disables notifications and sweep locking.
type RedisConfig struct {
	Addr                string
	Password            string
	DB                  int
	NotificationChannel string
}

type ThresholdConfig struct {
	Match           string  `mapstructure:"match"`
	MaxDrainPerHour float64 `mapstructure:"max_drain_per_hour"`
	Priority        int     `mapstructure:"priority"`
}

type LifecycleConfig struct {
	DefaultMaxDrainPerHour float64           `mapstructure:"default_max_drain_per_hour"`
	BatteryThresholds      []ThresholdConfig `mapstructure:"battery_thresholds"`
	SkipBatteryTest        []string          `mapstructure:"skip_battery_test"`
	HandlingOverhead       string            `mapstructure:"handling_overhead"`
	PaymentTolerance       string            `mapstructure:"payment_tolerance"`
	DefaultLocation        string            `mapstructure:"default_location"`
	ShiftSweepInterval     time.Duration     `mapstructure:"shift_sweep_interval"`
}

// DefaultLifecycleFile is read when LIFECYCLE_CONFIG is not set.
const DefaultLifecycleFile = "config/lifecycle.yaml"

func defaultLifecycle() LifecycleConfig {
	return LifecycleConfig{
		DefaultMaxDrainPerHour: 10,
		SkipBatteryTest:        []string{"iPhone 15", "iPhone 16"},
		HandlingOverhead:       "800",
		PaymentTolerance:       "0.01",
		DefaultLocation:        string(core.LocationWarehouse),
		ShiftSweepInterval:     time.Hour,
	}
}

// Load reads envFile (usually ".env") and the lifecycle file. A missing file is
// not an error: environment variables and built-in defaults take over.
func Load(envFile, lifecycleFile string, logger logrus.FieldLogger) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		logger.WithError(err).Warn("env file not read, using process environment")
	}
	v.AutomaticEnv()
	_ = v.BindEnv("SERVER_PORT", "SERVER_PORT", "PORT")

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_EXPIRY_HOURS", 12)
	v.SetDefault("REDIS_NOTIFY_CHANNEL", "phone-resale:notifications")
	v.SetDefault("LIFECYCLE_CONFIG", DefaultLifecycleFile)

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			AllowedOrigins: v.GetString("ALLOWED_ORIGINS"),
			JWTSecret:      v.GetString("JWT_SECRET"),
			JWTExpiry:      time.Duration(v.GetInt("JWT_EXPIRY_HOURS")) * time.Hour,
		},
		Database: DatabaseConfig{URL: v.GetString("DATABASE_URL")},
		Redis: RedisConfig{
			Addr:                v.GetString("REDIS_ADDRESS"),
			Password:            v.GetString("REDIS_PASSWORD"),
			DB:                  v.GetInt("REDIS_DB"),
			NotificationChannel: v.GetString("REDIS_NOTIFY_CHANNEL"),
		},
		LogLevel:  v.GetString("LOG_LEVEL"),
		Lifecycle: defaultLifecycle(),
	}

	if lifecycleFile == "" {
		lifecycleFile = v.GetString("LIFECYCLE_CONFIG")
	}
	if lifecycleFile != "" {
		lv := viper.New()
		lv.SetConfigFile(lifecycleFile)
		if err := lv.ReadInConfig(); err != nil {
			logger.WithError(err).WithField("file", lifecycleFile).Warn("lifecycle config not read, using defaults")
		} else if err := lv.UnmarshalKey("lifecycle", &cfg.Lifecycle); err != nil {
			return nil, fmt.Errorf("failed to decode lifecycle config: %w", err)
		}
	}

	if _, err := cfg.InspectionPolicy(); err != nil {
		return nil, err
	}
	if _, err := cfg.SalePolicy(); err != nil {
		return nil, err
	}
	if !core.Location(cfg.Lifecycle.DefaultLocation).Valid() {
		return nil, fmt.Errorf("invalid default location %q", cfg.Lifecycle.DefaultLocation)
	}
	return cfg, nil
}

// InspectionPolicy builds the battery threshold table and skip list.
func (c *Config) InspectionPolicy() (core.InspectionPolicy, error) {
	rules := make([]core.ThresholdRule, 0, len(c.Lifecycle.BatteryThresholds))
	for _, t := range c.Lifecycle.BatteryThresholds {
		rules = append(rules, core.ThresholdRule{
			Match:           t.Match,
			MaxDrainPerHour: decimal.NewFromFloat(t.MaxDrainPerHour),
			Priority:        t.Priority,
		})
	}
	table, err := core.NewThresholdTable(rules, decimal.NewFromFloat(c.Lifecycle.DefaultMaxDrainPerHour))
	if err != nil {
		return core.InspectionPolicy{}, fmt.Errorf("battery thresholds: %w", err)
	}
	return core.InspectionPolicy{Thresholds: table, SkipBatteryTest: c.Lifecycle.SkipBatteryTest}, nil
}

func (c *Config) SalePolicy() (core.SalePolicy, error) {
	overhead, err := parseAmount("handling_overhead", c.Lifecycle.HandlingOverhead)
	if err != nil {
		return core.SalePolicy{}, err
	}
	tolerance, err := parseAmount("payment_tolerance", c.Lifecycle.PaymentTolerance)
	if err != nil {
		return core.SalePolicy{}, err
	}
	return core.SalePolicy{HandlingOverhead: overhead, PaymentTolerance: tolerance}, nil
}

func (c *Config) DefaultLocation() core.Location {
	return core.Location(c.Lifecycle.DefaultLocation)
}

func parseAmount(key, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %q is not a number", key, raw)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s cannot be negative", key)
	}
	return d, nil
}
