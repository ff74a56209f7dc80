package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string   `mapstructure:"PORT"`
	Env           string   `mapstructure:"ENV"`
	DatabaseURL   string   `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32    `mapstructure:"DB_MIN_CONNS"`
	DefaultClinic string   `mapstructure:"DEFAULT_CLINIC"`
	CORSOrigins   []string `mapstructure:"CORS_ORIGINS"`

	// Reconciliation tolerance window, anchored to the appointment start.
	MatchWindowBeforeMin int `mapstructure:"MATCH_WINDOW_BEFORE_MIN"`
	MatchWindowAfterMin  int `mapstructure:"MATCH_WINDOW_AFTER_MIN"`
	// How far back orphan detection looks for unlinked sessions.
	OrphanLookbackDays int `mapstructure:"ORPHAN_LOOKBACK_DAYS"`
	// Grace period before a scheduled appointment is swept to missed.
	MissedAfterHours int `mapstructure:"MISSED_AFTER_HOURS"`
	// How far ahead template generation plans by default.
	GenerateWeeksAhead int `mapstructure:"GENERATE_WEEKS_AHEAD"`
	// Interval of the periodic maintenance run; 0 disables the ticker.
	MaintenanceIntervalMin int `mapstructure:"MAINTENANCE_INTERVAL_MIN"`
	// Auto-convert orphan sessions into retroactive appointments during
	// maintenance instead of only surfacing them.
	OrphanAutoConvert bool `mapstructure:"ORPHAN_AUTO_CONVERT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_CLINIC", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("MATCH_WINDOW_BEFORE_MIN", 60)
	v.SetDefault("MATCH_WINDOW_AFTER_MIN", 180)
	v.SetDefault("ORPHAN_LOOKBACK_DAYS", 2)
	v.SetDefault("MISSED_AFTER_HOURS", 2)
	v.SetDefault("GENERATE_WEEKS_AHEAD", 4)
	v.SetDefault("MAINTENANCE_INTERVAL_MIN", 0)
	v.SetDefault("ORPHAN_AUTO_CONVERT", false)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("DEFAULT_CLINIC")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("MATCH_WINDOW_BEFORE_MIN")
	v.BindEnv("MATCH_WINDOW_AFTER_MIN")
	v.BindEnv("ORPHAN_LOOKBACK_DAYS")
	v.BindEnv("MISSED_AFTER_HOURS")
	v.BindEnv("GENERATE_WEEKS_AHEAD")
	v.BindEnv("MAINTENANCE_INTERVAL_MIN")
	v.BindEnv("ORPHAN_AUTO_CONVERT")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the engine tuning values are sane before anything
// starts using them for window math.
func (c *Config) Validate() error {
	if c.MatchWindowBeforeMin < 0 || c.MatchWindowAfterMin < 0 {
		return fmt.Errorf("match window minutes must not be negative (before=%d after=%d)",
			c.MatchWindowBeforeMin, c.MatchWindowAfterMin)
	}
	if c.OrphanLookbackDays < 1 {
		return fmt.Errorf("ORPHAN_LOOKBACK_DAYS must be at least 1, got %d", c.OrphanLookbackDays)
	}
	if c.MissedAfterHours < 0 {
		return fmt.Errorf("MISSED_AFTER_HOURS must not be negative, got %d", c.MissedAfterHours)
	}
	if c.GenerateWeeksAhead < 1 {
		return fmt.Errorf("GENERATE_WEEKS_AHEAD must be at least 1, got %d", c.GenerateWeeksAhead)
	}
	if c.MaintenanceIntervalMin < 0 {
		return fmt.Errorf("MAINTENANCE_INTERVAL_MIN must not be negative, got %d", c.MaintenanceIntervalMin)
	}
	return nil
}
