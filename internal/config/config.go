// Package config reads the service configuration from environment variables
// and an optional config file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved service configuration.
type Config struct {
	// MQTT transport.
	MQTTBroker   string `mapstructure:"mqtt_broker"`
	MQTTPort     int    `mapstructure:"mqtt_port"`
	MQTTUsername string `mapstructure:"mqtt_username"`
	MQTTPassword string `mapstructure:"mqtt_password"`
	MQTTClientID string `mapstructure:"mqtt_client_id"`

	// Telegram front-end.
	BotToken string  `mapstructure:"bot_token"`
	ChatID   int64   `mapstructure:"chat_id"`
	AdminIDs []int64 `mapstructure:"admin_ids"`
	// HeadUserID names the account whose effective budget nets out accrued
	// error minutes. Zero disables the rule.
	HeadUserID int64 `mapstructure:"head_user_id"`
	// SharedErrorAccounting charges plug connectivity errors to the attached
	// user's ledger in addition to the plug's own counter.
	SharedErrorAccounting bool `mapstructure:"shared_error_accounting"`

	// Enforcement parameters.
	PowerThreshold       float64 `mapstructure:"power_threshold"`
	TickIntervalMinutes  int     `mapstructure:"tick_interval_minutes"`
	DefaultDailyMinutes  int     `mapstructure:"default_daily_minutes"`
	StaleSeconds         int     `mapstructure:"stale_seconds"`
	LowBudgetThreshold   int     `mapstructure:"low_budget_threshold"`
	ReportIntervalMins   int     `mapstructure:"report_interval_minutes"`
	TelemetryPeriodSecs  int     `mapstructure:"telemetry_period_seconds"`

	// Storage and diagnostics.
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`
}

// Defaults returns the default configuration values keyed by environment
// variable name. Defaults must exist for a field to be populated from the
// environment.
func Defaults() map[string]any {
	return map[string]any{
		"MQTT_BROKER":              "localhost",
		"MQTT_PORT":                1883,
		"MQTT_USERNAME":            "",
		"MQTT_PASSWORD":            "",
		"MQTT_CLIENT_ID":           "plugwarden",
		"BOT_TOKEN":                "",
		"CHAT_ID":                  0,
		"ADMIN_IDS":                []int64{},
		"HEAD_USER_ID":             0,
		"SHARED_ERROR_ACCOUNTING":  true,
		"POWER_THRESHOLD":          30.0,
		"TICK_INTERVAL_MINUTES":    2,
		"DEFAULT_DAILY_MINUTES":    125,
		"STALE_SECONDS":            80,
		"LOW_BUDGET_THRESHOLD":     6,
		"REPORT_INTERVAL_MINUTES":  30,
		"TELEMETRY_PERIOD_SECONDS": 30,
		"DATA_DIR":                 "./data",
		"LOG_LEVEL":                "info",
	}
}

// ErrMissingBotToken is returned when no Telegram bot token is configured.
var ErrMissingBotToken = errors.New("config: BOT_TOKEN is not set")

// Load reads configuration from the environment, layered over an optional
// config file.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.BotToken == "" {
		return ErrMissingBotToken
	}
	if c.MQTTPort <= 0 || c.MQTTPort > 65535 {
		return fmt.Errorf("config: invalid MQTT_PORT %d", c.MQTTPort)
	}
	if c.PowerThreshold <= 0 {
		return fmt.Errorf("config: POWER_THRESHOLD must be positive, got %v", c.PowerThreshold)
	}
	if c.TickIntervalMinutes <= 0 {
		return fmt.Errorf("config: TICK_INTERVAL_MINUTES must be positive, got %d", c.TickIntervalMinutes)
	}
	return nil
}

// TickInterval returns the enforcement cadence as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMinutes) * time.Minute
}

// StaleThreshold returns the telemetry watchdog threshold as a duration.
func (c *Config) StaleThreshold() time.Duration {
	return time.Duration(c.StaleSeconds) * time.Second
}

// ReportInterval returns the periodic report cadence as a duration.
func (c *Config) ReportInterval() time.Duration {
	return time.Duration(c.ReportIntervalMins) * time.Minute
}

// TelemetryPeriod returns the device reporting period as a duration.
func (c *Config) TelemetryPeriod() time.Duration {
	return time.Duration(c.TelemetryPeriodSecs) * time.Second
}

// IsAdmin reports whether the user may run administrative commands.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
