// Package config loads and validates the application configuration from
// defaults, a YAML file, and BOT_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the bot.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LoggerConfig controls log level and output format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds the bot credentials.
type TelegramConfig struct {
	Token string `mapstructure:"token" validate:"required"`
}

// DatabaseConfig selects the SQLite database file. DebugPath is a second,
// distinct instance used when the process starts in debug mode, so test
// quotes never land in the production database.
type DatabaseConfig struct {
	Path      string `mapstructure:"path"       validate:"required"`
	DebugPath string `mapstructure:"debug_path" validate:"required"`
}

// SchedulerConfig holds the scheduled task definitions keyed by task name.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig enables a task and sets its cron schedule.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// LoadConfig reads configuration from the given YAML file path, layered over
// defaults and under BOT_* environment variables, then validates it.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine: env vars and defaults still apply.
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", false)

	// Registering the key lets BOT_TELEGRAM_TOKEN reach Unmarshal even
	// without a config file. Validation still rejects the empty value.
	v.SetDefault("telegram.token", "")

	v.SetDefault("database.path", "quotes.db")
	v.SetDefault("database.debug_path", "quotes_test.db")

	v.SetDefault("scheduler.tasks", map[string]TaskConfig{
		"db_maintenance": {Enabled: true, Schedule: "0 0 4 * * *"},
	})
}

// DBPath returns the database path for the selected mode.
func (c *Config) DBPath(debug bool) string {
	if debug {
		return c.Database.DebugPath
	}
	return c.Database.Path
}
