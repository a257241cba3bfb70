// Package config loads server settings from an optional config.yaml and
// MEMORY_* environment variables, then validates them.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment key, e.g. MEMORY_SERVER_PORT.
const EnvPrefix = "MEMORY"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Game     GameConfig     `mapstructure:"game"`
}

// ServerConfig contains HTTP and logging settings.
type ServerConfig struct {
	Port         int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel     string `mapstructure:"log_level" validate:"required,oneof=trace debug info warn error fatal"`
	PrettyLogs   bool   `mapstructure:"pretty_logs"`
	ClientOrigin string `mapstructure:"client_origin" validate:"required,url"`
	Production   bool   `mapstructure:"production"`
}

// DatabaseConfig points at the SQLite file holding records and accounts.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// AuthConfig controls account tokens and cookies.
type AuthConfig struct {
	JWTSecret      string `mapstructure:"jwt_secret" validate:"required,min=16"`
	JWTExpiresDays int    `mapstructure:"jwt_expires_days" validate:"gte=1,lte=365"`
	CookieName     string `mapstructure:"cookie_name" validate:"required"`
}

// GameConfig controls live sessions.
type GameConfig struct {
	SymbolsFile string        `mapstructure:"symbols_file"`
	SessionTTL  time.Duration `mapstructure:"session_ttl" validate:"gte=1m"`
	DailySalt   string        `mapstructure:"daily_salt" validate:"required"`
}

var keys = map[string]any{
	"server.port":           5175,
	"server.log_level":      "info",
	"server.pretty_logs":    false,
	"server.client_origin":  "http://localhost:5173",
	"server.production":     false,
	"database.path":         "./data/app.db",
	"auth.jwt_secret":       "dev_secret_change_me",
	"auth.jwt_expires_days": 14,
	"auth.cookie_name":      "memory_token",
	"game.symbols_file":     "",
	"game.session_ttl":      "2h",
	"game.daily_salt":       "local_dev_salt",
}

// Load reads defaults, then the config file (if any), then the environment.
// configPath may be empty; a missing default config.yaml is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	for k, def := range keys {
		v.SetDefault(k, def)
	}

	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only applies to keys viper already knows; bind them all so
	// Unmarshal sees environment-only values too.
	for k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.Server.Production && cfg.Auth.JWTSecret == keys["auth.jwt_secret"] {
		return nil, errors.New("config validation failed: auth.jwt_secret must be set in production")
	}
	return &cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Server.Port) }
