/*
config.go - Process configuration

PURPOSE:
  One place that decides how the server is configured. Values come from,
  in increasing priority:
    1. Defaults (below)
    2. Optional config file (--config, YAML/JSON/TOML by extension)
    3. .env file in the working directory (loaded into the environment)
    4. Environment variables prefixed PCE_ (PCE_SERVER_PORT, PCE_DB_PATH, ...)
    5. Command-line flags bound by cmd/server

KEYS:
  server.port              HTTP port (8080)
  server.shutdown_timeout  graceful shutdown budget (10s)
  db.path                  SQLite file, ":memory:" for a throwaway db
  cache.ttl                collection cache TTL (5m)
  cache.warm_interval      background warm interval, 0 disables (1m)
  log.level                zerolog level name (info)
  log.pretty               console writer instead of JSON (false)
  cors.allowed_origins     comma separated or list ("*")
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "PCE"

// Config is the fully resolved configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	DB     DBConfig     `mapstructure:"db"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Log    LogConfig    `mapstructure:"log"`
	CORS   CORSConfig   `mapstructure:"cors"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`
}

type DBConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type CacheConfig struct {
	TTL          time.Duration `mapstructure:"ttl" validate:"gt=0"`
	WarmInterval time.Duration `mapstructure:"warm_interval" validate:"min=0"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Pretty bool   `mapstructure:"pretty"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins" validate:"min=1"`
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("db.path", "./data/project-controls.db")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.warm_interval", time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("cors.allowed_origins", []string{"*"})
}

// New returns a viper instance with defaults and environment binding in
// place. Flags may be bound to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load resolves the configuration from v. A missing .env is not an error;
// a missing explicit config file is.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.CORS.AllowedOrigins = splitOrigins(cfg.CORS.AllowedOrigins)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// splitOrigins accepts both a list and a single comma separated string
// (the form environment variables arrive in).
func splitOrigins(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
