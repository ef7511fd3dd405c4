package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig
	Import   ImportConfig
	Currency CurrencyConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path           string
	MigrationsPath string `mapstructure:"migrations_path"`
}

// ImportConfig bounds per-file processing.
type ImportConfig struct {
	MaxConcurrentTransforms int           `mapstructure:"max_concurrent_transforms"`
	TransformTimeout        time.Duration `mapstructure:"transform_timeout"`
}

// CurrencyConfig holds the user's home currency for converted amounts and a
// static rate table, keyed "FROM/TO" with decimal string values.
type CurrencyConfig struct {
	Home  string
	Rates map[string]string
}

// Load reads configuration from file and env. Env var overrides use prefix
// BANKFEED_.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "bankfeed", "bankfeed.db"))
	v.SetDefault("database.migrations_path", "internal/database/migrations")
	v.SetDefault("import.max_concurrent_transforms", 4)
	v.SetDefault("import.transform_timeout", "30s")
	v.SetDefault("currency.home", "EUR")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("BANKFEED_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "bankfeed"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("BANKFEED")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
