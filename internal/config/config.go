package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Address string `mapstructure:"address"`
	Port    int    `mapstructure:"port"`
	Mode    string `mapstructure:"mode"`
}

// Addr is the listen address for gin.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver  string `mapstructure:"driver"`
	DSN     string `mapstructure:"dsn"`
	LogMode bool   `mapstructure:"log_mode"`
	// Migrate runs the embedded SQL migrations instead of AutoMigrate.
	// Only honored for postgres.
	Migrate bool `mapstructure:"migrate"`
}

type SyncConfig struct {
	BridgeURL              string        `mapstructure:"bridge_url"`
	Token                  string        `mapstructure:"token"`
	Timeout                time.Duration `mapstructure:"timeout"`
	OnBudgetLookbackDays   int           `mapstructure:"on_budget_lookback_days"`
	OffBudgetLookbackDays  int           `mapstructure:"off_budget_lookback_days"`
	IncrementalOverlapDays int           `mapstructure:"incremental_overlap_days"`
	Concurrency            int           `mapstructure:"concurrency"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Log      LogConfig      `mapstructure:"log"`
	CORS     CORSConfig     `mapstructure:"cors"`
}

const envPrefix = "LEDGER"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.log_mode", false)
	v.SetDefault("database.migrate", true)

	v.SetDefault("sync.bridge_url", "http://localhost:5006")
	v.SetDefault("sync.token", "")
	v.SetDefault("sync.timeout", 30*time.Second)
	v.SetDefault("sync.on_budget_lookback_days", 1)
	v.SetDefault("sync.off_budget_lookback_days", 30)
	v.SetDefault("sync.incremental_overlap_days", 31)
	v.SetDefault("sync.concurrency", 4)

	v.SetDefault("log.level", "info")
	v.SetDefault("cors.allow_origins", []string{"http://localhost:3000"})
}

// Load reads an optional .env file, then the config file at path (or
// config.yaml in the working directory), then LEDGER_* environment
// variables. A missing config file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	// environment overrides, e.g. LEDGER_DATABASE_DSN
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported database.driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("config: database.dsn is required")
	}
	if c.Sync.Concurrency < 1 {
		c.Sync.Concurrency = 1
	}
	return nil
}
