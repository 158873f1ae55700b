package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flexprice/pullpay/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Server     ServerConfig     `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Postgres   PostgresConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Relay      RelayConfig
	Asset      AssetConfig
	Registry   RegistryConfig
	Hook       HookConfig
	Sweeper    SweeperConfig
	Webhook    Webhook
	Sentry     SentryConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type ServerConfig struct {
	Address        string   `validate:"required"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type PostgresConfig struct {
	Host                   string `mapstructure:"host"`
	Port                   int    `mapstructure:"port"`
	User                   string `mapstructure:"user"`
	Password               string `mapstructure:"password"`
	DBName                 string `mapstructure:"dbname"`
	SSLMode                string `mapstructure:"sslmode"`
	MaxOpenConns           int    `mapstructure:"max_open_conns" default:"10"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns" default:"5"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes" default:"60"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig verifies the Bearer tokens that carry the caller address
type AuthConfig struct {
	Secret string       `mapstructure:"secret" validate:"required"`
	APIKey APIKeyConfig `mapstructure:"api_key"`
}

// APIKeyConfig maps hashed keys to the caller they act as
type APIKeyConfig struct {
	Header string                   `mapstructure:"header"`
	Keys   map[string]APIKeyDetails `mapstructure:"keys"`
}

type APIKeyDetails struct {
	Caller   string `mapstructure:"caller"`
	Operator bool   `mapstructure:"operator"`
	IsActive bool   `mapstructure:"is_active"`
}

// RelayConfig holds the address payers approve as spender
type RelayConfig struct {
	Address string `mapstructure:"address" validate:"required"`
}

type AssetConfig struct {
	Store types.AssetStore `mapstructure:"store" validate:"omitempty,oneof=postgres memory"`
}

type RegistryConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type HookConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries uint64        `mapstructure:"max_retries"`
}

type SweeperConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Schedule  string `mapstructure:"schedule"`
	BatchSize int    `mapstructure:"batch_size"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

func NewConfig() (*Configuration, error) {
	// A local .env file seeds PULLPAY_* variables before viper reads them
	if err := godotenv.Load(); err == nil {
		fmt.Println("Loaded environment from .env")
	}

	v := viper.New()

	// Modify config paths to ensure config.yaml is found
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pullpay")

	// Set up environment variables support
	v.SetEnvPrefix("PULLPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()
	setDefaults(v)

	// Read config file if exists
	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", types.ModeLocal)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", types.LogLevelInfo)
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime_minutes", 60)
	v.SetDefault("auth.api_key.header", "x-api-key")
	v.SetDefault("asset.store", types.AssetStorePostgres)
	v.SetDefault("registry.cache_ttl", 5*time.Minute)
	v.SetDefault("hook.timeout", 10*time.Second)
	v.SetDefault("hook.max_retries", 2)
	v.SetDefault("sweeper.schedule", "*/5 * * * *")
	v.SetDefault("sweeper.batch_size", 100)
	v.SetDefault("webhook.topic", "subscription_events")
	v.SetDefault("webhook.max_retries", 3)
	v.SetDefault("webhook.initial_interval", time.Second)
	v.SetDefault("webhook.max_interval", 10*time.Second)
	v.SetDefault("webhook.multiplier", 2.0)
	v.SetDefault("webhook.max_elapsed_time", 2*time.Minute)
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a default configuration for local development
// This is useful for running scripts or other non-web applications
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Server:     ServerConfig{Address: ":8080"},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Auth:       AuthConfig{Secret: "local-development-secret", APIKey: APIKeyConfig{Header: "x-api-key"}},
		Relay:      RelayConfig{Address: "0x00000000000000000000000000000000000f1e1a"},
		Asset:      AssetConfig{Store: types.AssetStoreMemory},
		Registry:   RegistryConfig{CacheTTL: time.Minute},
		Hook:       HookConfig{Timeout: 5 * time.Second, MaxRetries: 2},
		Sweeper:    SweeperConfig{Schedule: "*/5 * * * *", BatchSize: 100},
		Webhook: Webhook{
			Topic:           "subscription_events",
			MaxRetries:      3,
			InitialInterval: time.Second,
			MaxInterval:     10 * time.Second,
			Multiplier:      2,
			MaxElapsedTime:  2 * time.Minute,
		},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}
