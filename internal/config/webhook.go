package config

import "time"

// Webhook represents the configuration for notification delivery
type Webhook struct {
	Enabled bool   `mapstructure:"enabled"`
	Topic   string `mapstructure:"topic" validate:"required"`
	// Endpoints receive every published notification as a JSON POST
	Endpoints []WebhookEndpoint `mapstructure:"endpoints" validate:"dive"`

	MaxRetries      int           `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

// WebhookEndpoint is one notification receiver
type WebhookEndpoint struct {
	URL            string            `mapstructure:"url" validate:"required,url"`
	Headers        map[string]string `mapstructure:"headers"`
	ExcludedEvents []string          `mapstructure:"excluded_events"`
}
