// Package config defines process-wide configuration parsed once at
// startup from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all dispatchd configuration. A Config value is built
// once in main(), which copies the fields each daemon needs into that
// daemon's struct; no daemon mutates it.
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"dev"`
	TestMode bool   `env:"TEST_MODE" envDefault:"false"`

	IntakeTopicName     string `env:"INTAKE_TOPIC_NAME" envDefault:"work-to-prioritize"`
	DeadLetterTopicName string `env:"DEAD_LETTER_TOPIC_NAME" envDefault:"failed-work"`
	TopicTablePath      string `env:"TOPIC_TABLE_PATH" envDefault:"PubSubTopics.csv"`

	WaitTimeoutSeconds int `env:"WAIT_TIMEOUT_SECONDS" envDefault:"60"`

	ProjectID string `env:"PROJECT_ID"`

	KafkaBrokers        []string      `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	RedisAddr           string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	LeaseSeconds        int           `env:"LEASE_SECONDS" envDefault:"60"`
	OTLPEndpoint        string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName     string        `env:"OTEL_SERVICE_NAME" envDefault:"dispatchd"`
	MetricsAddr         string        `env:"METRICS_ADDR" envDefault:":9090"`
	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"5s"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// WaitTimeout returns the configured child-process timeout as a duration.
func (c Config) WaitTimeout() time.Duration {
	return time.Duration(c.WaitTimeoutSeconds) * time.Second
}

// LeaseDuration returns the configured broker lease duration.
func (c Config) LeaseDuration() time.Duration {
	return time.Duration(c.LeaseSeconds) * time.Second
}
