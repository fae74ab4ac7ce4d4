package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries the process configuration, populated from the environment.
type Config struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogEncoding string `env:"LOG_ENCODING" envDefault:"json"`

	// JournalPath is the bbolt file backing the event journal; empty keeps
	// everything in memory.
	JournalPath string `env:"JOURNAL_PATH"`

	// DatabaseURI is the Postgres projection used by the billing fan-out
	// and statement store; empty falls back to the in-memory read model.
	DatabaseURI string `env:"DATABASE_URI"`

	// AMQPURI enables event and email egress through RabbitMQ.
	AMQPURI      string `env:"AMQP_URI"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"corebank"`

	// GatewayURL is the domestic transfer gateway endpoint.
	GatewayURL string `env:"GATEWAY_URL" envDefault:"http://localhost:9090"`

	Shards         int           `env:"SHARDS" envDefault:"16"`
	PassivateAfter time.Duration `env:"PASSIVATE_AFTER" envDefault:"2m"`
	SnapshotEvery  int           `env:"SNAPSHOT_EVERY" envDefault:"50"`

	BreakerThreshold int           `env:"BREAKER_THRESHOLD" envDefault:"5"`
	BreakerCooldown  time.Duration `env:"BREAKER_COOLDOWN" envDefault:"30s"`

	BillingCron   string        `env:"BILLING_CRON" envDefault:"0 0 1 * *"`
	ThrottleBurst int           `env:"THROTTLE_BURST" envDefault:"5"`
	ThrottleCount int           `env:"THROTTLE_COUNT" envDefault:"25"`
	ThrottlePer   time.Duration `env:"THROTTLE_PER" envDefault:"1s"`
}

// Parse reads the configuration from environment variables.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
