// Package config centralizes process configuration: environment
// variables with defaults, plus an optional YAML overlay for consumer
// tuning.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"gopkg.in/yaml.v3"
)

// DB holds Postgres connection settings.
type DB struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN returns the Postgres connection URL.
func (d DB) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// Consumer tunes the consumption loop. Durations are plain integers so
// the YAML overlay stays declarative.
type Consumer struct {
	PollTimeoutMS     int    `yaml:"poll_timeout_ms"`
	ReportIntervalSec int    `yaml:"report_interval_sec"`
	StartupAttempts   int    `yaml:"startup_attempts"`
	StartupDelaySec   int    `yaml:"startup_delay_sec"`
	DLQSubject        string `yaml:"dlq_subject"`
}

func (c Consumer) PollTimeout() time.Duration    { return time.Duration(c.PollTimeoutMS) * time.Millisecond }
func (c Consumer) ReportInterval() time.Duration { return time.Duration(c.ReportIntervalSec) * time.Second }
func (c Consumer) StartupDelay() time.Duration   { return time.Duration(c.StartupDelaySec) * time.Second }

// Producer tunes the synthetic generator's publish cadence.
type Producer struct {
	MinDelayMS int `yaml:"min_delay_ms"`
	MaxDelayMS int `yaml:"max_delay_ms"`
}

func (p Producer) MinDelay() time.Duration { return time.Duration(p.MinDelayMS) * time.Millisecond }
func (p Producer) MaxDelay() time.Duration { return time.Duration(p.MaxDelayMS) * time.Millisecond }

type Config struct {
	NATSURL  string
	HTTPAddr string
	DB       DB
	Consumer Consumer `yaml:"consumer"`
	Producer Producer `yaml:"producer"`
}

// FromEnv builds a config from environment variables with defaults.
func FromEnv() Config {
	return Config{
		NATSURL:  getEnv("NATS_URL", nats.DefaultURL),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		DB: DB{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Database: getEnv("DB_NAME", "eventstore"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Consumer: Consumer{
			PollTimeoutMS:     getEnvAsInt("POLL_TIMEOUT_MS", 1000),
			ReportIntervalSec: getEnvAsInt("REPORT_INTERVAL_SEC", 10),
			StartupAttempts:   getEnvAsInt("STARTUP_ATTEMPTS", 10),
			StartupDelaySec:   getEnvAsInt("STARTUP_DELAY_SEC", 3),
			DLQSubject:        getEnv("DLQ_SUBJECT", "dlq.events"),
		},
		Producer: Producer{
			MinDelayMS: getEnvAsInt("PRODUCE_MIN_DELAY_MS", 500),
			MaxDelayMS: getEnvAsInt("PRODUCE_MAX_DELAY_MS", 2000),
		},
	}
}

// ApplyFile overlays YAML tuning from path onto c. A missing path is
// not an error so deployments without a config file stay on defaults.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	var overlay struct {
		Consumer Consumer `yaml:"consumer"`
		Producer Producer `yaml:"producer"`
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if overlay.Consumer.PollTimeoutMS > 0 {
		c.Consumer.PollTimeoutMS = overlay.Consumer.PollTimeoutMS
	}
	if overlay.Consumer.ReportIntervalSec > 0 {
		c.Consumer.ReportIntervalSec = overlay.Consumer.ReportIntervalSec
	}
	if overlay.Consumer.StartupAttempts > 0 {
		c.Consumer.StartupAttempts = overlay.Consumer.StartupAttempts
	}
	if overlay.Consumer.StartupDelaySec > 0 {
		c.Consumer.StartupDelaySec = overlay.Consumer.StartupDelaySec
	}
	if overlay.Consumer.DLQSubject != "" {
		c.Consumer.DLQSubject = overlay.Consumer.DLQSubject
	}
	if overlay.Producer.MinDelayMS > 0 {
		c.Producer.MinDelayMS = overlay.Producer.MinDelayMS
	}
	if overlay.Producer.MaxDelayMS > 0 {
		c.Producer.MaxDelayMS = overlay.Producer.MaxDelayMS
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
