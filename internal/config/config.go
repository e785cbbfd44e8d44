// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Dedup backends.
const (
	DedupBackendPostgres = "postgres"
	DedupBackendRedis    = "redis"
	DedupBackendMemory   = "memory"
)

// Config holds all configuration for the notification service.
type Config struct {
	// Server
	Port int

	DatabaseURL string

	// Redis; empty URL disables event publishing and the redis dedup backend.
	RedisURL    string
	EventsQueue string

	Dedup     DedupConfig
	Worker    WorkerConfig
	Email     EmailConfig
	JWTSecret string
	Webhook   WebhookConfig
	Portfolio PortfolioConfig
}

type DedupConfig struct {
	Window  time.Duration
	Backend string
}

type WorkerConfig struct {
	Enabled     bool
	BatchSize   int
	Interval    time.Duration
	Concurrency int
}

type EmailConfig struct {
	From          string
	RatePerSecond int
	SMTP          SMTPConfig
}

// SMTPConfig is unused when Host is empty; mail is then only logged.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

type WebhookConfig struct {
	Token      string
	AllowedIPs string
}

// PortfolioConfig points at the portfolio service. Holdings enrichment is
// off when BaseURL is empty.
type PortfolioConfig struct {
	BaseURL      string
	Timeout      time.Duration
	TokenURL     string
	ClientID     string
	ClientSecret string
	Audience     string
	Scope        string
	ClockSkew    time.Duration
}

// rawConfig mirrors the YAML structure for unmarshalling. Scalars are kept
// as strings so environment overrides and defaults merge the same way.
type rawConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Events string `yaml:"events"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Dedup struct {
		Window  string `yaml:"window"`
		Backend string `yaml:"backend"`
	} `yaml:"dedup"`
	Worker struct {
		Enabled     string `yaml:"enabled"`
		BatchSize   string `yaml:"batch_size"`
		Interval    string `yaml:"interval"`
		Concurrency string `yaml:"concurrency"`
	} `yaml:"worker"`
	Email struct {
		From          string `yaml:"from"`
		RatePerSecond string `yaml:"rate_per_second"`
		SMTP          struct {
			Host     string `yaml:"host"`
			Port     string `yaml:"port"`
			Username string `yaml:"username"`
			Password string `yaml:"password"`
		} `yaml:"smtp"`
	} `yaml:"email"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Webhooks struct {
		Email struct {
			Token      string `yaml:"token"`
			AllowedIPs string `yaml:"allowed_ips"`
		} `yaml:"email"`
	} `yaml:"webhooks"`
	Portfolio struct {
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
		Auth    struct {
			TokenURL     string `yaml:"token_url"`
			ClientID     string `yaml:"client_id"`
			ClientSecret string `yaml:"client_secret"`
			Audience     string `yaml:"audience"`
			Scope        string `yaml:"scope"`
			ClockSkew    string `yaml:"clock_skew"`
		} `yaml:"auth"`
	} `yaml:"portfolio"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// lets environment variables override it. A missing file is not an error.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	default:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	return fromRaw(raw)
}

func fromRaw(raw rawConfig) (*Config, error) {
	p := &parser{}
	cfg := &Config{
		Port:        p.int("PORT", raw.Server.Port, 8080),
		DatabaseURL: pick("DATABASE_URL", raw.Database.URL, "postgres://localhost:5432/notifications"),
		RedisURL:    pick("REDIS_URL", raw.Redis.URL, ""),
		EventsQueue: pick("EVENTS_QUEUE", raw.Redis.Queues.Events, "notification-events"),
		Dedup: DedupConfig{
			Window:  p.duration("DEDUP_WINDOW", raw.Dedup.Window, 5*time.Minute),
			Backend: strings.ToLower(pick("DEDUP_BACKEND", raw.Dedup.Backend, DedupBackendPostgres)),
		},
		Worker: WorkerConfig{
			Enabled:     p.bool("WORKER_ENABLED", raw.Worker.Enabled, true),
			BatchSize:   p.int("WORKER_BATCH_SIZE", raw.Worker.BatchSize, 25),
			Interval:    p.duration("WORKER_INTERVAL", raw.Worker.Interval, 5*time.Second),
			Concurrency: p.int("WORKER_CONCURRENCY", raw.Worker.Concurrency, 1),
		},
		Email: EmailConfig{
			From:          pick("EMAIL_FROM", raw.Email.From, "no-reply@notivest.local"),
			RatePerSecond: p.int("EMAIL_RATE_PER_SECOND", raw.Email.RatePerSecond, 10),
			SMTP: SMTPConfig{
				Host:     pick("SMTP_HOST", raw.Email.SMTP.Host, ""),
				Port:     p.int("SMTP_PORT", raw.Email.SMTP.Port, 587),
				Username: pick("SMTP_USERNAME", raw.Email.SMTP.Username, ""),
				Password: pick("SMTP_PASSWORD", raw.Email.SMTP.Password, ""),
			},
		},
		JWTSecret: pick("JWT_SECRET", raw.Auth.JWTSecret, ""),
		Webhook: WebhookConfig{
			Token:      pick("EMAIL_WEBHOOK_TOKEN", raw.Webhooks.Email.Token, ""),
			AllowedIPs: pick("EMAIL_WEBHOOK_ALLOWED_IPS", raw.Webhooks.Email.AllowedIPs, ""),
		},
		Portfolio: PortfolioConfig{
			BaseURL:      pick("PORTFOLIO_BASE_URL", raw.Portfolio.BaseURL, ""),
			Timeout:      p.duration("PORTFOLIO_TIMEOUT", raw.Portfolio.Timeout, 5*time.Second),
			TokenURL:     pick("PORTFOLIO_TOKEN_URL", raw.Portfolio.Auth.TokenURL, ""),
			ClientID:     pick("PORTFOLIO_CLIENT_ID", raw.Portfolio.Auth.ClientID, ""),
			ClientSecret: pick("PORTFOLIO_CLIENT_SECRET", raw.Portfolio.Auth.ClientSecret, ""),
			Audience:     pick("PORTFOLIO_AUDIENCE", raw.Portfolio.Auth.Audience, ""),
			Scope:        pick("PORTFOLIO_SCOPE", raw.Portfolio.Auth.Scope, ""),
			ClockSkew:    p.duration("PORTFOLIO_CLOCK_SKEW", raw.Portfolio.Auth.ClockSkew, 30*time.Second),
		},
	}
	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Dedup.Window <= 0 || c.Dedup.Window%time.Second != 0 {
		errs = append(errs, fmt.Errorf("dedup.window must be a positive whole number of seconds, got %s", c.Dedup.Window))
	}
	switch c.Dedup.Backend {
	case DedupBackendPostgres, DedupBackendMemory:
	case DedupBackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("dedup.backend redis requires redis.url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown dedup.backend %q", c.Dedup.Backend))
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("worker.batch_size must be positive, got %d", c.Worker.BatchSize))
	}
	if c.Worker.Interval <= 0 {
		errs = append(errs, fmt.Errorf("worker.interval must be positive, got %s", c.Worker.Interval))
	}
	if c.Worker.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("worker.concurrency must be at least 1, got %d", c.Worker.Concurrency))
	}
	if c.Portfolio.BaseURL != "" && c.Portfolio.TokenURL == "" {
		errs = append(errs, errors.New("portfolio.auth.token_url is required when portfolio.base_url is set"))
	}
	return errors.Join(errs...)
}

// pick returns the environment value, then the YAML value, then fallback.
func pick(key, yamlValue, fallback string) string {
	return firstNonEmpty(os.Getenv(key), yamlValue, fallback)
}

// parser records the first malformed value.
type parser struct {
	err error
}

func (p *parser) fail(key, v string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
}

func (p *parser) int(key, yamlValue string, fallback int) int {
	v := pick(key, yamlValue, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return n
}

func (p *parser) bool(key, yamlValue string, fallback bool) bool {
	v := pick(key, yamlValue, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return b
}

func (p *parser) duration(key, yamlValue string, fallback time.Duration) time.Duration {
	v := pick(key, yamlValue, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return d
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
