// Vetbridge - Practice Management Integration Core
// Copyright 2026 Vetbridge Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vetbridge/vetbridge

// Package config defines Vetbridge configuration and its layered loading.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Vetbridge service.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Provider ProviderConfig `koanf:"provider"`
	Sync     SyncConfig     `koanf:"sync"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// DatabaseConfig holds settings for the shared Postgres store.
type DatabaseConfig struct {
	DSN             string        `koanf:"dsn"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// ProviderConfig holds settings for the practice-management API transport.
type ProviderConfig struct {
	// RequestTimeout bounds a single HTTP attempt.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// MaxRetries bounds retry attempts on 401 and 429 responses.
	MaxRetries int `koanf:"max_retries"`

	// PageSize is the page size used when walking list endpoints.
	PageSize int `koanf:"page_size"`

	// RefreshBuffer triggers proactive credential refresh this long before
	// the cached credential expires.
	RefreshBuffer time.Duration `koanf:"refresh_buffer"`

	// RateLimitPerEndpoint is the per-clinic, per-endpoint call ceiling
	// within a sliding 60-second window.
	RateLimitPerEndpoint int `koanf:"rate_limit_per_endpoint"`

	// RateLimitGlobal is the per-clinic global call ceiling within a sliding
	// 60-second window.
	RateLimitGlobal int `koanf:"rate_limit_global"`

	// RateLimitAvailability is the higher ceiling applied to the real-time
	// availability endpoint.
	RateLimitAvailability int `koanf:"rate_limit_availability"`

	// TokenEndpointRate limits credential-issuance calls per second per
	// clinic (token endpoints have their own, much lower, ceilings).
	TokenEndpointRate float64 `koanf:"token_endpoint_rate"`
}

// SyncConfig holds orchestration settings.
type SyncConfig struct {
	// Interval between periodic full syncs of all active clinics.
	Interval time.Duration `koanf:"interval"`

	// Lookback is the modified-since overlap window used by the periodic
	// sync so that records changed since the previous run are re-fetched.
	Lookback time.Duration `koanf:"lookback"`

	// WebhookWindow bounds webhook-triggered narrow resyncs.
	WebhookWindow time.Duration `koanf:"webhook_window"`

	// BatchSize is the number of rows written per storage batch.
	BatchSize int `koanf:"batch_size"`

	// FailureThreshold is the fraction of fetched records that may fail to
	// upsert while the run still closes as completed. 1.0 means a run only
	// fails when the fetch itself fails.
	FailureThreshold float64 `koanf:"failure_threshold"`
}

// SecurityConfig holds secrets for the trigger surfaces.
type SecurityConfig struct {
	// JWTSecret signs and verifies manual-trigger bearer tokens (HS256).
	JWTSecret string `koanf:"jwt_secret"`

	// CronSecret authenticates the periodic trigger endpoint.
	CronSecret string `koanf:"cron_secret"`

	// WebhookSecret is the shared secret expected in the webhook header.
	WebhookSecret string `koanf:"webhook_secret"`

	// RateLimitReqs / RateLimitWindow throttle inbound API requests per IP.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Validate checks the configuration for values that cannot work at runtime.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Provider.MaxRetries < 0 {
		return fmt.Errorf("provider.max_retries must not be negative, got %d", c.Provider.MaxRetries)
	}
	if c.Provider.PageSize < 1 || c.Provider.PageSize > 200 {
		return fmt.Errorf("provider.page_size must be between 1 and 200, got %d", c.Provider.PageSize)
	}
	if c.Provider.RateLimitPerEndpoint < 1 || c.Provider.RateLimitGlobal < 1 {
		return fmt.Errorf("provider rate limits must be positive")
	}
	if c.Sync.BatchSize < 1 {
		return fmt.Errorf("sync.batch_size must be positive, got %d", c.Sync.BatchSize)
	}
	if c.Sync.FailureThreshold < 0 || c.Sync.FailureThreshold > 1 {
		return fmt.Errorf("sync.failure_threshold must be within [0,1], got %g", c.Sync.FailureThreshold)
	}
	if c.Security.JWTSecret != "" && len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters")
	}
	return nil
}
