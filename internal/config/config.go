// Package config defines the service configuration and its defaults.
package config

import (
	"fmt"
	"time"

	"github.com/manmanrai/limerime-vercel-api/internal/eligibility"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	Shopify ShopifyConfig `koanf:"shopify"`
	Sync    SyncConfig    `koanf:"sync"`
}

// ShopifyConfig locates and authenticates the Shopify Admin API.
type ShopifyConfig struct {
	// ShopDomain is the shop's myshopify.com host. Required unless Mock is set.
	ShopDomain    string        `koanf:"shop_domain"`
	AdminAPIToken string        `koanf:"admin_api_token"`
	APIVersion    string        `koanf:"api_version"`
	Timeout       time.Duration `koanf:"timeout"`
	// Mock selects the in-memory demo store, even when a shop is configured.
	Mock bool `koanf:"mock"`
}

// SyncConfig selects the eligibility policies and fan-out limits.
type SyncConfig struct {
	AgePolicy     eligibility.AgePolicy     `koanf:"age_policy"`
	TagPolicy     eligibility.TagPolicy     `koanf:"tag_policy"`
	SubjectPolicy eligibility.SubjectPolicy `koanf:"subject_policy"`
	AgeThreshold  int                       `koanf:"age_threshold"`

	// CutoffMonth and CutoffDay set the fiscal cutoff day.
	CutoffMonth int `koanf:"cutoff_month"`
	CutoffDay   int `koanf:"cutoff_day"`

	// MaxConcurrency bounds the writes in flight per request.
	MaxConcurrency int `koanf:"max_concurrency"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel: "info",
		Shopify: ShopifyConfig{
			APIVersion: "2025-04",
			Timeout:    10 * time.Second,
		},
		Sync: SyncConfig{
			AgePolicy:      eligibility.AgePolicyFiscal,
			TagPolicy:      eligibility.TagPolicyExclusive,
			SubjectPolicy:  eligibility.SubjectSelf,
			AgeThreshold:   eligibility.Threshold,
			CutoffMonth:    int(time.April),
			CutoffDay:      1,
			MaxConcurrency: 8,
		},
	}
}

// UseMock reports whether the service should run against the in-memory store.
func (c *Config) UseMock() bool {
	return c.Shopify.Mock
}

// Cutoff returns the fiscal cutoff month and day.
func (s SyncConfig) Cutoff() (time.Month, int) {
	return time.Month(s.CutoffMonth), s.CutoffDay
}

// Validate checks every field and returns the first problem found.
func (c *Config) Validate() error {
	if _, err := eligibility.ParseAgePolicy(string(c.Sync.AgePolicy)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := eligibility.ParseTagPolicy(string(c.Sync.TagPolicy)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := eligibility.ParseSubjectPolicy(string(c.Sync.SubjectPolicy)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Sync.AgeThreshold <= 0 {
		return fmt.Errorf("%w: sync.age_threshold must be positive, got %d", ErrInvalidConfig, c.Sync.AgeThreshold)
	}
	if !validCutoff(c.Sync.CutoffMonth, c.Sync.CutoffDay) {
		return fmt.Errorf("%w: invalid fiscal cutoff %d/%d", ErrInvalidConfig, c.Sync.CutoffMonth, c.Sync.CutoffDay)
	}
	if c.Sync.MaxConcurrency < 1 {
		return fmt.Errorf("%w: sync.max_concurrency must be at least 1, got %d", ErrInvalidConfig, c.Sync.MaxConcurrency)
	}
	if c.Shopify.Timeout <= 0 {
		return fmt.Errorf("%w: shopify.timeout must be positive", ErrInvalidConfig)
	}
	if c.UseMock() {
		return nil
	}
	if c.Shopify.ShopDomain == "" {
		return fmt.Errorf("%w: shopify.shop_domain is required unless shopify.mock is set", ErrInvalidConfig)
	}
	if c.Shopify.AdminAPIToken == "" {
		return fmt.Errorf("%w: shopify.admin_api_token is required when shopify.shop_domain is set", ErrInvalidConfig)
	}
	return nil
}

// validCutoff accepts month/day pairs that exist in every year, so Feb 29 is rejected.
func validCutoff(month, day int) bool {
	if month < 1 || month > 12 || day < 1 {
		return false
	}
	t := time.Date(2023, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Month() == time.Month(month) && t.Day() == day
}
