package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/manmanrai/limerime-vercel-api/internal/eligibility"
)

func TestNewDefaultsAreValid(t *testing.T) {
	cfg := New()
	cfg.Shopify.Mock = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	month, day := cfg.Sync.Cutoff()
	if month != time.April || day != 1 {
		t.Fatalf("expected April 1 cutoff, got %s %d", month, day)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown age policy", func(c *Config) { c.Sync.AgePolicy = "lunar" }},
		{"unknown tag policy", func(c *Config) { c.Sync.TagPolicy = "all" }},
		{"unknown subject policy", func(c *Config) { c.Sync.SubjectPolicy = "family" }},
		{"zero threshold", func(c *Config) { c.Sync.AgeThreshold = 0 }},
		{"month out of range", func(c *Config) { c.Sync.CutoffMonth = 13 }},
		{"day out of range", func(c *Config) { c.Sync.CutoffMonth, c.Sync.CutoffDay = 4, 31 }},
		{"leap day cutoff", func(c *Config) { c.Sync.CutoffMonth, c.Sync.CutoffDay = 2, 29 }},
		{"no concurrency", func(c *Config) { c.Sync.MaxConcurrency = 0 }},
		{"no timeout", func(c *Config) { c.Shopify.Timeout = 0 }},
		{"shop without token", func(c *Config) { c.Shopify.ShopDomain = "x.myshopify.com" }},
		{"no shop and no mock", func(c *Config) { c.Shopify.ShopDomain, c.Shopify.Mock = "", false }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			cfg.Shopify.Mock = true
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestValidateForcedMock(t *testing.T) {
	cfg := New()
	cfg.Shopify.ShopDomain = "x.myshopify.com"
	cfg.Shopify.Mock = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected forced mock to skip the token check, got %v", err)
	}
	if !cfg.UseMock() {
		t.Fatal("expected UseMock")
	}
	if cfg.Sync.TagPolicy != eligibility.TagPolicyExclusive {
		t.Fatalf("expected exclusive tag policy, got %s", cfg.Sync.TagPolicy)
	}
}

func TestMissingShopDoesNotFallBackToMock(t *testing.T) {
	cfg := New()
	if cfg.UseMock() {
		t.Fatal("expected the mock store to require the mock flag")
	}
	err := cfg.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if !strings.Contains(err.Error(), "shopify.shop_domain") {
		t.Fatalf("expected the error to name the shop domain, got %v", err)
	}
}
