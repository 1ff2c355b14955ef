package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// FileEnv names the environment variable holding an optional YAML config path.
const FileEnv = "SYNC_CONFIG"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. YAML file if SYNC_CONFIG is set
//  3. env: SHOPIFY_* -> shopify.*, SYNC_* -> sync.*, LOG_LEVEL -> log_level
func Load(_ context.Context) (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(FileEnv); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: reading %s: %w", ErrLoadConfig, path, err)
		}
	}

	for _, prefix := range []string{"SHOPIFY_", "SYNC_"} {
		section := strings.ToLower(strings.TrimSuffix(prefix, "_"))
		provider := env.Provider(prefix, ".", func(s string) string {
			key := strings.TrimPrefix(strings.ToLower(s), section+"_")
			// SYNC_CONFIG is the file path, not a setting.
			if section == "sync" && key == "config" {
				return ""
			}
			return section + "." + key
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}
	if err := k.Load(env.Provider("LOG_LEVEL", ".", strings.ToLower), nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
