package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LIVEBID_"

// EnvConfigFile names the variable holding an optional YAML file path.
const EnvConfigFile = EnvPrefix + "CONFIG"

// listKeys accept a comma separated string when set from the environment.
var listKeys = []string{"allowed_origins"}

// Load layers New() defaults, the YAML file named by LIVEBID_CONFIG and
// LIVEBID_* variables, in increasing precedence, then validates.
func Load(_ context.Context) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(New(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("%w: defaults: %w", ErrLoadConfig, err)
	}

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// LIVEBID_QUEUE_SIZE -> queue_size; keys stay flat.
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}
	k.Delete("config")

	for _, key := range listKeys {
		if err := splitList(k, key); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, key, err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}

func splitList(k *koanf.Koanf, key string) error {
	raw, ok := k.Get(key).(string)
	if !ok {
		return nil
	}
	var items []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	return k.Set(key, items)
}
