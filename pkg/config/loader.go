package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Initialize loads, validates, and returns ready-to-use configuration.
// configDir may be empty, in which case only built-in defaults are used.
//
// Steps performed:
//  1. Load built-in defaults (embedded builtin.yaml)
//  2. Load butterfly.yaml from configDir, if present
//  3. Expand environment variables
//  4. Deep-merge user config over built-in defaults
//  5. Decode into the typed Config struct
//  6. Validate
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("configuration initialized",
		"database_path", stats.DatabasePath,
		"key_provider", stats.KeyProvider,
		"llm_backend", stats.LLMBackend,
		"sandbox_default_deny", stats.SandboxDefaultDeny,
		"allowlist_size", stats.AllowlistSize)

	return cfg, nil
}

func load(configDir string) (*Config, error) {
	builtin, err := decodeYAMLMap(builtinYAML)
	if err != nil {
		return nil, NewLoadError("builtin.yaml", err)
	}

	merged := builtin
	if configDir != "" {
		path := filepath.Join(configDir, "butterfly.yaml")
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, NewLoadError(path, err)
			}
		} else {
			data = ExpandEnv(data)
			user, err := decodeYAMLMap(data)
			if err != nil {
				return nil, NewLoadError(path, err)
			}
			merged = mergeMaps(builtin, user)
		}
	}

	raw, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	cfg.Raw = merged

	return &cfg, nil
}

func decodeYAMLMap(data []byte) (map[string]any, error) {
	m := map[string]any{}
	if len(data) == 0 {
		return m, nil
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func validate(cfg *Config) error {
	if cfg.Database.Path == "" {
		return &ValidationError{Field: "database.path", Err: ErrMissingRequiredField}
	}
	switch cfg.Security.Provider {
	case KeyProviderLinux, KeyProviderGeneric:
	default:
		return &ValidationError{Field: "security.provider", Err: ErrInvalidValue}
	}
	switch cfg.LLM.Backend {
	case LLMBackendMock, LLMBackendGRPC:
	default:
		return &ValidationError{Field: "llm.backend", Err: ErrInvalidValue}
	}
	if cfg.LLM.Backend == LLMBackendGRPC && cfg.LLM.GRPCTarget == "" {
		return &ValidationError{Field: "llm.grpc_target", Err: ErrMissingRequiredField}
	}
	return nil
}

// dottedLookup walks a dot-separated path ("brains.settings.tick_seconds")
// through a nested map[string]any tree, as produced by decodeYAMLMap/
// mergeMaps. Returns (nil, false) if any segment is missing or not a map.
func dottedLookup(root map[string]any, path string) (any, bool) {
	segs := splitDots(path)
	cur := any(root)
	for i, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		if i == len(segs)-1 {
			return v, true
		}
		cur = v
	}
	return nil, false
}

func splitDots(path string) []string {
	var segs []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			segs = append(segs, path[start:i])
			start = i + 1
		}
	}
	segs = append(segs, path[start:])
	return segs
}

// GetInt reads a recognized dotted-path option (e.g.
// "brains.settings.tick_seconds"), falling back to def when absent or of
// the wrong type.
func (c *Config) GetInt(path string, def int) int {
	v, ok := dottedLookup(c.Raw, path)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	}
	return def
}

// GetString reads a recognized dotted-path option, falling back to def.
func (c *Config) GetString(path string, def string) string {
	v, ok := dottedLookup(c.Raw, path)
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// GetBool reads a recognized dotted-path option, falling back to def.
func (c *Config) GetBool(path string, def bool) bool {
	v, ok := dottedLookup(c.Raw, path)
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// GetSecondsDuration reads a recognized dotted-path option expressed in
// whole seconds, applying the spec's "min 1" floor used throughout the
// scheduler's recognized options.
func (c *Config) GetSecondsDuration(path string, defSeconds int) time.Duration {
	secs := c.GetInt(path, defSeconds)
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}
