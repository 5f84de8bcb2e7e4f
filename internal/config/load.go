package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultConfigPath returns the conventional config file location,
// ~/.config/waypoint/config.toml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}

	return filepath.Join(home, ".config", "waypoint", "config.toml")
}

// Load reads and parses a TOML config file. Unknown keys are fatal —
// silently ignoring a typo in a config file leads to hard-to-debug
// behavior. Validation happens later in Resolve, after environment
// overrides are applied.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}

		return nil, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// all defaults. Deployments that configure entirely through environment
// variables need no config file at all.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain: defaults ->
// config file -> environment. It validates the result, absolutizes the
// sandbox root and state directory, and ensures the root exists (creating
// it on first run, like the original deployment did at startup). The
// returned root is canonical (symlinks resolved), which the sandbox
// resolver's containment check depends on.
func Resolve(env EnvOverrides, cliConfigPath string) (*Config, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cliConfigPath != "" {
		cfgPath = cliConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	applyEnv(cfg, env)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if err := finalizePaths(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overwrites config fields with any environment overrides.
func applyEnv(cfg *Config, env EnvOverrides) {
	if env.Root != "" {
		cfg.Sandbox.Root = env.Root
	}

	if env.Username != "" {
		cfg.Auth.Username = env.Username
	}

	if env.PasswordHash != "" {
		cfg.Auth.PasswordHash = env.PasswordHash
	}

	if env.JWTSecret != "" {
		cfg.Auth.JWTSecret = env.JWTSecret
	}

	if env.Listen != "" {
		cfg.Server.Listen = env.Listen
	}

	if env.StateDir != "" {
		cfg.State.Dir = env.StateDir
	}
}

// validAlgorithms are the symmetric JWT signing algorithms we accept.
var validAlgorithms = map[string]bool{
	"HS256": true,
	"HS384": true,
	"HS512": true,
}

// Validate checks the fully merged configuration for required fields and
// sane values.
func Validate(cfg *Config) error {
	if cfg.Auth.Username == "" {
		return fmt.Errorf("auth.username is required (or %s)", EnvUsername)
	}

	if cfg.Auth.PasswordHash == "" {
		return fmt.Errorf("auth.password_hash is required (or %s); generate one with `waypoint hash-password`", EnvPasswordHash)
	}

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (or %s)", EnvJWTSecret)
	}

	if !validAlgorithms[cfg.Auth.JWTAlgorithm] {
		return fmt.Errorf("auth.jwt_algorithm must be HS256, HS384 or HS512, got %q", cfg.Auth.JWTAlgorithm)
	}

	if cfg.Auth.AccessTTLMinutes <= 0 {
		return fmt.Errorf("auth.access_ttl_minutes must be positive, got %d", cfg.Auth.AccessTTLMinutes)
	}

	if cfg.Watcher.DebounceMS <= 0 {
		return fmt.Errorf("watcher.debounce_ms must be positive, got %d", cfg.Watcher.DebounceMS)
	}

	if cfg.Upload.MaxBytes < 0 {
		return fmt.Errorf("upload.max_bytes must not be negative, got %d", cfg.Upload.MaxBytes)
	}

	return nil
}

// finalizePaths expands and absolutizes the sandbox root and state
// directory, creates the root if missing, and canonicalizes it.
func finalizePaths(cfg *Config) error {
	root, err := expandTilde(cfg.Sandbox.Root)
	if err != nil {
		return err
	}

	root, err = filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving sandbox root: %w", err)
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("creating sandbox root %s: %w", root, err)
	}

	root, err = filepath.EvalSymlinks(root)
	if err != nil {
		return fmt.Errorf("canonicalizing sandbox root: %w", err)
	}

	cfg.Sandbox.Root = root

	stateDir, err := expandTilde(cfg.State.Dir)
	if err != nil {
		return err
	}

	stateDir, err = filepath.Abs(stateDir)
	if err != nil {
		return fmt.Errorf("resolving state directory: %w", err)
	}

	cfg.State.Dir = stateDir

	if cfg.Audit.Path == "" {
		cfg.Audit.Path = filepath.Join(stateDir, "audit.db")
	}

	return nil
}

// expandTilde replaces a leading "~" with the user's home directory.
func expandTilde(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", path, err)
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
