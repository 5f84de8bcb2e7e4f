package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	assert.Equal(t, "127.0.0.1:8000", cfg.Server.Listen)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "HS256", cfg.Auth.JWTAlgorithm)
	assert.Equal(t, 15, cfg.Auth.AccessTTLMinutes)
	assert.Equal(t, 200, cfg.Watcher.DebounceMS)
	assert.True(t, cfg.Audit.Enabled)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[server]
listen = "0.0.0.0:9000"
allowed_origins = ["https://files.example.com"]

[auth]
username = "alice"
password_hash = "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"
jwt_secret = "sekrit"
access_ttl_minutes = 30

[sandbox]
root = "/srv/files"

[upload]
max_bytes = 1048576
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Listen)
	assert.Equal(t, []string{"https://files.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "alice", cfg.Auth.Username)
	assert.Equal(t, 30, cfg.Auth.AccessTTLMinutes)
	assert.Equal(t, "/srv/files", cfg.Sandbox.Root)
	assert.Equal(t, int64(1048576), cfg.Upload.MaxBytes)

	// Unspecified values keep their defaults.
	assert.Equal(t, "HS256", cfg.Auth.JWTAlgorithm)
	assert.Equal(t, 200, cfg.Watcher.DebounceMS)
}

func TestLoad_UnknownKeysFatal(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[auth]
usernme = "alice"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config keys")
	assert.Contains(t, err.Error(), "auth.usernme")
}

func TestLoad_BadTOML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `this is = not [valid`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadOrDefault_Missing(t *testing.T) {
	t.Parallel()

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_OverrideChain(t *testing.T) {
	root := t.TempDir()
	stateDir := filepath.Join(t.TempDir(), "state")

	path := writeConfig(t, `
[auth]
username = "fileuser"
password_hash = "from-file"
jwt_secret = "from-file"
`)

	// Environment beats the config file.
	cfg, err := Resolve(EnvOverrides{
		Root:         root,
		PasswordHash: "from-env",
		JWTSecret:    "from-env",
		StateDir:     stateDir,
	}, path)
	require.NoError(t, err)

	assert.Equal(t, "fileuser", cfg.Auth.Username)
	assert.Equal(t, "from-env", cfg.Auth.PasswordHash)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)

	// Paths come back absolute; the audit path defaults into the state dir.
	assert.True(t, filepath.IsAbs(cfg.Sandbox.Root))
	assert.Equal(t, stateDir, cfg.State.Dir)
	assert.Equal(t, filepath.Join(stateDir, "audit.db"), cfg.Audit.Path)
}

func TestResolve_CreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "sandbox", "root")

	_, err := Resolve(EnvOverrides{
		Root:         root,
		Username:     "alice",
		PasswordHash: "hash",
		JWTSecret:    "secret",
		StateDir:     t.TempDir(),
	}, filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Auth.Username = "alice"
		cfg.Auth.PasswordHash = "hash"
		cfg.Auth.JWTSecret = "secret"

		return cfg
	}

	require.NoError(t, Validate(valid()))

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing username", func(c *Config) { c.Auth.Username = "" }, "auth.username"},
		{"missing password hash", func(c *Config) { c.Auth.PasswordHash = "" }, "auth.password_hash"},
		{"missing jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }, "auth.jwt_secret"},
		{"bad algorithm", func(c *Config) { c.Auth.JWTAlgorithm = "RS256" }, "jwt_algorithm"},
		{"zero ttl", func(c *Config) { c.Auth.AccessTTLMinutes = 0 }, "access_ttl_minutes"},
		{"zero debounce", func(c *Config) { c.Watcher.DebounceMS = 0 }, "debounce_ms"},
		{"negative max upload", func(c *Config) { c.Upload.MaxBytes = -1 }, "max_bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
