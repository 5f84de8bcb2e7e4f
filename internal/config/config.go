// Package config implements TOML configuration loading, validation, and
// environment overrides for waypoint. Resolution follows a three-layer
// override chain (defaults -> config file -> environment), with secrets
// (password hash, JWT secret) typically supplied via environment so the
// config file can be committed without them.
package config

// Config is the top-level structure parsed from a TOML file.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Auth    AuthConfig    `toml:"auth"`
	Sandbox SandboxConfig `toml:"sandbox"`
	State   StateConfig   `toml:"state"`
	Logging LoggingConfig `toml:"logging"`
	Watcher WatcherConfig `toml:"watcher"`
	Upload  UploadConfig  `toml:"upload"`
	Audit   AuditConfig   `toml:"audit"`
}

// ServerConfig controls the HTTP listener and browser access.
type ServerConfig struct {
	Listen         string   `toml:"listen"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// AuthConfig holds the single user's credentials and token settings.
// PasswordHash is an argon2id PHC string produced by `waypoint
// hash-password`.
type AuthConfig struct {
	Username         string `toml:"username"`
	PasswordHash     string `toml:"password_hash"`
	JWTSecret        string `toml:"jwt_secret"`
	JWTAlgorithm     string `toml:"jwt_algorithm"`
	AccessTTLMinutes int    `toml:"access_ttl_minutes"`
}

// SandboxConfig fixes the directory all file operations are confined to.
type SandboxConfig struct {
	Root string `toml:"root"`
}

// StateConfig controls where session state and the audit ledger live.
type StateConfig struct {
	Dir string `toml:"dir"`
}

// LoggingConfig controls log output: level and format.
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text, json, or "" for auto (text on a terminal)
}

// WatcherConfig controls change-event batching.
type WatcherConfig struct {
	DebounceMS int `toml:"debounce_ms"`
}

// UploadConfig caps upload sizes. Zero means unlimited.
type UploadConfig struct {
	MaxBytes int64 `toml:"max_bytes"`
}

// AuditConfig controls the operation ledger. An empty path defaults to
// audit.db inside the state directory.
type AuditConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Default values applied before the config file is read.
const (
	defaultListen     = "127.0.0.1:8000"
	defaultOrigin     = "http://localhost:5173"
	defaultRoot       = "~/WaypointRoot"
	defaultStateDir   = ".waypoint_state"
	defaultTTLMinutes = 15
	defaultAlgorithm  = "HS256"
	defaultDebounceMS = 200
)

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:         defaultListen,
			AllowedOrigins: []string{defaultOrigin},
		},
		Auth: AuthConfig{
			JWTAlgorithm:     defaultAlgorithm,
			AccessTTLMinutes: defaultTTLMinutes,
		},
		Sandbox: SandboxConfig{Root: defaultRoot},
		State:   StateConfig{Dir: defaultStateDir},
		Logging: LoggingConfig{Level: "info"},
		Watcher: WatcherConfig{DebounceMS: defaultDebounceMS},
		Audit:   AuditConfig{Enabled: true},
	}
}
