package config

import "os"

// Environment variable names for overrides. Secrets belong here rather
// than in the config file.
const (
	EnvConfig       = "WAYPOINT_CONFIG"
	EnvRoot         = "WAYPOINT_ROOT"
	EnvUsername     = "WAYPOINT_USERNAME"
	EnvPasswordHash = "WAYPOINT_PASSWORD_HASH"
	EnvJWTSecret    = "WAYPOINT_JWT_SECRET"
	EnvListen       = "WAYPOINT_LISTEN"
	EnvStateDir     = "WAYPOINT_STATE_DIR"
)

// EnvOverrides holds values derived from environment variables. Empty
// fields mean "not set"; non-empty fields beat the config file.
type EnvOverrides struct {
	ConfigPath   string
	Root         string
	Username     string
	PasswordHash string
	JWTSecret    string
	Listen       string
	StateDir     string
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. This does not modify the Config; Resolve applies them.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		Root:         os.Getenv(EnvRoot),
		Username:     os.Getenv(EnvUsername),
		PasswordHash: os.Getenv(EnvPasswordHash),
		JWTSecret:    os.Getenv(EnvJWTSecret),
		Listen:       os.Getenv(EnvListen),
		StateDir:     os.Getenv(EnvStateDir),
	}
}
