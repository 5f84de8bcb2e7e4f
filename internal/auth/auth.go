// Package auth implements the single-user session lifecycle: login,
// refresh-token rotation, logout, and the access-token guard placed in
// front of every file operation. It composes the token primitives with the
// persisted session store and is the sole owner of the refresh
// fingerprint.
package auth

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tonimelisma/waypoint/internal/session"
	"github.com/tonimelisma/waypoint/internal/token"
)

// Sentinel errors. All map to 401 at the HTTP boundary.
var (
	// ErrInvalidCredentials is returned for a bad username OR a bad
	// password. The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrStaleRefresh is returned when the presented refresh secret does
	// not match the stored fingerprint, including after rotation or logout.
	ErrStaleRefresh = errors.New("auth: invalid or stale refresh token")

	// ErrInvalidToken is returned by Authenticate for bad, expired, or
	// mis-subjected access tokens.
	ErrInvalidToken = errors.New("auth: invalid or expired access token")
)

// TokenPair is what login and refresh return: a short-lived signed access
// token, the new opaque refresh secret, and the access token lifetime in
// seconds.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Credentials holds the configured single user and signing material.
type Credentials struct {
	Username     string
	PasswordHash string // argon2id PHC string
	JWTSecret    string
	JWTAlgorithm string
	AccessTTL    time.Duration
}

// Manager implements the session state machine. The mutex serializes every
// read-check-write sequence over the stored fingerprint, so two concurrent
// refreshes against the same prior secret cannot both succeed and the
// state file never has two writers.
type Manager struct {
	mu     sync.Mutex
	creds  Credentials
	store  *session.Store
	logger *slog.Logger
}

// NewManager creates a Manager. The store's persisted state (if any)
// survives as-is: a refresh token issued before a restart keeps working.
func NewManager(creds Credentials, store *session.Store, logger *slog.Logger) *Manager {
	return &Manager{
		creds:  creds,
		store:  store,
		logger: logger,
	}
}

// Login verifies the username and password and, on success, issues a fresh
// access token and refresh secret, persisting only the secret's
// fingerprint. Any previously issued refresh secret is invalidated by the
// overwrite.
func (m *Manager) Login(username, password string) (TokenPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	usernameOK := subtle.ConstantTimeCompare([]byte(username), []byte(m.creds.Username)) == 1

	// The password check always runs, even for a wrong username, so both
	// failure modes cost the same and return the same error.
	passwordOK := token.Matches(password, m.creds.PasswordHash)

	if !usernameOK || !passwordOK {
		m.logger.Warn("login failed", slog.String("username", username))
		return TokenPair{}, ErrInvalidCredentials
	}

	pair, err := m.issueLocked()
	if err != nil {
		return TokenPair{}, err
	}

	m.logger.Info("login successful", slog.String("username", username))

	return pair, nil
}

// Refresh rotates the session: the presented secret must match the stored
// fingerprint, which is then atomically replaced with the fingerprint of a
// newly issued secret. Rotation makes every refresh secret one-time-use —
// the old secret becomes permanently invalid because only the current
// fingerprint is ever stored.
func (m *Manager) Refresh(presented string) (TokenPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.store.Load()
	if !ok || !token.Matches(presented, stored) {
		m.logger.Warn("refresh rejected: no session or stale secret")
		return TokenPair{}, ErrStaleRefresh
	}

	pair, err := m.issueLocked()
	if err != nil {
		return TokenPair{}, err
	}

	m.logger.Info("session refreshed")

	return pair, nil
}

// Logout clears the stored fingerprint unconditionally. Idempotent:
// logging out twice is not an error.
func (m *Manager) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Clear(); err != nil {
		return err
	}

	m.logger.Info("session revoked")

	return nil
}

// Authenticate verifies an access token's signature and expiry and checks
// that its subject is the configured user. Returns the subject.
func (m *Manager) Authenticate(accessToken string) (string, error) {
	subject, err := token.VerifyAccess(accessToken, m.creds.JWTSecret, m.creds.JWTAlgorithm)
	if err != nil {
		return "", ErrInvalidToken
	}

	if subtle.ConstantTimeCompare([]byte(subject), []byte(m.creds.Username)) != 1 {
		return "", ErrInvalidToken
	}

	return subject, nil
}

// issueLocked mints a new access token and refresh secret and persists the
// secret's fingerprint. Caller must hold m.mu.
func (m *Manager) issueLocked() (TokenPair, error) {
	access, err := token.IssueAccess(m.creds.Username, m.creds.JWTSecret, m.creds.AccessTTL, m.creds.JWTAlgorithm)
	if err != nil {
		return TokenPair{}, err
	}

	refresh, err := token.NewRefreshSecret()
	if err != nil {
		return TokenPair{}, err
	}

	fingerprint, err := token.Fingerprint(refresh)
	if err != nil {
		return TokenPair{}, err
	}

	if err := m.store.Save(fingerprint); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(m.creds.AccessTTL.Seconds()),
	}, nil
}
