// Package token implements the credential primitives for waypoint's
// single-user authentication: short-lived signed access tokens (JWT,
// symmetric HMAC), opaque random refresh secrets, and argon2id
// fingerprints for storing secrets without retaining them. The same
// fingerprint primitive verifies the configured password hash and the
// persisted refresh-secret hash.
package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/argon2"
)

// Sentinel errors for access-token verification.
var (
	// ErrInvalidToken covers malformed, mis-signed, and expired tokens.
	// Callers surface all three identically to avoid oracle behavior.
	ErrInvalidToken = errors.New("token: invalid or expired access token")
)

// refreshSecretBytes is the entropy of a refresh secret (256 bits).
const refreshSecretBytes = 32

// argon2id parameters. Matches the argon2 library defaults used by the
// hash-password command, so fingerprints and config password hashes are
// interchangeable.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// IssueAccess creates a signed access token for subject with issued-at now
// and expiry now+ttl. The algorithm name must be one of HS256, HS384 or
// HS512 (validated by config).
func IssueAccess(subject, secret string, ttl time.Duration, algorithm string) (string, error) {
	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return "", fmt.Errorf("token: unknown signing algorithm %q", algorithm)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("token: signing access token: %w", err)
	}

	return signed, nil
}

// VerifyAccess validates signature and expiry and returns the token's
// subject. The algorithm is pinned: a token signed with any method other
// than the configured one is rejected, which also blocks alg-substitution
// tricks like "none".
func VerifyAccess(tokenStr, secret, algorithm string) (string, error) {
	claims := &jwt.RegisteredClaims{}

	parsed, err := jwt.ParseWithClaims(tokenStr, claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{algorithm}),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	if claims.Subject == "" {
		return "", ErrInvalidToken
	}

	return claims.Subject, nil
}

// NewRefreshSecret generates a cryptographically random, URL-safe refresh
// secret. It is an opaque bearer secret, never a structured token.
func NewRefreshSecret() (string, error) {
	buf := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("token: generating refresh secret: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Fingerprint derives a salted argon2id hash of secret in PHC string
// format. The secret itself is never stored; Matches verifies a presented
// secret against the stored fingerprint.
func Fingerprint(secret string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("token: generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(secret), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Matches reports whether secret matches the given argon2id fingerprint.
// Unparseable fingerprints simply do not match — a corrupt stored hash
// fails safe to "wrong secret" rather than an error path callers might
// treat differently.
func Matches(secret, fingerprint string) bool {
	salt, key, timeCost, memory, threads, err := decodeFingerprint(fingerprint)
	if err != nil {
		return false
	}

	derived := argon2.IDKey([]byte(secret), salt, timeCost, memory, threads, uint32(len(key)))

	return subtle.ConstantTimeCompare(derived, key) == 1
}

// decodeFingerprint parses a PHC-format argon2id string into its salt,
// derived key, and cost parameters.
func decodeFingerprint(fingerprint string) (salt, key []byte, timeCost, memory uint32, threads uint8, err error) {
	parts := strings.Split(fingerprint, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, 0, 0, 0, fmt.Errorf("token: malformed fingerprint")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, nil, 0, 0, 0, fmt.Errorf("token: unsupported argon2 version")
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &threads); err != nil {
		return nil, nil, 0, 0, 0, fmt.Errorf("token: malformed cost parameters")
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, 0, 0, 0, fmt.Errorf("token: decoding salt: %w", err)
	}

	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, 0, 0, 0, fmt.Errorf("token: decoding key: %w", err)
	}

	return salt, key, timeCost, memory, threads, nil
}
