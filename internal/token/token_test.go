package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-of-reasonable-length"

func TestAccessTokenRoundTrip(t *testing.T) {
	t.Parallel()

	tok, err := IssueAccess("alice", testSecret, 15*time.Minute, "HS256")
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	subject, err := VerifyAccess(tok, testSecret, "HS256")
	require.NoError(t, err)
	assert.Equal(t, "alice", subject)
}

func TestVerifyAccess_Rejections(t *testing.T) {
	t.Parallel()

	valid, err := IssueAccess("alice", testSecret, 15*time.Minute, "HS256")
	require.NoError(t, err)

	expired, err := IssueAccess("alice", testSecret, -time.Minute, "HS256")
	require.NoError(t, err)

	// Signed with HS512 but presented to a verifier pinned to HS256.
	hs512, err := IssueAccess("alice", testSecret, 15*time.Minute, "HS512")
	require.NoError(t, err)

	// "alg": "none" must never be accepted.
	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "alice"})
	noneTok, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(15 * time.Minute)),
	})
	noSubjectTok, err := noSubject.SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"expired", expired},
		{"wrong algorithm", hs512},
		{"alg none", noneTok},
		{"missing subject", noSubjectTok},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := VerifyAccess(tt.token, testSecret, "HS256")
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()

		_, err := VerifyAccess(valid, "a-different-secret", "HS256")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestNewRefreshSecret(t *testing.T) {
	t.Parallel()

	a, err := NewRefreshSecret()
	require.NoError(t, err)
	b, err := NewRefreshSecret()
	require.NoError(t, err)

	// 32 random bytes base64url-encoded without padding.
	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "=")
	assert.NotContains(t, a, "+")
	assert.NotContains(t, a, "/")
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	secret, err := NewRefreshSecret()
	require.NoError(t, err)

	fp, err := Fingerprint(secret)
	require.NoError(t, err)
	assert.Contains(t, fp, "$argon2id$v=19$")

	assert.True(t, Matches(secret, fp))
	assert.False(t, Matches("some-other-secret", fp))

	// Same secret hashed twice must not produce the same string
	// (fresh salt per fingerprint) yet both must verify.
	fp2, err := Fingerprint(secret)
	require.NoError(t, err)
	assert.NotEqual(t, fp, fp2)
	assert.True(t, Matches(secret, fp2))
}

func TestMatches_MalformedFingerprint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fp   string
	}{
		{"empty", ""},
		{"not phc", "sha256:deadbeef"},
		{"wrong variant", "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"},
		{"truncated", "$argon2id$v=19$m=65536,t=1,p=4"},
		{"bad base64", "$argon2id$v=19$m=65536,t=1,p=4$!!!$???"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.False(t, Matches("whatever", tt.fp))
		})
	}
}
