package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	iss, err := NewIssuer()
	require.NoError(t, err)

	tok, err := iss.Issue("ABC123", "p1")
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	assert.NoError(t, iss.Verify(tok, "ABC123", "p1"))
	assert.True(t, errors.Is(iss.Verify(tok, "ABC123", "p2"), ErrTokenMismatch))
	assert.True(t, errors.Is(iss.Verify(tok, "ZZZ999", "p1"), ErrTokenMismatch))
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	a, err := NewIssuer()
	require.NoError(t, err)
	b, err := NewIssuer()
	require.NoError(t, err)

	tok, err := a.Issue("ROOM", "p")
	require.NoError(t, err)
	assert.Error(t, b.Verify(tok, "ROOM", "p"))
	assert.Error(t, a.Verify("garbage", "ROOM", "p"))
}

func TestTokensCarryNoExpiry(t *testing.T) {
	iss, err := NewIssuer()
	require.NoError(t, err)
	tok, err := iss.Issue("ROOM", "p")
	require.NoError(t, err)

	var claims ResumeClaims
	_, _, err = jwt.NewParser().ParseUnverified(tok, &claims)
	require.NoError(t, err)
	assert.Nil(t, claims.ExpiresAt)

	// A token issued long ago still verifies.
	parser := jwt.NewParser(jwt.WithTimeFunc(func() time.Time { return time.Now().Add(24 * time.Hour) }))
	_, err = parser.ParseWithClaims(tok, &ResumeClaims{}, func(*jwt.Token) (interface{}, error) {
		return iss.publicKey, nil
	})
	assert.NoError(t, err)
}
