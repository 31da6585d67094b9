package feed

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSignerRoundTrip(t *testing.T) {
	signer := NewTokenSigner("secret", time.Hour)

	token, expiresAt, err := signer.Generate("user-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	userID, parsedExp, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, expiresAt.Unix(), parsedExp.Unix())
}

func TestTokenSignerRejectsTampering(t *testing.T) {
	signer := NewTokenSigner("secret", time.Hour)

	token, _, err := signer.Generate("user-1")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	parts[2] = strings.Repeat("0", len(parts[2]))

	_, _, err = signer.Parse(strings.Join(parts, "."))
	require.Error(t, err)
}

func TestTokenSignerRejectsExpired(t *testing.T) {
	signer := &TokenSigner{secret: []byte("secret"), ttl: -time.Hour}

	token, _, err := signer.Generate("user-1")
	require.NoError(t, err)

	_, _, err = signer.Parse(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestTokenSignerRejectsWrongSecret(t *testing.T) {
	signer := NewTokenSigner("secret", time.Hour)
	other := NewTokenSigner("different", time.Hour)

	token, _, err := signer.Generate("user-1")
	require.NoError(t, err)

	_, _, err = other.Parse(token)
	require.Error(t, err)
}

func TestTokenSignerRequiresUser(t *testing.T) {
	signer := NewTokenSigner("secret", time.Hour)
	_, _, err := signer.Generate("")
	require.Error(t, err)
}
