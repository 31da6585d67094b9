package feed

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TokenSigner creates and validates calendar feed tokens. A token ties a feed
// URL to one user so external calendar clients can fetch events without a
// session.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenSigner constructs a signer with the provided secret and TTL.
func NewTokenSigner(secret string, ttl time.Duration) *TokenSigner {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &TokenSigner{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Generate returns a signed token bound to the user ID.
func (s *TokenSigner) Generate(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, fmt.Errorf("userID required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := time.Now().Add(s.ttl)
	encodedUser := base64.RawURLEncoding.EncodeToString([]byte(userID))
	payload := fmt.Sprintf("%s|%d", encodedUser, expiresAt.Unix())
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	signature := hex.EncodeToString(mac.Sum(nil))
	token := strings.Join([]string{encodedUser, strconv.FormatInt(expiresAt.Unix(), 10), signature}, ".")
	return token, expiresAt, nil
}

// Parse validates a token and returns the embedded user ID.
func (s *TokenSigner) Parse(token string) (userID string, expiresAt time.Time, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", time.Time{}, fmt.Errorf("invalid token format")
	}
	encodedUser := parts[0]
	ts := parts[1]
	signature := parts[2]

	rawUser, err := base64.RawURLEncoding.DecodeString(encodedUser)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("decode user: %w", err)
	}

	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid expiry timestamp")
	}
	expiresAt = time.Unix(expUnix, 0)

	payload := fmt.Sprintf("%s|%s", encodedUser, ts)
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", time.Time{}, fmt.Errorf("signature mismatch")
	}

	if time.Now().After(expiresAt) {
		return "", time.Time{}, fmt.Errorf("token expired")
	}

	return string(rawUser), expiresAt, nil
}
