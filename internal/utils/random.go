package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// RefreshTokenBytes is the amount of randomness in a refresh token (256 bits).
const RefreshTokenBytes = 32

// NewRefreshTokenValue returns a fresh opaque refresh token: 32 bytes from
// crypto/rand, hex encoded (64 characters).
func NewRefreshTokenValue() (string, error) {
	return randomHex(RefreshTokenBytes)
}

// randomHex returns a hex‑encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
