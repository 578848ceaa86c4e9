package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// GenerateToken returns a URL-safe random string with at least 128 bits of
// entropy. Used as the bearer secret embedded in redemption QR codes.
func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateTransactionID produces a readable payment-transaction reference.
func GenerateTransactionID() string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("txn_%d_%x", time.Now().Unix(), buf)
}
