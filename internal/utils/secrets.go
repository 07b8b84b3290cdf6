package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// MinJWTSecretBytes is the entropy GenerateJWTSecret draws for a signing key
const MinJWTSecretBytes = 48

// GenerateJWTSecret returns a random URL-safe signing key for profile tokens
func GenerateJWTSecret() (string, error) {
	b := make([]byte, MinJWTSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
