package hash

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost = 12
	minKeyLen  = 8
	keyEntropy = 32
)

// GenerateKey returns a random URL-safe API key.
func GenerateKey() (string, error) {
	buf := make([]byte, keyEntropy)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func Hash(key string) (string, error) {
	if len(key) < minKeyLen {
		return "", fmt.Errorf("api key must be at least %d characters", minKeyLen)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash api key: %w", err)
	}
	return string(hashed), nil
}

func Compare(hashedKey, key string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedKey), []byte(key))
}
