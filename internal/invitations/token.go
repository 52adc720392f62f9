package invitations

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	// TokenLength is the length of an invitation token: a hyphen-free v4 UUID
	// (32 hex chars) followed by 8 random bytes in hex (16 chars).
	TokenLength = 48

	tokenSuffixBytes = 8
)

// GenerateToken returns a fresh, unguessable invitation token.
func GenerateToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate token id: %w", err)
	}

	suffix := make([]byte, tokenSuffixBytes)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return strings.ReplaceAll(id.String(), "-", "") + hex.EncodeToString(suffix), nil
}

// ValidateTokenFormat reports whether token has the shape GenerateToken produces.
func ValidateTokenFormat(token string) bool {
	if len(token) != TokenLength {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
