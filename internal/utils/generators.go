package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateSessionID returns an opaque identifier for an anonymous cart session.
func GenerateSessionID() string {
	return "sess_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// GenerateUUID creates a random UUID v4
func GenerateUUID() string {
	return uuid.NewString()
}
