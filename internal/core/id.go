package core

import (
	"github.com/google/uuid"
)

// GenerateID returns a new random identifier for conversations and child rows.
func GenerateID() string {
	return uuid.NewString()
}

// ShortID trims an identifier for display in logs and CLI tables.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
