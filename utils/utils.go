package utils

import (
	"fmt"
	"math/rand"
	"os"
)

// GetEnv reads an environment variable, falling back to the provided default
// when the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// CreateFolder creates the directory (and parents) if it doesn't exist.
func CreateFolder(folderPath string) error {
	if _, err := os.Stat(folderPath); os.IsNotExist(err) {
		if err := os.MkdirAll(folderPath, 0755); err != nil {
			return fmt.Errorf("failed to create folder %s: %w", folderPath, err)
		}
	}
	return nil
}

// GenerateUniqueID returns a random 32-bit identifier for stored records.
func GenerateUniqueID() uint32 {
	return rand.Uint32()
}
