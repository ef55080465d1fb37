package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var hashRegex = regexp.MustCompile(`^[0-9a-f]{64}$`)

// File is one entry of the file index, identified by its content hash.
type File struct {
	Hash        string    `json:"hash"`
	NeedsSearch bool      `json:"needs_search"`
	AddedAt     time.Time `json:"added_at"`
}

// IsValidHash reports whether value is a canonical lowercase SHA-256 hex digest.
func IsValidHash(value string) bool {
	return hashRegex.MatchString(value)
}

// NormalizeHash lowercases and validates one file hash.
func NormalizeHash(raw string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return "", fmt.Errorf("hash is required")
	}
	if !IsValidHash(value) {
		return "", fmt.Errorf("invalid hash: %s", raw)
	}
	return value, nil
}

// NormalizeHashes validates hashes and removes repeats, keeping first-seen order.
func NormalizeHashes(values []string) ([]string, error) {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		hash, err := NormalizeHash(raw)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[hash]; ok {
			continue
		}
		seen[hash] = struct{}{}
		out = append(out, hash)
	}
	return out, nil
}
