package storage

import (
	"crypto/sha256"
	"encoding/hex"
)

// GenerateHash returns the lower-case hex SHA-256 of data.
// This is the dedup identity of an entry.
func GenerateHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// EntryHash returns the identity hash for an entry: the binary payload for
// images, the primary content for everything else.
func EntryHash(e *Entry) string {
	if e.Kind == KindImage {
		return GenerateHash(e.Binary)
	}
	return GenerateHash([]byte(e.Content))
}
