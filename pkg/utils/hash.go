package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentSHA256 returns the hex SHA-256 of raw page bytes.
// The ledger stores it so a re-fetch with identical bytes can be spotted in logs.
func ContentSHA256(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
