package content

import (
	"crypto/rand"
	"fmt"
)

const (
	nonceLength   = 32
	nonceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Nonce returns a single-use alphanumeric token for script gating.
// Every call draws fresh randomness; callers must not reuse a value
// across renders.
func Nonce() (string, error) {
	var raw [nonceLength]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	buf := make([]byte, nonceLength)
	for i, b := range raw {
		buf[i] = nonceAlphabet[int(b)%len(nonceAlphabet)]
	}
	return string(buf), nil
}
