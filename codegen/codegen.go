// Package codegen produces the human-readable codes printed on templates and tokens.
package codegen

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Alphabet omits I, O, 0 and 1.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	groups    = 4
	groupSize = 4
)

// MaxAttempts bounds how many fresh codes an insert tries before giving up on collisions.
const MaxAttempts = 5

// Generate returns a code of the form XXXX-XXXX-XXXX-XXXX.
func Generate() (string, error) {
	var b strings.Builder
	b.Grow(groups*groupSize + groups - 1)

	max := big.NewInt(int64(len(Alphabet)))
	for g := 0; g < groups; g++ {
		if g > 0 {
			b.WriteByte('-')
		}
		for i := 0; i < groupSize; i++ {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", fmt.Errorf("failed to generate code: %w", err)
			}
			b.WriteByte(Alphabet[n.Int64()])
		}
	}
	return b.String(), nil
}

// Valid reports whether code has the shape produced by Generate.
func Valid(code string) bool {
	if len(code) != groups*groupSize+groups-1 {
		return false
	}
	for i, c := range code {
		if (i+1)%(groupSize+1) == 0 {
			if c != '-' {
				return false
			}
			continue
		}
		if !strings.ContainsRune(Alphabet, c) {
			return false
		}
	}
	return true
}
