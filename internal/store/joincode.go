package store

import (
	"crypto/rand"
	"math/big"
)

const (
	joinCodeLength   = 6
	joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	joinCodeAttempts = 5
)

// newJoinCode returns a random upper-case code. Ambiguous characters
// (0/O, 1/I) are left out.
func newJoinCode() (string, error) {
	b := make([]byte, joinCodeLength)
	limit := big.NewInt(int64(len(joinCodeAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = joinCodeAlphabet[n.Int64()]
	}
	return string(b), nil
}
