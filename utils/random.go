package utils

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"strings"
)

// GenerateCode returns an uppercase hex string of 2n characters. Used for
// session identifiers and payment reference labels.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// RandomRequestNumber returns an 18-digit request id for provider API calls.
func RandomRequestNumber() (string, error) {
	min := big.NewInt(100000000000000000)
	max := big.NewInt(999999999999999999)
	n, err := rand.Int(rand.Reader, new(big.Int).Sub(max, min))
	if err != nil {
		return "", err
	}

	n.Add(n, min)
	return n.String(), nil
}
