// internal/utils/crypto.go
package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
)

func GenerateRandomString(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, length)

	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		b[i] = charset[n.Int64()]
	}

	return string(b), nil
}

func HashString(input string) string {
	hasher := sha256.New()
	hasher.Write([]byte(input))
	return hex.EncodeToString(hasher.Sum(nil))
}

// DeriveAddress derives a deterministic 20-byte hex address from a seed
// string, used for IP account and vault addresses.
func DeriveAddress(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return "0x" + hex.EncodeToString(sum[12:32])
}

// ContentHash derives a 32-byte hex id from canonical content bytes, used
// for content-addressed license terms.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return "0x" + hex.EncodeToString(sum[:])
}

// MethodSelector derives a 4-byte hex selector from a method signature
// string, used to key function-level permissions.
func MethodSelector(signature string) string {
	sum := sha256.Sum256([]byte(signature))
	return "0x" + hex.EncodeToString(sum[:4])
}
