// internal/utils/crypto_test.go
package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveAddress(t *testing.T) {
	a := DeriveAddress("ipaccount:1:0xabc:1")
	b := DeriveAddress("ipaccount:1:0xabc:2")

	assert.Len(t, a, 42)
	assert.Regexp(t, "^0x[0-9a-f]{40}$", a)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, DeriveAddress("ipaccount:1:0xabc:1"))
}

func TestContentHash(t *testing.T) {
	h := ContentHash([]byte("terms:v1:content"))

	assert.Len(t, h, 66)
	assert.Regexp(t, "^0x[0-9a-f]{64}$", h)
	assert.Equal(t, h, ContentHash([]byte("terms:v1:content")))
	assert.NotEqual(t, h, ContentHash([]byte("terms:v1:other")))
}

func TestMethodSelector(t *testing.T) {
	sel := MethodSelector("attachLicenseTerms(address,string)")

	assert.Len(t, sel, 10)
	assert.Regexp(t, "^0x[0-9a-f]{8}$", sel)
	assert.NotEqual(t, sel, MethodSelector("registerDerivative(address,address[],string[])"))
}

func TestGenerateRandomString(t *testing.T) {
	s, err := GenerateRandomString(16)
	require.NoError(t, err)
	assert.Len(t, s, 16)
}
