// internal/models/common_test.go
package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	mixed := "0xAbCd000000000000000000000000000000001234"
	addr := NormalizeAddress("  " + mixed + " ")

	assert.Equal(t, Address("0xabcd000000000000000000000000000000001234"), addr)
	assert.True(t, addr.Valid())
	assert.False(t, addr.IsZero())
}

func TestAddressValidation(t *testing.T) {
	assert.True(t, ZeroAddress.Valid())
	assert.True(t, ZeroAddress.IsZero())
	assert.True(t, Address("").IsZero())

	for _, bad := range []string{
		"",
		"0x123",
		"abcd000000000000000000000000000000001234",
		"0xabcd0000000000000000000000000000000012345",
		"0xABCD000000000000000000000000000000001234", // not normalized
	} {
		assert.False(t, Address(bad).Valid(), bad)
	}
}

func TestNormalizeSelector(t *testing.T) {
	assert.Equal(t, ZeroSelector, NormalizeSelector(""))
	assert.True(t, NormalizeSelector("").IsZero())

	sel := NormalizeSelector("0xAABBCCDD")
	assert.Equal(t, Selector("0xaabbccdd"), sel)
	assert.True(t, sel.Valid())
	assert.False(t, sel.IsZero())
}

func TestUint256Parse(t *testing.T) {
	u, err := ParseUint256("123456789012345678901234567890")
	require.NoError(t, err)
	assert.Equal(t, "123456789012345678901234567890", u.Dec())

	empty, err := ParseUint256("")
	require.NoError(t, err)
	assert.True(t, empty.IsZero())

	_, err = ParseUint256("not-a-number")
	assert.Error(t, err)

	_, err = ParseUint256("-5")
	assert.Error(t, err)
}

func TestUint256JSONRoundTrip(t *testing.T) {
	u := NewUint256(42)

	data, err := json.Marshal(u)
	require.NoError(t, err)
	assert.Equal(t, `"42"`, string(data))

	var back Uint256
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "42", back.Dec())
}

func TestLicenseTokenExpiry(t *testing.T) {
	now := time.Now()

	// Zero expiry means the token never expires.
	token := LicenseToken{}
	assert.False(t, token.ExpiredAt(now))

	past := now.Add(-time.Hour)
	token.ExpiresAt = &past
	assert.True(t, token.ExpiredAt(now))

	future := now.Add(time.Hour)
	token.ExpiresAt = &future
	assert.False(t, token.ExpiredAt(now))
}
