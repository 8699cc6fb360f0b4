// internal/services/royalty_math_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipnexus/ipnexus-backend/internal/models"
)

func TestPercentOf(t *testing.T) {
	amount := models.NewUint256(1_000_000)

	// 10% of 1,000,000
	got, err := percentOf(&amount, 10_000_000)
	require.NoError(t, err)
	assert.Equal(t, "100000", got.Dec())

	// 100%
	got, err = percentOf(&amount, models.MaxPercent)
	require.NoError(t, err)
	assert.Equal(t, "1000000", got.Dec())

	// 0%
	got, err = percentOf(&amount, 0)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	// Floor division: 33.333...% of 100 truncates.
	small := models.NewUint256(100)
	got, err = percentOf(&small, 33_333_333)
	require.NoError(t, err)
	assert.Equal(t, "33", got.Dec())

	// Near-max amounts stay exact; the intermediate product is 512-bit.
	var huge models.Uint256
	huge.SetAllOne()
	got, err = percentOf(&huge, models.MaxPercent)
	require.NoError(t, err)
	assert.Equal(t, huge.Dec(), got.Dec())
}

func TestProRata(t *testing.T) {
	amount := models.NewUint256(1_000)

	// Full supply claims everything.
	got, err := proRata(&amount, models.VaultTotalShares)
	require.NoError(t, err)
	assert.Equal(t, "1000", got.Dec())

	// Half supply claims half.
	got, err = proRata(&amount, models.VaultTotalShares/2)
	require.NoError(t, err)
	assert.Equal(t, "500", got.Dec())

	// Tiny holdings of a tiny pot floor to zero.
	tiny := models.NewUint256(1)
	got, err = proRata(&tiny, 1)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestVaultAddressDerivation(t *testing.T) {
	ipA := models.NormalizeAddress("0x1111111111111111111111111111111111111111")
	ipB := models.NormalizeAddress("0x2222222222222222222222222222222222222222")

	vaultA := vaultAddressFor(ipA)
	vaultB := vaultAddressFor(ipB)

	assert.True(t, vaultA.Valid())
	assert.True(t, vaultB.Valid())
	assert.NotEqual(t, vaultA, vaultB)
	assert.Equal(t, vaultA, vaultAddressFor(ipA))
}

func TestShareRecipient(t *testing.T) {
	owner := models.NormalizeAddress("0x1111111111111111111111111111111111111111")
	pool := models.NormalizeAddress("0x2222222222222222222222222222222222222222")

	plain := &models.IPAccount{Owner: owner}
	assert.Equal(t, owner, shareRecipient(plain))

	group := &models.IPAccount{Owner: owner, IsGroup: true, RewardPool: pool}
	assert.Equal(t, pool, shareRecipient(group))
}
