// internal/services/license_logic_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipnexus/ipnexus-backend/internal/models"
	"github.com/ipnexus/ipnexus-backend/internal/utils"
)

func commercialTerms(policy string, revShare uint32) *models.LicenseTerms {
	return &models.LicenseTerms{
		Transferable:       true,
		RoyaltyPolicy:      models.NormalizeAddress(policy),
		CommercialUse:      true,
		CommercialRevShare: revShare,
		DerivativesAllowed: true,
		Currency:           models.NormalizeAddress("0x5555555555555555555555555555555555555555"),
	}
}

func nonCommercialTerms() *models.LicenseTerms {
	return &models.LicenseTerms{
		DerivativesAllowed: true,
		Currency:           models.NormalizeAddress("0x5555555555555555555555555555555555555555"),
	}
}

func TestTermsContentAddressing(t *testing.T) {
	a := commercialTerms("0x6666666666666666666666666666666666666666", 5_000_000)
	b := commercialTerms("0x6666666666666666666666666666666666666666", 5_000_000)

	a.TermsID = utils.ContentHash(termsContent(a))
	b.TermsID = utils.ContentHash(termsContent(b))
	assert.Equal(t, a.TermsID, b.TermsID)
	assert.Len(t, a.TermsID, 66)

	// Any field change re-keys the terms.
	c := commercialTerms("0x6666666666666666666666666666666666666666", 5_000_001)
	c.TermsID = utils.ContentHash(termsContent(c))
	assert.NotEqual(t, a.TermsID, c.TermsID)
}

func TestCheckTermsCompatibility(t *testing.T) {
	policyA := "0x6666666666666666666666666666666666666666"
	policyB := "0x7777777777777777777777777777777777777777"

	assert.NoError(t, checkTermsCompatibility(nil))
	assert.NoError(t, checkTermsCompatibility([]*models.LicenseTerms{
		nonCommercialTerms(), nonCommercialTerms(),
	}))
	assert.NoError(t, checkTermsCompatibility([]*models.LicenseTerms{
		commercialTerms(policyA, 1_000_000), commercialTerms(policyA, 2_000_000),
	}))

	// Commercial parents may carry different royalty policies; whether the
	// policies can be jointly enforced is a separate, registry-backed check.
	assert.NoError(t, checkTermsCompatibility([]*models.LicenseTerms{
		commercialTerms(policyA, 1_000_000), commercialTerms(policyB, 1_000_000),
	}))

	err := checkTermsCompatibility([]*models.LicenseTerms{
		commercialTerms(policyA, 1_000_000), nonCommercialTerms(),
	})
	require.ErrorIs(t, err, ErrIncompatibleTerms)
}

func TestMulScalar(t *testing.T) {
	fee := models.NewUint256(250)

	total, err := mulScalar(&fee, 4)
	require.NoError(t, err)
	assert.Equal(t, "1000", total.Dec())

	zero, err := mulScalar(&fee, 0)
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	var huge models.Uint256
	huge.SetAllOne()
	_, err = mulScalar(&huge, 2)
	require.ErrorIs(t, err, ErrAmountOverflow)
}

func TestParentSetDeduplicates(t *testing.T) {
	p1 := models.NormalizeAddress("0x1111111111111111111111111111111111111111")
	p2 := models.NormalizeAddress("0x2222222222222222222222222222222222222222")

	edges := []models.DerivativeEdge{
		{ParentIPID: p1},
		{ParentIPID: p2},
		{ParentIPID: p1},
	}

	parents := parentSet(edges)
	assert.Equal(t, []models.Address{p1, p2}, parents)
}
