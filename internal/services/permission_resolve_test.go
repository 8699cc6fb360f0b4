// internal/services/permission_resolve_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipnexus/ipnexus-backend/internal/models"
)

type permKey struct {
	ipAccount models.Address
	signer    models.Address
	to        models.Address
	fn        models.Selector
}

func mapLookup(entries map[permKey]models.PermissionLevel) PermissionLookup {
	return func(ipAccount, signer, to models.Address, fn models.Selector) (models.PermissionLevel, error) {
		return entries[permKey{ipAccount, signer, to, fn}], nil
	}
}

var (
	testIP     = models.NormalizeAddress("0x1111111111111111111111111111111111111111")
	testSigner = models.NormalizeAddress("0x2222222222222222222222222222222222222222")
	testModule = models.NormalizeAddress("0x3333333333333333333333333333333333333333")
	testFn     = models.NormalizeSelector("0xaabbccdd")
	otherFn    = models.NormalizeSelector("0x11223344")
)

func TestResolvePermissionFailsClosed(t *testing.T) {
	level, err := ResolvePermission(testIP, testSigner, testModule, testFn,
		mapLookup(map[permKey]models.PermissionLevel{}))
	require.NoError(t, err)
	assert.Equal(t, models.PermissionAbstain, level)
}

func TestResolvePermissionExactEntry(t *testing.T) {
	entries := map[permKey]models.PermissionLevel{
		{testIP, testSigner, testModule, testFn}: models.PermissionAllow,
	}

	level, err := ResolvePermission(testIP, testSigner, testModule, testFn, mapLookup(entries))
	require.NoError(t, err)
	assert.Equal(t, models.PermissionAllow, level)

	// Another function on the same module is not covered.
	level, err = ResolvePermission(testIP, testSigner, testModule, otherFn, mapLookup(entries))
	require.NoError(t, err)
	assert.Equal(t, models.PermissionAbstain, level)
}

func TestResolvePermissionModuleWildcard(t *testing.T) {
	entries := map[permKey]models.PermissionLevel{
		{testIP, testSigner, testModule, models.ZeroSelector}: models.PermissionAllow,
	}

	for _, fn := range []models.Selector{testFn, otherFn} {
		level, err := ResolvePermission(testIP, testSigner, testModule, fn, mapLookup(entries))
		require.NoError(t, err)
		assert.Equal(t, models.PermissionAllow, level)
	}
}

func TestResolvePermissionGlobalWildcard(t *testing.T) {
	otherModule := models.NormalizeAddress("0x4444444444444444444444444444444444444444")
	entries := map[permKey]models.PermissionLevel{
		{testIP, testSigner, models.ZeroAddress, models.ZeroSelector}: models.PermissionAllow,
	}

	for _, to := range []models.Address{testModule, otherModule} {
		level, err := ResolvePermission(testIP, testSigner, to, testFn, mapLookup(entries))
		require.NoError(t, err)
		assert.Equal(t, models.PermissionAllow, level)
	}
}

func TestResolvePermissionExactDenyBeatsWildcardAllow(t *testing.T) {
	entries := map[permKey]models.PermissionLevel{
		{testIP, testSigner, testModule, testFn}:              models.PermissionDeny,
		{testIP, testSigner, testModule, models.ZeroSelector}: models.PermissionAllow,
	}

	level, err := ResolvePermission(testIP, testSigner, testModule, testFn, mapLookup(entries))
	require.NoError(t, err)
	assert.Equal(t, models.PermissionDeny, level)
}

func TestResolvePermissionModuleDenyBeatsGlobalAllow(t *testing.T) {
	entries := map[permKey]models.PermissionLevel{
		{testIP, testSigner, testModule, models.ZeroSelector}:         models.PermissionDeny,
		{testIP, testSigner, models.ZeroAddress, models.ZeroSelector}: models.PermissionAllow,
	}

	level, err := ResolvePermission(testIP, testSigner, testModule, testFn, mapLookup(entries))
	require.NoError(t, err)
	assert.Equal(t, models.PermissionDeny, level)
}
