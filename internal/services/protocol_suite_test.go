// internal/services/protocol_suite_test.go
package services

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ipnexus/ipnexus-backend/internal/config"
	"github.com/ipnexus/ipnexus-backend/internal/database"
	"github.com/ipnexus/ipnexus-backend/internal/models"
	"github.com/ipnexus/ipnexus-backend/internal/utils"
)

// ProtocolTestSuite exercises the engines end to end against a real
// database. Set TEST_DATABASE_URL to run it; it is skipped otherwise.
type ProtocolTestSuite struct {
	suite.Suite
	db *gorm.DB

	cfg      *config.Config
	registry *RegistryService
	graph    *GraphService
	perms    *PermissionService
	storage  *StorageService
	disputes *DisputeService
	royalty  *RoyaltyService
	licenses *LicenseService
	hooks    *HookRegistry

	lapAddress models.Address

	ownerA models.Address
	ownerB models.Address
	payer  models.Address
	token  models.Address
}

func TestProtocolSuite(t *testing.T) {
	if os.Getenv("TEST_DATABASE_URL") == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	suite.Run(t, new(ProtocolTestSuite))
}

func (s *ProtocolTestSuite) SetupSuite() {
	db, err := gorm.Open(postgres.Open(os.Getenv("TEST_DATABASE_URL")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	s.Require().NoError(err)
	s.db = db
	s.Require().NoError(database.RunMigrations(db))

	s.cfg = &config.Config{
		Environment: "test",
		Protocol: config.ProtocolConfig{
			TreasuryAddress:        "0x00000000000000000000000000000000000a11ce",
			TreasuryFeePercent:     0,
			MaxParents:             16,
			MaxAncestors:           1024,
			MaxAccumulatedPolicies: 16,
			SnapshotInterval:       0,
			ChainID:                1,
		},
	}

	s.lapAddress = models.NormalizeAddress(utils.DeriveAddress("policy:lap"))
	policies := NewPolicyRegistry()
	policies.Register(NewLAPPolicy(s.lapAddress))
	s.hooks = NewHookRegistry()

	s.registry = NewRegistryService(db, s.cfg)
	s.graph = NewGraphService(db)
	s.perms = NewPermissionService(db, s.registry)
	s.storage = NewStorageService(db, s.registry)
	s.disputes = NewDisputeService(db, s.registry, s.graph)
	s.royalty = NewRoyaltyService(db, s.cfg, s.registry, s.graph, policies)
	s.licenses = NewLicenseService(db, s.cfg, s.perms, s.graph, s.royalty, s.hooks)

	s.ownerA = models.NormalizeAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	s.ownerB = models.NormalizeAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	s.payer = models.NormalizeAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	s.token = models.NormalizeAddress("0xdddddddddddddddddddddddddddddddddddddddd")
}

func (s *ProtocolTestSuite) SetupTest() {
	err := s.db.Exec(`TRUNCATE TABLE
		ip_accounts, modules, storage_entries, permissions,
		license_terms, license_attachments, licensing_configs, license_tokens,
		derivative_edges, ancestor_edges,
		royalty_vaults, vault_share_balances, vault_pending_balances,
		vault_snapshots, snapshot_amounts, snapshot_claims,
		royalty_policy_records, accumulated_policies, royalty_stacks,
		policy_stacks, lifetime_revenues, whitelisted_tokens, token_balances,
		disputes, users, audit_logs
		RESTART IDENTITY CASCADE`).Error
	s.Require().NoError(err)
}

func (s *ProtocolTestSuite) registerIP(owner models.Address, tokenID string) models.Address {
	account, err := s.registry.RegisterIPAccount(&RegisterIPAccountRequest{
		ChainID:       1,
		TokenContract: "0x1234567890123456789012345678901234567890",
		TokenID:       tokenID,
		Owner:         string(owner),
	})
	s.Require().NoError(err)
	return account.Address
}

func (s *ProtocolTestSuite) registerNonCommercialTerms() *models.LicenseTerms {
	terms, err := s.licenses.RegisterLicenseTerms(&RegisterTermsRequest{
		Transferable:       true,
		MintingFee:         "0",
		DerivativesAllowed: true,
		Currency:           string(s.token),
	})
	s.Require().NoError(err)
	return terms
}

func (s *ProtocolTestSuite) registerCommercialTerms(revShare uint32) *models.LicenseTerms {
	return s.registerCommercialTermsWithPolicy(s.lapAddress, revShare)
}

func (s *ProtocolTestSuite) registerCommercialTermsWithPolicy(policy models.Address, revShare uint32) *models.LicenseTerms {
	terms, err := s.licenses.RegisterLicenseTerms(&RegisterTermsRequest{
		Transferable:       true,
		RoyaltyPolicy:      string(policy),
		MintingFee:         "0",
		CommercialUse:      true,
		CommercialRevShare: revShare,
		DerivativesAllowed: true,
		Currency:           string(s.token),
	})
	s.Require().NoError(err)
	return terms
}

func (s *ProtocolTestSuite) setupRoyaltyInfra() {
	_, err := s.royalty.RegisterPolicy(s.lapAddress, models.PolicyKindWhitelisted, "LAP")
	s.Require().NoError(err)
	_, err = s.royalty.WhitelistToken(s.token, "WIP")
	s.Require().NoError(err)
}

func (s *ProtocolTestSuite) TestRegisterIPAccount() {
	ipID := s.registerIP(s.ownerA, "1")

	// Deterministic address, duplicate rejected.
	_, err := s.registry.RegisterIPAccount(&RegisterIPAccountRequest{
		ChainID:       1,
		TokenContract: "0x1234567890123456789012345678901234567890",
		TokenID:       "1",
		Owner:         string(s.ownerB),
	})
	s.ErrorIs(err, ErrAlreadyRegistered)

	// Only the owner can transfer.
	_, err = s.registry.TransferOwnership(ipID, s.ownerB, s.ownerB)
	s.ErrorIs(err, ErrNotAuthorized)

	account, err := s.registry.TransferOwnership(ipID, s.ownerA, s.ownerB)
	s.Require().NoError(err)
	s.Equal(s.ownerB, account.Owner)
}

func (s *ProtocolTestSuite) TestPermissionGating() {
	ipID := s.registerIP(s.ownerA, "1")

	// Owner always passes.
	s.NoError(s.perms.CheckPermission(ipID, s.ownerA, LicensingModuleAddress, SelAttachLicenseTerms))

	// Strangers fail closed even against registered modules.
	_, err := s.registry.RegisterModule(&RegisterModuleRequest{
		Name:    "licensing",
		Address: string(LicensingModuleAddress),
	})
	s.Require().NoError(err)
	s.ErrorIs(s.perms.CheckPermission(ipID, s.ownerB, LicensingModuleAddress, SelAttachLicenseTerms), ErrPermissionDenied)

	// An explicit entry lets the signer through; only the owner may set it.
	_, err = s.perms.SetPermission(s.ownerB, &SetPermissionRequest{
		IPAccount: string(ipID),
		Signer:    string(s.ownerB),
		To:        string(LicensingModuleAddress),
		Func:      string(SelAttachLicenseTerms),
		Level:     uint8(models.PermissionAllow),
	})
	s.ErrorIs(err, ErrNotOwnerOrAccount)

	_, err = s.perms.SetPermission(s.ownerA, &SetPermissionRequest{
		IPAccount: string(ipID),
		Signer:    string(s.ownerB),
		To:        string(LicensingModuleAddress),
		Func:      string(SelAttachLicenseTerms),
		Level:     uint8(models.PermissionAllow),
	})
	s.Require().NoError(err)
	s.NoError(s.perms.CheckPermission(ipID, s.ownerB, LicensingModuleAddress, SelAttachLicenseTerms))

	// Overwriting the entry with deny revokes the access.
	_, err = s.perms.SetPermission(s.ownerA, &SetPermissionRequest{
		IPAccount: string(ipID),
		Signer:    string(s.ownerB),
		To:        string(LicensingModuleAddress),
		Func:      string(SelAttachLicenseTerms),
		Level:     uint8(models.PermissionDeny),
	})
	s.Require().NoError(err)
	s.ErrorIs(s.perms.CheckPermission(ipID, s.ownerB, LicensingModuleAddress, SelAttachLicenseTerms), ErrPermissionDenied)
}

func (s *ProtocolTestSuite) TestAccountStorage() {
	ipID := s.registerIP(s.ownerA, "1")

	moduleAddr := models.NormalizeAddress("0x9999999999999999999999999999999999999999")
	_, err := s.registry.RegisterModule(&RegisterModuleRequest{Name: "metadata", Address: string(moduleAddr)})
	s.Require().NoError(err)

	// Non-modules cannot write.
	s.ErrorIs(s.storage.SetBytes(s.ownerA, ipID, "uri", []byte("ipfs://x")), ErrNotAuthorized)

	s.Require().NoError(s.storage.SetBytes(moduleAddr, ipID, "uri", []byte("ipfs://x")))

	value, err := s.storage.GetBytes(ipID, moduleAddr, "uri")
	s.Require().NoError(err)
	s.Equal([]byte("ipfs://x"), value)

	// Reads are namespaced by writer.
	otherNS := models.NormalizeAddress("0x8888888888888888888888888888888888888888")
	_, err = s.storage.GetBytes(ipID, otherNS, "uri")
	s.Error(err)

	// Batch writes are shape-checked before anything is written.
	err = s.storage.SetBatchBytes(moduleAddr, ipID, []string{"a", "b"}, [][]byte{[]byte("1")})
	s.ErrorIs(err, ErrLengthMismatch)

	_, err = s.storage.GetBytes(ipID, moduleAddr, "a")
	s.Error(err)
}

func (s *ProtocolTestSuite) TestLicensingLifecycle() {
	parent := s.registerIP(s.ownerA, "1")
	child := s.registerIP(s.ownerB, "2")
	terms := s.registerNonCommercialTerms()

	// Content addressing is idempotent.
	again := s.registerNonCommercialTerms()
	s.Equal(terms.TermsID, again.TermsID)

	_, err := s.licenses.AttachLicenseTerms(s.ownerA, parent, terms.TermsID)
	s.Require().NoError(err)
	_, err = s.licenses.AttachLicenseTerms(s.ownerA, parent, terms.TermsID)
	s.ErrorIs(err, ErrAlreadyAttached)

	tokens, err := s.licenses.MintLicenseTokens(s.ownerB, &MintLicenseTokensRequest{
		LicensorIPID: string(parent),
		TermsID:      terms.TermsID,
		Receiver:     string(s.ownerB),
		Amount:       2,
	})
	s.Require().NoError(err)
	s.Require().Len(tokens, 2)

	// Redeem one token to link; it burns with the link.
	err = s.licenses.RegisterDerivativeWithLicenseTokens(s.ownerB, &RegisterDerivativeWithTokensRequest{
		ChildIPID: string(child),
		TokenIDs:  []uint64{tokens[0].TokenID},
	})
	s.Require().NoError(err)

	burned, err := s.licenses.GetLicenseToken(tokens[0].TokenID)
	s.Require().NoError(err)
	s.True(burned.Burned)

	// Links are write-once.
	err = s.licenses.RegisterDerivativeWithLicenseTokens(s.ownerB, &RegisterDerivativeWithTokensRequest{
		ChildIPID: string(child),
		TokenIDs:  []uint64{tokens[1].TokenID},
	})
	s.ErrorIs(err, ErrAlreadyLinked)

	// The ancestor closure records the lineage.
	has, err := s.graph.HasAncestorIP(child, parent)
	s.Require().NoError(err)
	s.True(has)

	// The child inherits the parent's terms.
	attachments, err := s.licenses.ListAttachments(child)
	s.Require().NoError(err)
	s.Require().Len(attachments, 1)
	s.Equal(terms.TermsID, attachments[0].TermsID)
}

func (s *ProtocolTestSuite) TestDisputeBlocksLicensing() {
	ipID := s.registerIP(s.ownerA, "1")
	terms := s.registerNonCommercialTerms()
	_, err := s.licenses.AttachLicenseTerms(s.ownerA, ipID, terms.TermsID)
	s.Require().NoError(err)

	dispute, err := s.disputes.RaiseDispute(s.ownerB, &RaiseDisputeRequest{
		TargetIPID:        string(ipID),
		ArbitrationPolicy: "0x7777777777777777777777777777777777777777",
		EvidenceHash:      utils.ContentHash([]byte("evidence")),
		TargetTag:         "plagiarism",
	})
	s.Require().NoError(err)

	// A raised dispute has no effect until judged.
	_, err = s.licenses.MintLicenseTokens(s.ownerA, &MintLicenseTokensRequest{
		LicensorIPID: string(ipID),
		TermsID:      terms.TermsID,
		Receiver:     string(s.ownerB),
		Amount:       1,
	})
	s.NoError(err)

	_, err = s.disputes.JudgeDispute(dispute.ID, true)
	s.Require().NoError(err)

	_, err = s.licenses.MintLicenseTokens(s.ownerA, &MintLicenseTokensRequest{
		LicensorIPID: string(ipID),
		TermsID:      terms.TermsID,
		Receiver:     string(s.ownerB),
		Amount:       1,
	})
	s.ErrorIs(err, ErrIPDisputed)

	// Resolution lifts the tag.
	_, err = s.disputes.ResolveDispute(dispute.ID, s.ownerB)
	s.Require().NoError(err)

	_, err = s.licenses.MintLicenseTokens(s.ownerA, &MintLicenseTokensRequest{
		LicensorIPID: string(ipID),
		TermsID:      terms.TermsID,
		Receiver:     string(s.ownerB),
		Amount:       1,
	})
	s.NoError(err)
}

func (s *ProtocolTestSuite) TestRoyaltyFlow() {
	s.setupRoyaltyInfra()

	parent := s.registerIP(s.ownerA, "1")
	child := s.registerIP(s.ownerB, "2")
	terms := s.registerCommercialTerms(10_000_000) // 10%

	_, err := s.licenses.AttachLicenseTerms(s.ownerA, parent, terms.TermsID)
	s.Require().NoError(err)

	err = s.licenses.RegisterDerivative(s.ownerB, &RegisterDerivativeRequest{
		ChildIPID:   string(child),
		ParentIPIDs: []string{string(parent)},
		TermsIDs:    []string{terms.TermsID},
	})
	s.Require().NoError(err)

	// Linking fixed the child's royalty stack at the edge percentage.
	stack, err := s.royalty.GetRoyaltyStack(child)
	s.Require().NoError(err)
	s.Equal(uint32(10_000_000), stack)

	// The policy received its share of the child vault.
	balances, err := s.royalty.GetVaultBalances(child)
	s.Require().NoError(err)
	byHolder := map[models.Address]uint64{}
	for _, b := range balances {
		byHolder[b.Holder] = b.Shares
	}
	s.Equal(uint64(10_000_000), byHolder[s.lapAddress])
	s.Equal(uint64(90_000_000), byHolder[s.ownerB])

	// Fund the payer and route a payment to the child.
	amount := models.NewUint256(1_000)
	s.Require().NoError(s.royalty.DepositTokens(s.token, s.payer, &amount))

	err = s.royalty.PayRoyaltyOnBehalf(s.payer, &PayRoyaltyRequest{
		ReceiverIPID: string(child),
		Token:        string(s.token),
		Amount:       "1000",
	})
	s.Require().NoError(err)

	// 10% went to the policy, the rest into the child's vault.
	policyBalance, err := s.royalty.GetTokenBalance(s.token, s.lapAddress)
	s.Require().NoError(err)
	s.Equal("100", policyBalance.Dec())

	lifetime, err := s.royalty.GetLifetimeRevenue(child, s.token)
	s.Require().NoError(err)
	s.Equal("1000", lifetime.Dec())

	// Snapshot and claim the owner's pro-rata share.
	snapshot, err := s.royalty.SnapshotVault(child)
	s.Require().NoError(err)

	claimable, err := s.royalty.ClaimableRevenue(snapshot.SnapshotID, s.token, s.ownerB)
	s.Require().NoError(err)
	s.Equal("810", claimable.Dec())

	payout, err := s.royalty.ClaimRevenue(snapshot.SnapshotID, s.token, s.ownerB)
	s.Require().NoError(err)
	s.Equal("810", payout.Dec())

	// Claims are once-only per snapshot slice.
	_, err = s.royalty.ClaimRevenue(snapshot.SnapshotID, s.token, s.ownerB)
	s.ErrorIs(err, ErrAlreadyClaimed)

	ownerBalance, err := s.royalty.GetTokenBalance(s.token, s.ownerB)
	s.Require().NoError(err)
	s.Equal("810", ownerBalance.Dec())
}

func (s *ProtocolTestSuite) TestDerivativeChainStacks() {
	s.setupRoyaltyInfra()

	root := s.registerIP(s.ownerA, "1")
	mid := s.registerIP(s.ownerB, "2")
	leaf := s.registerIP(s.payer, "3")
	terms := s.registerCommercialTerms(10_000_000)

	_, err := s.licenses.AttachLicenseTerms(s.ownerA, root, terms.TermsID)
	s.Require().NoError(err)

	s.Require().NoError(s.licenses.RegisterDerivative(s.ownerB, &RegisterDerivativeRequest{
		ChildIPID:   string(mid),
		ParentIPIDs: []string{string(root)},
		TermsIDs:    []string{terms.TermsID},
	}))
	s.Require().NoError(s.licenses.RegisterDerivative(s.payer, &RegisterDerivativeRequest{
		ChildIPID:   string(leaf),
		ParentIPIDs: []string{string(mid)},
		TermsIDs:    []string{terms.TermsID},
	}))

	// Stack accumulates down the chain: 10% edge + 10% parent stack.
	stack, err := s.royalty.GetRoyaltyStack(leaf)
	s.Require().NoError(err)
	s.Equal(uint32(20_000_000), stack)

	count, err := s.graph.GetAncestorCount(leaf)
	s.Require().NoError(err)
	s.Equal(2, count)
}

func (s *ProtocolTestSuite) TestMaxParentsBound() {
	child := s.registerIP(s.ownerB, "child")
	terms := s.registerNonCommercialTerms()

	var parents, termsIDs []string
	for i := 0; i < s.cfg.Protocol.MaxParents+1; i++ {
		parent := s.registerIP(s.ownerA, fmt.Sprintf("p%d", i))
		_, err := s.licenses.AttachLicenseTerms(s.ownerA, parent, terms.TermsID)
		s.Require().NoError(err)
		parents = append(parents, string(parent))
		termsIDs = append(termsIDs, terms.TermsID)
	}

	err := s.licenses.RegisterDerivative(s.ownerB, &RegisterDerivativeRequest{
		ChildIPID:   string(child),
		ParentIPIDs: parents,
		TermsIDs:    termsIDs,
	})
	s.ErrorIs(err, ErrAboveMaxParents)
}

func (s *ProtocolTestSuite) TestMixedPolicyParents() {
	s.setupRoyaltyInfra()

	extPolicy := models.NormalizeAddress("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")
	_, err := s.royalty.RegisterPolicy(extPolicy, models.PolicyKindExternal, "EXT")
	s.Require().NoError(err)

	parentA := s.registerIP(s.ownerA, "1")
	parentB := s.registerIP(s.ownerA, "2")
	child := s.registerIP(s.ownerB, "3")

	lapTerms := s.registerCommercialTerms(10_000_000)
	extTerms := s.registerCommercialTermsWithPolicy(extPolicy, 5_000_000)

	_, err = s.licenses.AttachLicenseTerms(s.ownerA, parentA, lapTerms.TermsID)
	s.Require().NoError(err)
	_, err = s.licenses.AttachLicenseTerms(s.ownerA, parentB, extTerms.TermsID)
	s.Require().NoError(err)

	// Registered policies of different families coexist on one parent set.
	err = s.licenses.RegisterDerivative(s.ownerB, &RegisterDerivativeRequest{
		ChildIPID:   string(child),
		ParentIPIDs: []string{string(parentA), string(parentB)},
		TermsIDs:    []string{lapTerms.TermsID, extTerms.TermsID},
	})
	s.Require().NoError(err)

	// The global stack covers the whitelisted family only; the external
	// policy still holds its edge share of the vault.
	stack, err := s.royalty.GetRoyaltyStack(child)
	s.Require().NoError(err)
	s.Equal(uint32(10_000_000), stack)

	balances, err := s.royalty.GetVaultBalances(child)
	s.Require().NoError(err)
	byHolder := map[models.Address]uint64{}
	for _, b := range balances {
		byHolder[b.Holder] = b.Shares
	}
	s.Equal(uint64(10_000_000), byHolder[s.lapAddress])
	s.Equal(uint64(5_000_000), byHolder[extPolicy])
	s.Equal(uint64(85_000_000), byHolder[s.ownerB])
}

func (s *ProtocolTestSuite) TestUnregisteredPolicyParentRejected() {
	s.setupRoyaltyInfra()

	unregistered := models.NormalizeAddress("0xffffffffffffffffffffffffffffffffffffffff")

	parentA := s.registerIP(s.ownerA, "1")
	parentB := s.registerIP(s.ownerA, "2")
	child := s.registerIP(s.ownerB, "3")

	lapTerms := s.registerCommercialTerms(10_000_000)
	strayTerms := s.registerCommercialTermsWithPolicy(unregistered, 5_000_000)

	_, err := s.licenses.AttachLicenseTerms(s.ownerA, parentA, lapTerms.TermsID)
	s.Require().NoError(err)
	_, err = s.licenses.AttachLicenseTerms(s.ownerA, parentB, strayTerms.TermsID)
	s.Require().NoError(err)

	err = s.licenses.RegisterDerivative(s.ownerB, &RegisterDerivativeRequest{
		ChildIPID:   string(child),
		ParentIPIDs: []string{string(parentA), string(parentB)},
		TermsIDs:    []string{lapTerms.TermsID, strayTerms.TermsID},
	})
	s.ErrorIs(err, ErrIncompatiblePolicies)
}

func (s *ProtocolTestSuite) TestPayRoyaltyPayerAttribution() {
	s.setupRoyaltyInfra()

	receiver := s.registerIP(s.ownerA, "1")
	amount := models.NewUint256(1_000)
	s.Require().NoError(s.royalty.DepositTokens(s.token, s.payer, &amount))

	// An attributed payer IP must be registered.
	err := s.royalty.PayRoyaltyOnBehalf(s.payer, &PayRoyaltyRequest{
		ReceiverIPID: string(receiver),
		PayerIPID:    "0x1111111111111111111111111111111111111111",
		Token:        string(s.token),
		Amount:       "1000",
	})
	s.ErrorIs(err, ErrNotRegistered)

	// Nothing moved on the failed attempt.
	lifetime, err := s.royalty.GetLifetimeRevenue(receiver, s.token)
	s.Require().NoError(err)
	s.True(lifetime.IsZero())

	payerIP := s.registerIP(s.ownerB, "2")
	err = s.royalty.PayRoyaltyOnBehalf(s.payer, &PayRoyaltyRequest{
		ReceiverIPID: string(receiver),
		PayerIPID:    string(payerIP),
		Token:        string(s.token),
		Amount:       "1000",
	})
	s.Require().NoError(err)

	lifetime, err = s.royalty.GetLifetimeRevenue(receiver, s.token)
	s.Require().NoError(err)
	s.Equal("1000", lifetime.Dec())
}

func (s *ProtocolTestSuite) TestTreasuryFeeDeduction() {
	s.setupRoyaltyInfra()

	s.cfg.Protocol.TreasuryFeePercent = 10_000_000 // 10%
	defer func() { s.cfg.Protocol.TreasuryFeePercent = 0 }()

	parent := s.registerIP(s.ownerA, "1")
	child := s.registerIP(s.ownerB, "2")
	terms := s.registerCommercialTerms(10_000_000)

	_, err := s.licenses.AttachLicenseTerms(s.ownerA, parent, terms.TermsID)
	s.Require().NoError(err)
	s.Require().NoError(s.licenses.RegisterDerivative(s.ownerB, &RegisterDerivativeRequest{
		ChildIPID:   string(child),
		ParentIPIDs: []string{string(parent)},
		TermsIDs:    []string{terms.TermsID},
	}))

	amount := models.NewUint256(1_000)
	s.Require().NoError(s.royalty.DepositTokens(s.token, s.payer, &amount))
	s.Require().NoError(s.royalty.PayRoyaltyOnBehalf(s.payer, &PayRoyaltyRequest{
		ReceiverIPID: string(child),
		Token:        string(s.token),
		Amount:       "1000",
	}))

	// 10% off the top, then 10% of the remainder to the policy.
	treasury := models.NormalizeAddress(string(s.cfg.Protocol.TreasuryAddress))
	treasuryBalance, err := s.royalty.GetTokenBalance(s.token, treasury)
	s.Require().NoError(err)
	s.Equal("100", treasuryBalance.Dec())

	policyBalance, err := s.royalty.GetTokenBalance(s.token, s.lapAddress)
	s.Require().NoError(err)
	s.Equal("90", policyBalance.Dec())

	vault, err := s.royalty.GetVault(child)
	s.Require().NoError(err)
	vaultBalance, err := s.royalty.GetTokenBalance(s.token, vault.Address)
	s.Require().NoError(err)
	s.Equal("810", vaultBalance.Dec())

	// Lifetime revenue is the post-fee amount.
	lifetime, err := s.royalty.GetLifetimeRevenue(child, s.token)
	s.Require().NoError(err)
	s.Equal("900", lifetime.Dec())
}

func (s *ProtocolTestSuite) TestDerivativeStackOverflowAborts() {
	s.setupRoyaltyInfra()

	root := s.registerIP(s.ownerA, "1")
	mid := s.registerIP(s.ownerB, "2")
	leaf := s.registerIP(s.payer, "3")
	terms := s.registerCommercialTerms(60_000_000) // 60%

	_, err := s.licenses.AttachLicenseTerms(s.ownerA, root, terms.TermsID)
	s.Require().NoError(err)
	s.Require().NoError(s.licenses.RegisterDerivative(s.ownerB, &RegisterDerivativeRequest{
		ChildIPID:   string(mid),
		ParentIPIDs: []string{string(root)},
		TermsIDs:    []string{terms.TermsID},
	}))

	// 60% edge on top of the parent's 60% stack pushes the accumulated
	// policy stack past 100%.
	err = s.licenses.RegisterDerivative(s.payer, &RegisterDerivativeRequest{
		ChildIPID:   string(leaf),
		ParentIPIDs: []string{string(mid)},
		TermsIDs:    []string{terms.TermsID},
	})
	s.ErrorIs(err, ErrStackExceedsPercent)

	// The whole link rolled back: no vault, no stack, no lineage.
	_, err = s.royalty.GetVault(leaf)
	s.ErrorIs(err, ErrVaultNotFound)

	stack, err := s.royalty.GetRoyaltyStack(leaf)
	s.Require().NoError(err)
	s.Zero(stack)

	count, err := s.graph.GetAncestorCount(leaf)
	s.Require().NoError(err)
	s.Zero(count)
}

func (s *ProtocolTestSuite) TestVaultShareSupplyExhausted() {
	s.setupRoyaltyInfra()

	// External policies claim vault shares without a stack record, so two
	// 60% edges overdraw the supply itself.
	extPolicy := models.NormalizeAddress("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")
	_, err := s.royalty.RegisterPolicy(extPolicy, models.PolicyKindExternal, "EXT")
	s.Require().NoError(err)

	parentA := s.registerIP(s.ownerA, "1")
	parentB := s.registerIP(s.ownerA, "2")
	child := s.registerIP(s.ownerB, "3")
	terms := s.registerCommercialTermsWithPolicy(extPolicy, 60_000_000)

	_, err = s.licenses.AttachLicenseTerms(s.ownerA, parentA, terms.TermsID)
	s.Require().NoError(err)
	_, err = s.licenses.AttachLicenseTerms(s.ownerA, parentB, terms.TermsID)
	s.Require().NoError(err)

	err = s.licenses.RegisterDerivative(s.ownerB, &RegisterDerivativeRequest{
		ChildIPID:   string(child),
		ParentIPIDs: []string{string(parentA), string(parentB)},
		TermsIDs:    []string{terms.TermsID, terms.TermsID},
	})
	s.ErrorIs(err, ErrSharesExceedSupply)

	_, err = s.royalty.GetVault(child)
	s.ErrorIs(err, ErrVaultNotFound)
}

func (s *ProtocolTestSuite) TestLicensingConfigPrecedence() {
	s.setupRoyaltyInfra()

	ipID := s.registerIP(s.ownerA, "1")
	terms, err := s.licenses.RegisterLicenseTerms(&RegisterTermsRequest{
		Transferable:       true,
		MintingFee:         "5",
		DerivativesAllowed: true,
		Currency:           string(s.token),
	})
	s.Require().NoError(err)
	_, err = s.licenses.AttachLicenseTerms(s.ownerA, ipID, terms.TermsID)
	s.Require().NoError(err)

	funds := models.NewUint256(100)
	s.Require().NoError(s.royalty.DepositTokens(s.token, s.ownerB, &funds))

	mint := func() {
		_, err := s.licenses.MintLicenseTokens(s.ownerB, &MintLicenseTokensRequest{
			LicensorIPID: string(ipID),
			TermsID:      terms.TermsID,
			Receiver:     string(s.ownerB),
			Amount:       1,
		})
		s.Require().NoError(err)
	}
	balance := func() string {
		b, err := s.royalty.GetTokenBalance(s.token, s.ownerB)
		s.Require().NoError(err)
		return b.Dec()
	}

	// No config: the fee on the terms applies.
	mint()
	s.Equal("95", balance())

	// An IP-level fee override applies to every attached terms set.
	_, err = s.licenses.SetLicensingConfig(s.ownerA, &SetLicensingConfigRequest{
		IPAccount:     string(ipID),
		MintingFeeSet: true,
		MintingFee:    "3",
	})
	s.Require().NoError(err)
	mint()
	s.Equal("92", balance())

	// A terms-level record replaces the IP-level one wholesale: with its
	// fee unset, the fee on the terms applies again.
	_, err = s.licenses.SetLicensingConfig(s.ownerA, &SetLicensingConfigRequest{
		IPAccount: string(ipID),
		TermsID:   terms.TermsID,
	})
	s.Require().NoError(err)
	mint()
	s.Equal("87", balance())
}
