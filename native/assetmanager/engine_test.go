package assetmanager

import (
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"fassetbridge/core/events"
	"fassetbridge/core/types"
	"fassetbridge/native/attestation"
	"fassetbridge/native/attestation/mockchain"
	"fassetbridge/native/common"
	"fassetbridge/native/prices"
)

const (
	testChainID   = "testXRP"
	testAsset     = "FTESTXRP"
	testVault     = "USDC"
	testPool      = "WNAT"
	testLot       = 1_000
	genesisTime   = 1_700_000_000
	blockInterval = 10
)

// One AMG is worth 1e12 USDC wei and 2e12 WNAT wei at the harness prices.
var (
	vaultWeiPerAMG = big.NewInt(1_000_000_000_000)
	natWeiPerAMG   = big.NewInt(2_000_000_000_000)

	tenLotsVault = big.NewInt(15_000_000_000_000_000)
	tenLotsPool  = big.NewInt(40_000_000_000_000_000)
	oneEther     = big.NewInt(1_000_000_000_000_000_000)
)

func testSettings() Settings {
	return Settings{
		ChainID:                              testChainID,
		AssetSymbol:                          testAsset,
		AssetPriceSymbol:                     "TESTXRP",
		AssetDecimals:                        6,
		AssetMintingDecimals:                 6,
		AssetMintingGranularityUBA:           1,
		LotSizeAMG:                           testLot,
		MaxRedeemedTickets:                   20,
		CollateralReservationFeeBIPS:         100,
		RedemptionFeeBIPS:                    200,
		RedemptionDefaultFactorBIPS:          11_000,
		UnderlyingBlocksForPayment:           10,
		UnderlyingSecondsForPayment:          100,
		AverageBlockTimeMS:                   blockInterval * 1000,
		ConfirmationByOthersAfterSeconds:     3_600,
		PaymentChallengeRewardBIPS:           1_000,
		LiquidationStepSeconds:               90,
		LiquidationCollateralFactorBIPS:      []uint64{12_000, 16_000, 20_000},
		LiquidationFactorVaultCollateralBIPS: []uint64{10_000, 10_000, 10_000},
		VaultCollateralBuyForFlareFactorBIPS: 10_500,
		AgentDestroyDelaySeconds:             3_600,
		PoolExitCollateralRatioBIPS:          26_000,
		VaultCollateral: CollateralType{
			Token:                        testVault,
			PriceSymbol:                  "USDC",
			Decimals:                     18,
			MinCollateralRatioBIPS:       14_000,
			SafetyMinCollateralRatioBIPS: 15_000,
		},
		PoolCollateral: CollateralType{
			Token:                        testPool,
			PriceSymbol:                  "NAT",
			Decimals:                     18,
			MinCollateralRatioBIPS:       20_000,
			SafetyMinCollateralRatioBIPS: 21_000,
		},
	}
}

func defaultParams() AgentParams {
	return AgentParams{
		FeeBIPS:                         500,
		PoolFeeShareBIPS:                4_000,
		MintingVaultCollateralRatioBIPS: 15_000,
		MintingPoolCollateralRatioBIPS:  20_000,
	}
}

func noFeeParams() AgentParams {
	params := defaultParams()
	params.FeeBIPS = 0
	params.PoolFeeShareBIPS = 0
	return params
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []*types.Event
}

func (r *recordingEmitter) Emit(evt events.Event) {
	ae, ok := evt.(assetEvent)
	if !ok {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, ae.Event())
	r.mu.Unlock()
}

func (r *recordingEmitter) ofType(eventType string) []*types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Event
	for _, evt := range r.events {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

type harness struct {
	t      *testing.T
	engine *Engine
	state  *MemoryState
	chain  *mockchain.Chain
	prover *mockchain.Prover
	hub    *attestation.Hub
	prices *prices.Store
	clock  *clockwork.FakeClock
	events *recordingEmitter
	pauses *common.Pauses
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	engine, err := NewEngine(testSettings())
	require.NoError(t, err)
	h := &harness{
		t:      t,
		engine: engine,
		state:  NewMemoryState(),
		chain:  mockchain.New(genesisTime, blockInterval),
		hub:    attestation.NewHub(),
		prices: prices.NewStore(0),
		clock:  clockwork.NewFakeClockAt(time.Unix(genesisTime, 0)),
		events: &recordingEmitter{},
		pauses: &common.Pauses{},
	}
	h.prover = mockchain.NewProver(testChainID, h.chain, h.hub)
	h.prices.SetClock(h.clock)
	engine.SetState(h.state)
	engine.SetPriceReader(h.prices)
	engine.SetVerifier(h.hub)
	engine.SetEmitter(h.events)
	engine.SetPauses(h.pauses)
	engine.SetClock(h.clock)

	h.setAssetPrice(100_000)
	require.NoError(t, h.prices.SetPrice("USDC", big.NewInt(100_000), 5))
	require.NoError(t, h.prices.SetPrice("NAT", big.NewInt(50_000), 5))
	h.updateBlock()
	return h
}

func (h *harness) setAssetPrice(value int64) {
	h.t.Helper()
	require.NoError(h.t, h.prices.SetPrice("TESTXRP", big.NewInt(value), 5))
}

func (h *harness) updateBlock() {
	h.t.Helper()
	proof, err := h.prover.ProveConfirmedBlockHeightExists(0)
	require.NoError(h.t, err)
	require.NoError(h.t, h.engine.UpdateCurrentBlock(proof))
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[0] = 0xfa
	out[19] = b
	return out
}

func (h *harness) fund(token string, holder [20]byte, amount *big.Int) {
	h.t.Helper()
	current, err := h.state.Balance(token, holder)
	require.NoError(h.t, err)
	current.Add(current, amount)
	require.NoError(h.t, h.state.Apply(&ChangeSet{Balances: []BalanceEntry{{Token: token, Holder: holder, Amount: current}}}))
}

func (h *harness) balance(token string, holder [20]byte) *big.Int {
	h.t.Helper()
	bal, err := h.engine.Balance(token, holder)
	require.NoError(h.t, err)
	return bal
}

func (h *harness) requireBalance(token string, holder [20]byte, want *big.Int) {
	h.t.Helper()
	got := h.balance(token, holder)
	require.Zerof(h.t, got.Cmp(want), "%s balance: got %s want %s", token, got, want)
}

func (h *harness) agent(id uint64) *Agent {
	h.t.Helper()
	agent, ok, err := h.state.Agent(id)
	require.NoError(h.t, err)
	require.True(h.t, ok, "agent %d missing", id)
	return agent
}

func (h *harness) info(id uint64) *AgentInfo {
	h.t.Helper()
	info, err := h.engine.AgentInfo(id)
	require.NoError(h.t, err)
	return info
}

// requireBacked checks that the minted value of an agent is fully covered by
// its tickets and dust.
func (h *harness) requireBacked(id uint64) {
	h.t.Helper()
	info := h.info(id)
	require.Equal(h.t, info.MintedUBA, info.TicketsUBA+info.DustUBA, "minted %d tickets %d dust %d", info.MintedUBA, info.TicketsUBA, info.DustUBA)
}

// createAgent registers an agent, funds and deposits ten lots of both
// collateral classes and publishes it.
func (h *harness) createAgent(owner [20]byte, underlying string, params AgentParams) *Agent {
	h.t.Helper()
	proof, err := h.prover.ProveAddressValidity(underlying)
	require.NoError(h.t, err)
	agent, err := h.engine.CreateAgent(owner, proof, params)
	require.NoError(h.t, err)
	h.fund(testVault, owner, tenLotsVault)
	h.fund(testPool, owner, tenLotsPool)
	require.NoError(h.t, h.engine.DepositVaultCollateral(agent.ID, owner, tenLotsVault))
	_, err = h.engine.EnterPool(agent.ID, owner, tenLotsPool)
	require.NoError(h.t, err)
	require.NoError(h.t, h.engine.MakeAgentAvailable(agent.ID, owner))
	return h.agent(agent.ID)
}

func reservationFeeWei(lots uint64) *big.Int {
	value := new(big.Int).Mul(big.NewInt(int64(lots*testLot)), natWeiPerAMG)
	return value.Quo(value, big.NewInt(100))
}

// reserve reserves lots with the agent and funds the minter's fee.
func (h *harness) reserve(minter [20]byte, agentID, lots uint64) *CollateralReservation {
	h.t.Helper()
	fee := reservationFeeWei(lots)
	h.fund(testPool, minter, fee)
	crt, err := h.engine.ReserveCollateral(minter, agentID, lots, maxBIPS, [20]byte{}, fee)
	require.NoError(h.t, err)
	return crt
}

// pay sends an underlying payment and returns its attested proof.
func (h *harness) pay(source, destination string, amount uint64, ref [32]byte) attestation.Proof {
	h.t.Helper()
	value := new(big.Int).SetUint64(amount)
	if h.chain.Balance(source).Cmp(value) < 0 {
		h.chain.Mint(source, value)
	}
	txID, err := h.chain.AddTransaction(source, destination, value, ref)
	require.NoError(h.t, err)
	proof, err := h.prover.ProvePayment(txID, source, destination)
	require.NoError(h.t, err)
	return proof
}

// spend sends an underlying payment and returns the balance decreasing proof
// of its source.
func (h *harness) spend(source, destination string, amount uint64, ref [32]byte) attestation.Proof {
	h.t.Helper()
	value := new(big.Int).SetUint64(amount)
	if h.chain.Balance(source).Cmp(value) < 0 {
		h.chain.Mint(source, value)
	}
	txID, err := h.chain.AddTransaction(source, destination, value, ref)
	require.NoError(h.t, err)
	proof, err := h.prover.ProveBalanceDecreasingTransaction(txID, source)
	require.NoError(h.t, err)
	return proof
}

// mint runs a full public minting of lots for minter.
func (h *harness) mint(minter [20]byte, minterUnderlying string, agent *Agent, lots uint64) *CollateralReservation {
	h.t.Helper()
	crt := h.reserve(minter, agent.ID, lots)
	proof := h.pay(minterUnderlying, agent.UnderlyingAddress, crt.UnderlyingValueUBA+crt.UnderlyingFeeUBA, crt.PaymentReference)
	require.NoError(h.t, h.engine.ExecuteMinting(proof, crt.ID, minter))
	return crt
}

// selfMint mints lots for the owner of a fee-less agent.
func (h *harness) selfMint(agent *Agent, lots uint64) {
	h.t.Helper()
	proof := h.pay("rOwnerWallet", agent.UnderlyingAddress, lots*testLot, attestation.SelfMintReference(agent.ID))
	require.NoError(h.t, h.engine.SelfMint(proof, agent.ID, lots, agent.Owner))
}

func TestEngineRequiresWiring(t *testing.T) {
	engine, err := NewEngine(testSettings())
	require.NoError(t, err)
	_, err = engine.CreateAgent(addr(1), attestation.Proof{}, defaultParams())
	require.ErrorIs(t, err, errNilState)

	engine.SetState(NewMemoryState())
	_, err = engine.CreateAgent(addr(1), attestation.Proof{}, defaultParams())
	require.ErrorIs(t, err, errNilPrices)

	engine.SetPriceReader(prices.NewStore(0))
	_, err = engine.CreateAgent(addr(1), attestation.Proof{}, defaultParams())
	require.ErrorIs(t, err, errNilVerifier)
}

func TestNewEngineRejectsInvalidSettings(t *testing.T) {
	settings := testSettings()
	settings.LotSizeAMG = 0
	_, err := NewEngine(settings)
	require.ErrorIs(t, err, errInvalidSettings)

	settings = testSettings()
	settings.LiquidationFactorVaultCollateralBIPS = []uint64{13_000, 13_000, 13_000}
	_, err = NewEngine(settings)
	require.ErrorIs(t, err, errInvalidSettings)

	settings = testSettings()
	settings.PoolCollateral.Token = "usdc"
	_, err = NewEngine(settings)
	require.ErrorIs(t, err, errInvalidSettings)
}

func TestCreateAgent(t *testing.T) {
	h := newHarness(t)
	owner := addr(1)
	agent := h.createAgent(owner, "rAgentOne", defaultParams())

	require.Equal(t, uint64(1), agent.ID)
	require.Equal(t, VaultAddress(1), agent.Vault)
	require.Equal(t, PoolAddress(1), agent.Pool)
	require.Equal(t, attestation.AddressHash("rAgentOne"), agent.UnderlyingAddressHash)
	require.True(t, agent.PubliclyAvailable)

	info := h.info(agent.ID)
	require.Equal(t, AgentStatusNormal, info.Status)
	require.Equal(t, uint64(10), info.FreeCollateralLots)
	require.Equal(t, uint64(infiniteRatio), info.VaultCollateralRatioBIPS)
	require.Zero(t, info.VaultCollateralWei.Cmp(tenLotsVault))
	require.Zero(t, info.PoolCollateralWei.Cmp(tenLotsPool))
	require.Zero(t, info.AgentPoolTokens.Cmp(tenLotsPool))
	h.requireBalance(PoolTokenSymbol(agent.ID), agent.Vault, tenLotsPool)

	ids, err := h.engine.AgentIDs()
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, ids)
	require.Len(t, h.events.ofType(EventTypeAgentCreated), 1)
	require.Len(t, h.events.ofType(EventTypeAgentAvailable), 1)

	err = h.engine.MakeAgentAvailable(agent.ID, owner)
	require.ErrorIs(t, err, ErrAgentAlreadyAvailable)
	err = h.engine.MakeAgentAvailable(agent.ID, addr(2))
	require.ErrorIs(t, err, ErrOnlyAgentVaultOwner)
}

func TestCreateAgentValidation(t *testing.T) {
	h := newHarness(t)

	invalid, err := h.prover.ProveAddressValidity("not an address")
	require.NoError(t, err)
	_, err = h.engine.CreateAgent(addr(1), invalid, defaultParams())
	require.ErrorIs(t, err, ErrAddressInvalid)

	valid, err := h.prover.ProveAddressValidity("rAgentOne")
	require.NoError(t, err)
	params := defaultParams()
	params.MintingVaultCollateralRatioBIPS = 13_000
	_, err = h.engine.CreateAgent(addr(1), valid, params)
	require.ErrorIs(t, err, ErrMintingRatioTooLow)

	params = defaultParams()
	params.FeeBIPS = maxBIPS + 1
	_, err = h.engine.CreateAgent(addr(1), valid, params)
	require.ErrorIs(t, err, ErrInvalidFeeBIPS)

	otherChain, err := h.hub.Attest("testBTC", &attestation.AddressValidity{Address: "rAgentOne", IsValid: true, StandardAddress: "rAgentOne"})
	require.NoError(t, err)
	_, err = h.engine.CreateAgent(addr(1), otherChain, defaultParams())
	require.ErrorIs(t, err, ErrInvalidChain)

	forged := attestation.Proof{ChainID: testChainID, Response: &attestation.AddressValidity{Address: "rForged", IsValid: true, StandardAddress: "rForged"}}
	_, err = h.engine.CreateAgent(addr(1), forged, defaultParams())
	require.ErrorIs(t, err, ErrAddressValidityNotProven)

	ids, err := h.engine.AgentIDs()
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestEmergencyPause(t *testing.T) {
	h := newHarness(t)
	owner := addr(1)
	agent := h.createAgent(owner, "rAgentOne", defaultParams())

	h.pauses.Set(PauseModule, true)
	proof, err := h.prover.ProveAddressValidity("rAgentTwo")
	require.NoError(t, err)
	_, err = h.engine.CreateAgent(owner, proof, defaultParams())
	require.ErrorIs(t, err, ErrEmergencyPauseActive)
	_, err = h.engine.ReserveCollateral(addr(9), agent.ID, 1, maxBIPS, [20]byte{}, reservationFeeWei(1))
	require.ErrorIs(t, err, ErrEmergencyPauseActive)
	_, err = h.engine.Redeem(addr(9), 1, "rRedeemer", [20]byte{}, nil)
	require.ErrorIs(t, err, ErrEmergencyPauseActive)

	// Collateral management stays open while paused.
	h.fund(testVault, owner, big.NewInt(1_000))
	require.NoError(t, h.engine.DepositVaultCollateral(agent.ID, owner, big.NewInt(1_000)))

	h.pauses.Set(PauseModule, false)
	h.reserve(addr(9), agent.ID, 1)
}

func TestVaultCollateralWithdrawal(t *testing.T) {
	h := newHarness(t)
	owner := addr(1)
	agent := h.createAgent(owner, "rAgentOne", defaultParams())
	h.mint(addr(9), "rMinter", agent, 3)

	err := h.engine.WithdrawVaultCollateral(agent.ID, owner, big.NewInt(11_000_000_000_000_000))
	require.ErrorIs(t, err, ErrWithdrawalCRTooLow)
	require.NoError(t, h.engine.WithdrawVaultCollateral(agent.ID, owner, big.NewInt(10_000_000_000_000_000)))
	h.requireBalance(testVault, owner, big.NewInt(10_000_000_000_000_000))
	require.GreaterOrEqual(t, h.info(agent.ID).VaultCollateralRatioBIPS, uint64(15_000))

	err = h.engine.WithdrawVaultCollateral(agent.ID, addr(2), big.NewInt(1))
	require.ErrorIs(t, err, ErrOnlyAgentVaultOwner)
	err = h.engine.WithdrawVaultCollateral(agent.ID, owner, big.NewInt(0))
	require.ErrorIs(t, err, ErrZeroAmount)
}

func TestDestroyAgent(t *testing.T) {
	h := newHarness(t)
	owner := addr(1)
	agent := h.createAgent(owner, "rAgentOne", defaultParams())

	_, err := h.engine.AnnounceDestroy(agent.ID, owner)
	require.ErrorIs(t, err, ErrAgentStillActive)
	require.NoError(t, h.engine.ExitAvailableAgentList(agent.ID, owner))
	require.ErrorIs(t, h.engine.ExitAvailableAgentList(agent.ID, owner), ErrAgentNotAvailable)

	require.ErrorIs(t, h.engine.DestroyAgent(agent.ID, owner), ErrDestroyNotAnnounced)
	allowedAt, err := h.engine.AnnounceDestroy(agent.ID, owner)
	require.NoError(t, err)
	require.Equal(t, uint64(genesisTime+3_600), allowedAt)
	require.Equal(t, AgentStatusDestroying, h.agent(agent.ID).Status)

	again, err := h.engine.AnnounceDestroy(agent.ID, owner)
	require.NoError(t, err)
	require.Equal(t, allowedAt, again)

	_, err = h.engine.ReserveCollateral(addr(9), agent.ID, 1, maxBIPS, [20]byte{}, reservationFeeWei(1))
	require.ErrorIs(t, err, ErrInvalidAgentStatus)

	require.ErrorIs(t, h.engine.DestroyAgent(agent.ID, owner), ErrDestroyTooEarly)
	h.clock.Advance(time.Hour)
	require.NoError(t, h.engine.DestroyAgent(agent.ID, owner))

	h.requireBalance(testVault, owner, tenLotsVault)
	h.requireBalance(testPool, owner, tenLotsPool)
	h.requireBalance(PoolTokenSymbol(agent.ID), agent.Vault, big.NewInt(0))
	ids, err := h.engine.AgentIDs()
	require.NoError(t, err)
	require.Empty(t, ids)
	_, err = h.engine.AgentInfo(agent.ID)
	require.ErrorIs(t, err, ErrAgentNotFound)
	require.Len(t, h.events.ofType(EventTypeAgentDestroyed), 1)
}

func TestDestroyAgentWithBackingFails(t *testing.T) {
	h := newHarness(t)
	owner := addr(1)
	agent := h.createAgent(owner, "rAgentOne", noFeeParams())
	h.selfMint(agent, 1)
	require.NoError(t, h.engine.ExitAvailableAgentList(agent.ID, owner))
	_, err := h.engine.AnnounceDestroy(agent.ID, owner)
	require.NoError(t, err)
	h.clock.Advance(2 * time.Hour)
	require.ErrorIs(t, h.engine.DestroyAgent(agent.ID, owner), ErrAgentStillActive)
}

func TestFailedOperationLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	owner := addr(1)
	agent := h.createAgent(owner, "rAgentOne", defaultParams())
	minter := addr(9)
	fee := reservationFeeWei(2)
	h.fund(testPool, minter, new(big.Int).Sub(fee, big.NewInt(1)))
	before := len(h.events.ofType(EventTypeCollateralReserved))

	_, err := h.engine.ReserveCollateral(minter, agent.ID, 2, maxBIPS, [20]byte{}, fee)
	require.True(t, errors.Is(err, ErrInsufficientBalance), "got %v", err)

	require.Zero(t, h.agent(agent.ID).ReservedAMG)
	h.requireBalance(testPool, minter, new(big.Int).Sub(fee, big.NewInt(1)))
	require.Len(t, h.events.ofType(EventTypeCollateralReserved), before)
	g, err := h.engine.Globals()
	require.NoError(t, err)
	require.Zero(t, g.TotalReservedAMG)
}
