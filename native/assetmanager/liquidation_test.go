package assetmanager

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// liquidatable mints five fee-less lots and quadruples the asset price, which
// leaves the vault at 75% and the pool at 100%.
func liquidatable(t *testing.T) (*harness, *Agent, [20]byte) {
	h := newHarness(t)
	liquidator := addr(9)
	agent := h.createAgent(addr(1), "rAgentOne", noFeeParams())
	h.mint(liquidator, "rMinter", agent, 5)
	h.setAssetPrice(400_000)
	return h, agent, liquidator
}

func TestLiquidationNotPossibleWhenHealthy(t *testing.T) {
	h := newHarness(t)
	agent := h.createAgent(addr(1), "rAgentOne", noFeeParams())
	h.mint(addr(9), "rMinter", agent, 5)

	require.ErrorIs(t, h.engine.StartLiquidation(agent.ID), ErrLiquidationNotStarted)
	_, err := h.engine.Liquidate(agent.ID, addr(9), 1_000)
	require.ErrorIs(t, err, ErrNotInLiquidation)
	require.ErrorIs(t, h.engine.EndLiquidation(agent.ID), ErrLiquidationNotStarted)
	require.Equal(t, AgentStatusNormal, h.agent(agent.ID).Status)
}

func TestLiquidationAfterPriceRise(t *testing.T) {
	h, agent, liquidator := liquidatable(t)

	info := h.info(agent.ID)
	require.Equal(t, uint64(7_500), info.VaultCollateralRatioBIPS)
	require.Equal(t, uint64(10_000), info.PoolCollateralRatioBIPS)

	require.NoError(t, h.engine.StartLiquidation(agent.ID))
	stored := h.agent(agent.ID)
	require.Equal(t, AgentStatusLiquidation, stored.Status)
	require.Equal(t, uint64(genesisTime), stored.LiquidationStartedAt)
	require.Len(t, h.events.ofType(EventTypeLiquidationStarted), 1)

	_, err := h.engine.ReserveCollateral(addr(8), agent.ID, 1, maxBIPS, [20]byte{}, reservationFeeWei(1))
	require.ErrorIs(t, err, ErrInvalidAgentStatus)

	tokensBefore := h.info(agent.ID).AgentPoolTokens
	result, err := h.engine.Liquidate(agent.ID, liquidator, 2_000)
	require.NoError(t, err)
	require.Equal(t, uint64(2_000), result.LiquidatedUBA)
	// Step 0: the vault pays at its own ratio of 75%, the pool covers 45%.
	require.Zero(t, result.VaultPaidWei.Cmp(big.NewInt(6_000_000_000_000_000)))
	require.Zero(t, result.PoolPaidWei.Cmp(big.NewInt(7_200_000_000_000_000)))
	h.requireBalance(testAsset, liquidator, big.NewInt(3_000))
	h.requireBalance(testVault, liquidator, result.VaultPaidWei)
	h.requireBalance(testPool, liquidator, result.PoolPaidWei)

	info = h.info(agent.ID)
	require.Equal(t, uint64(3_000), info.MintedUBA)
	require.Equal(t, AgentStatusLiquidation, info.Status)
	require.Equal(t, -1, info.AgentPoolTokens.Cmp(tokensBefore))
	h.requireBacked(agent.ID)

	// The pool factor grows with every step.
	h.clock.Advance(90 * time.Second)
	result, err = h.engine.Liquidate(agent.ID, liquidator, 1_000)
	require.NoError(t, err)
	require.Zero(t, result.VaultPaidWei.Cmp(big.NewInt(3_000_000_000_000_000)))
	require.Zero(t, result.PoolPaidWei.Cmp(big.NewInt(6_800_000_000_000_000)))

	require.ErrorIs(t, h.engine.EndLiquidation(agent.ID), ErrCannotStopLiquidation)
	h.setAssetPrice(100_000)
	require.NoError(t, h.engine.EndLiquidation(agent.ID))
	require.Equal(t, AgentStatusNormal, h.agent(agent.ID).Status)
	require.Zero(t, h.agent(agent.ID).LiquidationStartedAt)
	require.Len(t, h.events.ofType(EventTypeLiquidationEnded), 1)
	require.Len(t, h.events.ofType(EventTypeLiquidationPerformed), 2)
}

func TestLiquidateStartsLiquidationLazily(t *testing.T) {
	h, agent, liquidator := liquidatable(t)

	result, err := h.engine.Liquidate(agent.ID, liquidator, 1_000)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), result.LiquidatedUBA)
	require.Equal(t, AgentStatusLiquidation, h.agent(agent.ID).Status)
	require.Len(t, h.events.ofType(EventTypeLiquidationStarted), 1)
}

func TestLiquidateRequiresFAssets(t *testing.T) {
	h, agent, _ := liquidatable(t)

	_, err := h.engine.Liquidate(agent.ID, addr(7), 1_000)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	// The failed call does not leave the agent liquidating.
	require.Equal(t, AgentStatusNormal, h.agent(agent.ID).Status)
}

func TestLiquidationCappedAtMinted(t *testing.T) {
	h, agent, liquidator := liquidatable(t)

	result, err := h.engine.Liquidate(agent.ID, liquidator, 50_000)
	require.NoError(t, err)
	require.Equal(t, uint64(5_000), result.LiquidatedUBA)

	stored := h.agent(agent.ID)
	require.Zero(t, stored.MintedAMG)
	require.Equal(t, AgentStatusNormal, stored.Status)
	require.Len(t, h.events.ofType(EventTypeLiquidationEnded), 1)
	h.requireBalance(testAsset, liquidator, big.NewInt(0))
}

func TestCollateralRatiosIgnorePriceDecimals(t *testing.T) {
	h, agent, _ := liquidatable(t)
	before := h.info(agent.ID)

	// Same prices with two more decimals each.
	require.NoError(t, h.prices.SetPrice("TESTXRP", big.NewInt(40_000_000), 7))
	require.NoError(t, h.prices.SetPrice("USDC", big.NewInt(10_000_000), 7))
	require.NoError(t, h.prices.SetPrice("NAT", big.NewInt(5_000_000), 7))

	after := h.info(agent.ID)
	require.Equal(t, before.VaultCollateralRatioBIPS, after.VaultCollateralRatioBIPS)
	require.Equal(t, before.PoolCollateralRatioBIPS, after.PoolCollateralRatioBIPS)
	require.Equal(t, before.FreeCollateralLots, after.FreeCollateralLots)
}

// fullyLiquidating mints five fee-less lots, confirms an illegal payment
// challenge and then quadruples the asset price. The vault is left at 72.5%.
func fullyLiquidating(t *testing.T) (*harness, *Agent, [20]byte) {
	h := newHarness(t)
	liquidator := addr(9)
	agent := h.createAgent(addr(1), "rAgentOne", noFeeParams())
	h.mint(liquidator, "rMinter", agent, 5)
	proof := h.spend(agent.UnderlyingAddress, "rAnywhere", 100, [32]byte{})
	_, err := h.engine.IllegalPaymentChallenge(proof, agent.ID, addr(6))
	require.NoError(t, err)
	require.Equal(t, AgentStatusFullLiquidation, h.agent(agent.ID).Status)
	h.setAssetPrice(400_000)
	return h, agent, liquidator
}

func TestFullLiquidationFactorsGrowWithTime(t *testing.T) {
	h, agent, liquidator := fullyLiquidating(t)
	vaultPaid := big.NewInt(2_900_000_000_000_000)

	steps := []struct {
		advance    time.Duration
		poolFactor uint64
		poolPaid   *big.Int
	}{
		{0, 4_750, big.NewInt(3_800_000_000_000_000)},
		{30 * time.Second, 4_750, big.NewInt(3_800_000_000_000_000)},
		{60 * time.Second, 8_750, big.NewInt(7_000_000_000_000_000)},
		{90 * time.Second, 12_750, big.NewInt(10_200_000_000_000_000)},
	}
	lastPool := big.NewInt(0)
	for i, step := range steps {
		h.clock.Advance(step.advance)
		info := h.info(agent.ID)
		// Paying the vault part at the vault ratio keeps the ratio fixed.
		require.Equal(t, uint64(7_250), info.VaultCollateralRatioBIPS, "step %d", i)
		require.Equal(t, uint64(7_250), info.VaultLiquidationFactorBIPS, "step %d", i)
		require.Equal(t, step.poolFactor, info.PoolLiquidationFactorBIPS, "step %d", i)

		result, err := h.engine.Liquidate(agent.ID, liquidator, 1_000)
		require.NoError(t, err)
		require.Equal(t, uint64(1_000), result.LiquidatedUBA)
		require.Zero(t, result.VaultPaidWei.Cmp(vaultPaid), "step %d vault %s", i, result.VaultPaidWei)
		require.Zero(t, result.PoolPaidWei.Cmp(step.poolPaid), "step %d pool %s", i, result.PoolPaidWei)
		require.GreaterOrEqual(t, result.PoolPaidWei.Cmp(lastPool), 0)
		lastPool = result.PoolPaidWei
		h.requireBacked(agent.ID)
	}
	require.Equal(t, uint64(1_000), h.info(agent.ID).MintedUBA)
	require.Equal(t, AgentStatusFullLiquidation, h.agent(agent.ID).Status)
}

func TestLiquidationAppliesFactorBeforeConversion(t *testing.T) {
	h := newHarness(t)
	liquidator := addr(9)
	agent := h.createAgent(addr(1), "rAgentOne", defaultParams())
	h.mint(liquidator, "rMinter", agent, 3)
	proof := h.spend(agent.UnderlyingAddress, "rAnywhere", 100, [32]byte{})
	_, err := h.engine.IllegalPaymentChallenge(proof, agent.ID, addr(6))
	require.NoError(t, err)

	result, err := h.engine.Liquidate(agent.ID, liquidator, 1_003)
	require.NoError(t, err)
	require.Equal(t, uint64(1_003), result.LiquidatedUBA)
	// 1003 * 20% = 200.6 AMG, floored to 200 before conversion.
	require.Zero(t, result.PoolPaidWei.Cmp(big.NewInt(400_000_000_000_000)))
	require.Zero(t, result.VaultPaidWei.Cmp(big.NewInt(1_003_000_000_000_000)))
	h.requireBacked(agent.ID)
}

func TestSettingsRejectDecreasingPoolFactor(t *testing.T) {
	settings := testSettings()
	settings.LiquidationCollateralFactorBIPS = []uint64{12_000, 13_000, 20_000}
	settings.LiquidationFactorVaultCollateralBIPS = []uint64{10_000, 12_000, 12_000}
	_, err := NewEngine(settings)
	require.ErrorIs(t, err, errInvalidSettings)
	require.Contains(t, err.Error(), "pool liquidation factor 1 decreases")

	settings.LiquidationFactorVaultCollateralBIPS = []uint64{10_000, 11_000, 12_000}
	_, err = NewEngine(settings)
	require.NoError(t, err)
}
