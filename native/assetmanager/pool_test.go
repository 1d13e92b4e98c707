package assetmanager

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnterAndExitPool(t *testing.T) {
	h := newHarness(t)
	owner, member, minter := addr(1), addr(5), addr(9)
	agent := h.createAgent(owner, "rAgentOne", defaultParams())
	poolToken := PoolTokenSymbol(agent.ID)
	h.requireBalance(poolToken, agent.Vault, tenLotsPool)

	_, err := h.engine.EnterPool(agent.ID, member, big.NewInt(0))
	require.ErrorIs(t, err, ErrZeroAmount)
	_, err = h.engine.EnterPool(agent.ID, member, tenLotsPool)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	h.fund(testPool, member, tenLotsPool)
	tokens, err := h.engine.EnterPool(agent.ID, member, tenLotsPool)
	require.NoError(t, err)
	require.Zero(t, tokens.Cmp(tenLotsPool))
	h.requireBalance(poolToken, member, tenLotsPool)
	require.Zero(t, h.info(agent.ID).PoolTokenSupply.Cmp(new(big.Int).Mul(tenLotsPool, big.NewInt(2))))

	h.mint(minter, "rMinter", agent, 3)
	poolNAT := new(big.Int).Add(new(big.Int).Mul(tenLotsPool, big.NewInt(2)), big.NewInt(24_000_000_000_000))
	h.requireBalance(testPool, agent.Pool, poolNAT)

	_, err = h.engine.ExitPool(agent.ID, member, new(big.Int).Add(tenLotsPool, big.NewInt(1)))
	require.ErrorIs(t, err, ErrPoolTokensTooLow)

	half := new(big.Int).Quo(tenLotsPool, big.NewInt(2))
	exit, err := h.engine.ExitPool(agent.ID, member, half)
	require.NoError(t, err)
	require.Zero(t, exit.NATWei.Cmp(big.NewInt(20_006_000_000_000_000)))
	require.Zero(t, exit.FeesUBA.Cmp(big.NewInt(15)))
	require.Zero(t, exit.ClosedUBA.Sign())
	h.requireBalance(testPool, member, exit.NATWei)
	h.requireBalance(testAsset, member, big.NewInt(15))
	h.requireBalance(poolToken, member, half)
	h.requireBalance(testAsset, agent.Pool, big.NewInt(45))

	// The owner's tokens sit in the vault but the payout goes to the owner.
	ownerNAT := h.balance(testPool, owner)
	exit, err = h.engine.ExitPool(agent.ID, owner, half)
	require.NoError(t, err)
	require.Zero(t, h.balance(testPool, owner).Cmp(new(big.Int).Add(ownerNAT, exit.NATWei)))
	require.Zero(t, h.info(agent.ID).AgentPoolTokens.Cmp(new(big.Int).Sub(tenLotsPool, half)))
	require.Len(t, h.events.ofType(EventTypePoolExited), 2)
}

// fullyMintedWithMember returns an agent minted to ten lots whose pool is
// half owned by member, who also holds the minted f-assets.
func fullyMintedWithMember(t *testing.T) (*harness, *Agent, [20]byte) {
	h := newHarness(t)
	member := addr(5)
	agent := h.createAgent(addr(1), "rAgentOne", defaultParams())
	h.fund(testPool, member, tenLotsPool)
	_, err := h.engine.EnterPool(agent.ID, member, tenLotsPool)
	require.NoError(t, err)
	h.mint(member, "rMember", agent, 10)
	return h, agent, member
}

func TestExitPoolKeepsExitRatio(t *testing.T) {
	h, agent, member := fullyMintedWithMember(t)

	_, err := h.engine.ExitPool(agent.ID, member, tenLotsPool)
	require.ErrorIs(t, err, ErrPoolCRTooLowForExit)
	h.requireBalance(PoolTokenSymbol(agent.ID), member, tenLotsPool)
}

func TestSelfCloseExitPool(t *testing.T) {
	h, agent, member := fullyMintedWithMember(t)

	// The remaining 4.004e16 NAT wei backs at most 7700 AMG at 260%, so
	// 2500 of the 10200 minted must be closed. 100 comes from the member's
	// fee share and 2400 from the member's own f-assets.
	exit, err := h.engine.SelfCloseExitPool(agent.ID, member, tenLotsPool, false, "rMember")
	require.NoError(t, err)
	require.Zero(t, exit.ClosedUBA.Cmp(big.NewInt(2_500)))
	require.Zero(t, exit.NATWei.Cmp(big.NewInt(40_040_000_000_000_000)))
	require.Zero(t, exit.FeesUBA.Sign())

	h.requireBalance(testAsset, member, big.NewInt(10_000-2_400))
	h.requireBalance(testAsset, agent.Pool, big.NewInt(100))
	h.requireBalance(PoolTokenSymbol(agent.ID), member, big.NewInt(0))

	req, err := h.engine.Redemption(3)
	require.NoError(t, err)
	require.True(t, req.PoolSelfClose)
	require.Equal(t, member, req.Redeemer)
	require.Equal(t, uint64(2_500), req.ValueAMG)

	info := h.info(agent.ID)
	require.Equal(t, uint64(7_700), info.MintedUBA)
	require.Equal(t, uint64(2_500), info.RedeemingUBA)
	require.Zero(t, info.PoolRedeemingUBA)
	require.Equal(t, uint64(26_000), info.PoolCollateralRatioBIPS)
	h.requireBacked(agent.ID)
}

func TestSelfCloseExitPoolInCollateral(t *testing.T) {
	h, agent, member := fullyMintedWithMember(t)

	exit, err := h.engine.SelfCloseExitPool(agent.ID, member, tenLotsPool, true, "")
	require.NoError(t, err)
	require.Zero(t, exit.ClosedUBA.Cmp(big.NewInt(2_500)))
	// 2500 AMG at 1e12 vault wei.
	h.requireBalance(testVault, member, big.NewInt(2_500_000_000_000_000))
	info := h.info(agent.ID)
	require.Equal(t, uint64(7_700), info.MintedUBA)
	require.Zero(t, info.RedeemingUBA)
	require.Len(t, h.events.ofType(EventTypeRedeemedInCollateral), 1)
}

func TestSelfCloseExitPoolWithoutBacking(t *testing.T) {
	h := newHarness(t)
	owner := addr(1)
	agent := h.createAgent(owner, "rAgentOne", defaultParams())

	exit, err := h.engine.SelfCloseExitPool(agent.ID, owner, tenLotsPool, false, "rOwnerWallet")
	require.NoError(t, err)
	require.Zero(t, exit.ClosedUBA.Sign())
	require.Zero(t, exit.NATWei.Cmp(tenLotsPool))
	require.Zero(t, h.info(agent.ID).PoolTokenSupply.Sign())
}
