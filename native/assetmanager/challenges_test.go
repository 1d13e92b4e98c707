package assetmanager

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"fassetbridge/native/attestation"
)

func TestIllegalPaymentChallenge(t *testing.T) {
	h := newHarness(t)
	owner, minter, challenger := addr(1), addr(9), addr(6)
	agent := h.createAgent(owner, "rAgentOne", defaultParams())
	h.mint(minter, "rMinter", agent, 3)

	foreign := h.spend("rStranger", "rAnywhere", 100, [32]byte{})
	_, err := h.engine.IllegalPaymentChallenge(foreign, agent.ID, challenger)
	require.ErrorIs(t, err, ErrChallengeNotAgentsAddress)

	proof := h.spend(agent.UnderlyingAddress, "rAnywhere", 100, [32]byte{})
	reward, err := h.engine.IllegalPaymentChallenge(proof, agent.ID, challenger)
	require.NoError(t, err)
	// 10% of 3060 AMG in vault collateral.
	require.Zero(t, reward.Cmp(big.NewInt(306_000_000_000_000)))
	h.requireBalance(testVault, challenger, reward)

	stored := h.agent(agent.ID)
	require.Equal(t, AgentStatusFullLiquidation, stored.Status)
	require.False(t, stored.PubliclyAvailable)
	require.Len(t, h.events.ofType(EventTypeIllegalPaymentConfirmed), 1)
	require.Len(t, h.events.ofType(EventTypeFullLiquidationStarted), 1)

	_, err = h.engine.IllegalPaymentChallenge(proof, agent.ID, challenger)
	require.ErrorIs(t, err, ErrChallengeAlreadyLiquidating)
	require.ErrorIs(t, h.engine.EndLiquidation(agent.ID), ErrCannotStopLiquidation)

	// Full liquidation is not limited to the safety amount.
	result, err := h.engine.Liquidate(agent.ID, minter, 3_000)
	require.NoError(t, err)
	require.Equal(t, uint64(3_000), result.LiquidatedUBA)
	require.Zero(t, result.VaultPaidWei.Cmp(big.NewInt(3_000_000_000_000_000)))
	require.Zero(t, result.PoolPaidWei.Cmp(big.NewInt(1_200_000_000_000_000)))
	require.Equal(t, AgentStatusFullLiquidation, h.agent(agent.ID).Status)
}

func TestIllegalPaymentChallengeAllowsRedemptionPayment(t *testing.T) {
	h := newHarness(t)
	owner, minter := addr(1), addr(9)
	agent := h.createAgent(owner, "rAgentOne", defaultParams())
	h.mint(minter, "rMinter", agent, 3)
	result, err := h.engine.Redeem(minter, 1, "rRedeemer", [20]byte{}, nil)
	require.NoError(t, err)
	req := result.Requests[0]

	proof := h.spend(agent.UnderlyingAddress, "rRedeemer", 980, req.PaymentReference)
	_, err = h.engine.IllegalPaymentChallenge(proof, agent.ID, addr(6))
	require.ErrorIs(t, err, ErrMatchingRedemptionActive)

	ref, err := h.engine.AnnounceUnderlyingWithdrawal(agent.ID, owner)
	require.NoError(t, err)
	withdrawal := h.spend(agent.UnderlyingAddress, "rOwnerWallet", 10, ref)
	_, err = h.engine.IllegalPaymentChallenge(withdrawal, agent.ID, addr(6))
	require.ErrorIs(t, err, ErrMatchingAnnouncedPaymentActive)
	require.Equal(t, AgentStatusNormal, h.agent(agent.ID).Status)
}

func TestChallengeRejectsConfirmedTransaction(t *testing.T) {
	h := newHarness(t)
	owner, minter := addr(1), addr(9)
	agent := h.createAgent(owner, "rAgentOne", defaultParams())
	h.mint(minter, "rMinter", agent, 3)
	result, err := h.engine.Redeem(minter, 1, "rRedeemer", [20]byte{}, nil)
	require.NoError(t, err)
	req := result.Requests[0]

	txID, err := h.chain.AddTransaction(agent.UnderlyingAddress, "rRedeemer", big.NewInt(980), req.PaymentReference)
	require.NoError(t, err)
	payment, err := h.prover.ProvePayment(txID, agent.UnderlyingAddress, "rRedeemer")
	require.NoError(t, err)
	require.NoError(t, h.engine.ConfirmRedemptionPayment(payment, req.ID, owner))

	spend, err := h.prover.ProveBalanceDecreasingTransaction(txID, agent.UnderlyingAddress)
	require.NoError(t, err)
	_, err = h.engine.IllegalPaymentChallenge(spend, agent.ID, addr(6))
	require.ErrorIs(t, err, ErrChallengeTransactionAlreadyConfirmed)
}

func TestDoublePaymentChallenge(t *testing.T) {
	h := newHarness(t)
	owner, minter := addr(1), addr(9)
	agent := h.createAgent(owner, "rAgentOne", defaultParams())
	h.mint(minter, "rMinter", agent, 3)
	ref := attestation.RedemptionReference(1_000)

	first := h.spend(agent.UnderlyingAddress, "rRedeemer", 50, ref)
	second := h.spend(agent.UnderlyingAddress, "rRedeemer", 60, ref)
	other := h.spend(agent.UnderlyingAddress, "rRedeemer", 70, attestation.RedemptionReference(1_002))
	unreferenced1 := h.spend(agent.UnderlyingAddress, "rRedeemer", 80, [32]byte{})
	unreferenced2 := h.spend(agent.UnderlyingAddress, "rRedeemer", 90, [32]byte{})

	_, err := h.engine.DoublePaymentChallenge(first, first, agent.ID, addr(6))
	require.ErrorIs(t, err, ErrChallengeSameTransactionRepeated)
	_, err = h.engine.DoublePaymentChallenge(first, other, agent.ID, addr(6))
	require.ErrorIs(t, err, ErrChallengeNotDuplicate)
	_, err = h.engine.DoublePaymentChallenge(unreferenced1, unreferenced2, agent.ID, addr(6))
	require.ErrorIs(t, err, ErrChallengeNotDuplicate)

	reward, err := h.engine.DoublePaymentChallenge(first, second, agent.ID, addr(6))
	require.NoError(t, err)
	require.Equal(t, 1, reward.Sign())
	require.Equal(t, AgentStatusFullLiquidation, h.agent(agent.ID).Status)
	require.Len(t, h.events.ofType(EventTypeDuplicatePaymentConfirmed), 1)
}

func TestFreeBalanceNegativeChallenge(t *testing.T) {
	h := newHarness(t)
	owner, minter := addr(1), addr(9)
	agent := h.createAgent(owner, "rAgentOne", defaultParams())
	h.mint(minter, "rMinter", agent, 3)

	// 3150 UBA held against 3060 minted leaves 90 of free balance.
	_, err := h.engine.FreeBalanceNegativeChallenge(nil, agent.ID, addr(6))
	require.ErrorIs(t, err, ErrChallengeEmptyEvidence)

	small := h.spend(agent.UnderlyingAddress, "rAnywhere", 50, [32]byte{})
	_, err = h.engine.FreeBalanceNegativeChallenge([]attestation.Proof{small}, agent.ID, addr(6))
	require.ErrorIs(t, err, ErrMultiplePaymentsChallengeEnoughBalance)
	_, err = h.engine.FreeBalanceNegativeChallenge([]attestation.Proof{small, small}, agent.ID, addr(6))
	require.ErrorIs(t, err, ErrChallengeSameTransactionRepeated)

	large := h.spend(agent.UnderlyingAddress, "rAnywhere", 200, [32]byte{})
	reward, err := h.engine.FreeBalanceNegativeChallenge([]attestation.Proof{small, large}, agent.ID, addr(6))
	require.NoError(t, err)
	require.Equal(t, 1, reward.Sign())
	require.Equal(t, AgentStatusFullLiquidation, h.agent(agent.ID).Status)
	require.Len(t, h.events.ofType(EventTypeUnderlyingBalanceTooLow), 1)
}

func TestFreeBalanceNegativeCountsRedemptionPayments(t *testing.T) {
	h := newHarness(t)
	owner, minter := addr(1), addr(9)
	agent := h.createAgent(owner, "rAgentOne", defaultParams())
	h.mint(minter, "rMinter", agent, 3)
	result, err := h.engine.Redeem(minter, 1, "rRedeemer", [20]byte{}, nil)
	require.NoError(t, err)
	req := result.Requests[0]

	// Only the part above the request value counts against the agent.
	payment := h.spend(agent.UnderlyingAddress, "rRedeemer", 1_050, req.PaymentReference)
	_, err = h.engine.FreeBalanceNegativeChallenge([]attestation.Proof{payment}, agent.ID, addr(6))
	require.ErrorIs(t, err, ErrMultiplePaymentsChallengeEnoughBalance)
}
