package assetmanager

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"fassetbridge/core/types"
)

const (
	EventTypeCollateralReserved           = "fasset.collateral_reserved"
	EventTypeMintingExecuted              = "fasset.minting_executed"
	EventTypeSelfMint                     = "fasset.self_mint"
	EventTypeMintingPaymentDefault        = "fasset.minting_payment_default"
	EventTypeCollateralReservationDeleted = "fasset.collateral_reservation_deleted"

	EventTypeRedemptionRequested         = "fasset.redemption_requested"
	EventTypeRedemptionRequestIncomplete = "fasset.redemption_request_incomplete"
	EventTypeRedemptionPerformed         = "fasset.redemption_performed"
	EventTypeRedemptionPaymentFailed     = "fasset.redemption_payment_failed"
	EventTypeRedemptionDefault           = "fasset.redemption_default"
	EventTypeRedemptionRejected          = "fasset.redemption_rejected"
	EventTypeRedeemedInCollateral        = "fasset.redeemed_in_collateral"

	EventTypeSelfClose               = "fasset.self_close"
	EventTypeDustChanged             = "fasset.dust_changed"
	EventTypeRedemptionTicketCreated = "fasset.redemption_ticket_created"
	EventTypeRedemptionTicketUpdated = "fasset.redemption_ticket_updated"
	EventTypeRedemptionTicketDeleted = "fasset.redemption_ticket_deleted"

	EventTypeLiquidationStarted     = "fasset.liquidation_started"
	EventTypeFullLiquidationStarted = "fasset.full_liquidation_started"
	EventTypeLiquidationPerformed   = "fasset.liquidation_performed"
	EventTypeLiquidationEnded       = "fasset.liquidation_ended"

	EventTypeIllegalPaymentConfirmed   = "fasset.illegal_payment_confirmed"
	EventTypeDuplicatePaymentConfirmed = "fasset.duplicate_payment_confirmed"
	EventTypeUnderlyingBalanceTooLow   = "fasset.underlying_balance_too_low"

	EventTypeAgentCreated          = "fasset.agent_created"
	EventTypeAgentAvailable        = "fasset.agent_available"
	EventTypeAvailableAgentExited  = "fasset.available_agent_exited"
	EventTypeAgentDestroyAnnounced = "fasset.agent_destroy_announced"
	EventTypeAgentDestroyed        = "fasset.agent_destroyed"

	EventTypeUnderlyingBalanceToppedUp     = "fasset.underlying_balance_topped_up"
	EventTypeUnderlyingWithdrawalAnnounced = "fasset.underlying_withdrawal_announced"
	EventTypeUnderlyingWithdrawalConfirmed = "fasset.underlying_withdrawal_confirmed"
	EventTypeUnderlyingWithdrawalCancelled = "fasset.underlying_withdrawal_cancelled"

	EventTypeCollateralDeposited = "fasset.collateral_deposited"
	EventTypeCollateralWithdrawn = "fasset.collateral_withdrawn"
	EventTypePoolEntered         = "fasset.pool_entered"
	EventTypePoolExited          = "fasset.pool_exited"
	EventTypeCurrentBlockUpdated = "fasset.current_block_updated"
)

// Engine events wrap *types.Event so they satisfy events.Event.
type assetEvent struct {
	evt *types.Event
}

func (e assetEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e assetEvent) Event() *types.Event { return e.evt }

// eventBuilder accumulates string attributes of one event.
type eventBuilder struct {
	evt *types.Event
}

func newEvent(eventType string) *eventBuilder {
	return &eventBuilder{evt: &types.Event{Type: eventType, Attributes: make(map[string]string)}}
}

func (b *eventBuilder) str(key, value string) *eventBuilder {
	b.evt.Attributes[key] = value
	return b
}

func (b *eventBuilder) u64(key string, value uint64) *eventBuilder {
	return b.str(key, strconv.FormatUint(value, 10))
}

func (b *eventBuilder) amount(key string, value *big.Int) *eventBuilder {
	if value == nil {
		return b.str(key, "0")
	}
	return b.str(key, value.String())
}

func (b *eventBuilder) addr(key string, value [20]byte) *eventBuilder {
	return b.str(key, "0x"+hex.EncodeToString(value[:]))
}

func (b *eventBuilder) hash(key string, value common.Hash) *eventBuilder {
	return b.str(key, value.Hex())
}

func (b *eventBuilder) flag(key string, value bool) *eventBuilder {
	return b.str(key, strconv.FormatBool(value))
}

func (b *eventBuilder) build() *types.Event { return b.evt }

func (s Settings) uba(amg uint64) *big.Int {
	return new(big.Int).Mul(bigU64(amg), bigU64(s.AssetMintingGranularityUBA))
}

func newCollateralReservedEvent(s Settings, crt *CollateralReservation) *types.Event {
	return newEvent(EventTypeCollateralReserved).
		u64("agentId", crt.AgentID).
		addr("minter", crt.Minter).
		u64("collateralReservationId", crt.ID).
		amount("valueUBA", s.uba(crt.ValueAMG)).
		u64("feeUBA", crt.UnderlyingFeeUBA).
		u64("firstUnderlyingBlock", crt.FirstUnderlyingBlock).
		u64("lastUnderlyingBlock", crt.LastUnderlyingBlock).
		u64("lastUnderlyingTimestamp", crt.LastUnderlyingTimestamp).
		str("paymentAddress", crt.PaymentAddress).
		hash("paymentReference", crt.PaymentReference).
		addr("executor", crt.Executor).
		amount("executorFeeWei", crt.ExecutorFeeWei).
		build()
}

func newMintingExecutedEvent(s Settings, crt *CollateralReservation, poolFeeUBA uint64) *types.Event {
	return newEvent(EventTypeMintingExecuted).
		u64("agentId", crt.AgentID).
		u64("collateralReservationId", crt.ID).
		amount("mintedAmountUBA", s.uba(crt.ValueAMG)).
		u64("agentFeeUBA", crt.UnderlyingFeeUBA-poolFeeUBA).
		u64("poolFeeUBA", poolFeeUBA).
		build()
}

func newSelfMintEvent(agentID uint64, mintedUBA, depositedUBA, poolFeeUBA uint64) *types.Event {
	return newEvent(EventTypeSelfMint).
		u64("agentId", agentID).
		u64("mintedAmountUBA", mintedUBA).
		u64("depositedAmountUBA", depositedUBA).
		u64("poolFeeUBA", poolFeeUBA).
		build()
}

func newMintingPaymentDefaultEvent(s Settings, crt *CollateralReservation) *types.Event {
	return newEvent(EventTypeMintingPaymentDefault).
		u64("agentId", crt.AgentID).
		addr("minter", crt.Minter).
		u64("collateralReservationId", crt.ID).
		amount("reservedAmountUBA", s.uba(crt.ValueAMG)).
		build()
}

func newCollateralReservationDeletedEvent(s Settings, crt *CollateralReservation) *types.Event {
	return newEvent(EventTypeCollateralReservationDeleted).
		u64("agentId", crt.AgentID).
		addr("minter", crt.Minter).
		u64("collateralReservationId", crt.ID).
		amount("reservedAmountUBA", s.uba(crt.ValueAMG)).
		build()
}

func newRedemptionRequestedEvent(req *RedemptionRequest) *types.Event {
	return newEvent(EventTypeRedemptionRequested).
		u64("agentId", req.AgentID).
		addr("redeemer", req.Redeemer).
		u64("requestId", req.ID).
		str("paymentAddress", req.PaymentAddress).
		u64("valueUBA", req.UnderlyingValueUBA).
		u64("feeUBA", req.UnderlyingFeeUBA).
		u64("firstUnderlyingBlock", req.FirstUnderlyingBlock).
		u64("lastUnderlyingBlock", req.LastUnderlyingBlock).
		u64("lastUnderlyingTimestamp", req.LastUnderlyingTimestamp).
		hash("paymentReference", req.PaymentReference).
		addr("executor", req.Executor).
		amount("executorFeeWei", req.ExecutorFeeWei).
		flag("poolSelfClose", req.PoolSelfClose).
		build()
}

func newRedemptionRequestIncompleteEvent(redeemer [20]byte, remainingUBA *big.Int) *types.Event {
	return newEvent(EventTypeRedemptionRequestIncomplete).
		addr("redeemer", redeemer).
		amount("remainingAmountUBA", remainingUBA).
		build()
}

func newRedemptionPerformedEvent(req *RedemptionRequest, txID common.Hash, spentUBA *big.Int) *types.Event {
	return newEvent(EventTypeRedemptionPerformed).
		u64("agentId", req.AgentID).
		addr("redeemer", req.Redeemer).
		u64("requestId", req.ID).
		hash("transactionHash", txID).
		u64("redemptionAmountUBA", req.UnderlyingValueUBA).
		amount("spentUnderlyingUBA", spentUBA).
		build()
}

func newRedemptionPaymentFailedEvent(req *RedemptionRequest, txID common.Hash, spentUBA *big.Int, reason string) *types.Event {
	return newEvent(EventTypeRedemptionPaymentFailed).
		u64("agentId", req.AgentID).
		addr("redeemer", req.Redeemer).
		u64("requestId", req.ID).
		hash("transactionHash", txID).
		amount("spentUnderlyingUBA", spentUBA).
		str("failureReason", reason).
		build()
}

func newRedemptionDefaultEvent(req *RedemptionRequest, vaultWei, poolWei *big.Int) *types.Event {
	return newEvent(EventTypeRedemptionDefault).
		u64("agentId", req.AgentID).
		addr("redeemer", req.Redeemer).
		u64("requestId", req.ID).
		u64("redemptionAmountUBA", req.UnderlyingValueUBA).
		amount("redeemedVaultCollateralWei", vaultWei).
		amount("redeemedPoolCollateralWei", poolWei).
		build()
}

func newRedemptionRejectedEvent(req *RedemptionRequest) *types.Event {
	return newEvent(EventTypeRedemptionRejected).
		u64("agentId", req.AgentID).
		addr("redeemer", req.Redeemer).
		u64("requestId", req.ID).
		u64("redemptionAmountUBA", req.UnderlyingValueUBA).
		build()
}

func newRedeemedInCollateralEvent(agentID uint64, redeemer [20]byte, redeemedUBA uint64, vaultWei, poolWei *big.Int) *types.Event {
	return newEvent(EventTypeRedeemedInCollateral).
		u64("agentId", agentID).
		addr("redeemer", redeemer).
		u64("redemptionAmountUBA", redeemedUBA).
		amount("paidVaultCollateralWei", vaultWei).
		amount("paidPoolCollateralWei", poolWei).
		build()
}

func newSelfCloseEvent(agentID uint64, valueUBA uint64) *types.Event {
	return newEvent(EventTypeSelfClose).
		u64("agentId", agentID).
		u64("valueUBA", valueUBA).
		build()
}

func newDustChangedEvent(agentID uint64, dustUBA uint64) *types.Event {
	return newEvent(EventTypeDustChanged).
		u64("agentId", agentID).
		u64("dustUBA", dustUBA).
		build()
}

func newTicketEvent(eventType string, agentID, ticketID, valueUBA uint64) *types.Event {
	return newEvent(eventType).
		u64("agentId", agentID).
		u64("redemptionTicketId", ticketID).
		u64("ticketValueUBA", valueUBA).
		build()
}

func newLiquidationStartedEvent(eventType string, agentID, timestamp uint64) *types.Event {
	return newEvent(eventType).
		u64("agentId", agentID).
		u64("timestamp", timestamp).
		build()
}

func newLiquidationPerformedEvent(agentID uint64, liquidator [20]byte, valueUBA uint64, vaultWei, poolWei *big.Int) *types.Event {
	return newEvent(EventTypeLiquidationPerformed).
		u64("agentId", agentID).
		addr("liquidator", liquidator).
		u64("valueUBA", valueUBA).
		amount("paidVaultCollateralWei", vaultWei).
		amount("paidPoolCollateralWei", poolWei).
		build()
}

func newLiquidationEndedEvent(agentID uint64) *types.Event {
	return newEvent(EventTypeLiquidationEnded).u64("agentId", agentID).build()
}

func newIllegalPaymentConfirmedEvent(agentID uint64, txID common.Hash) *types.Event {
	return newEvent(EventTypeIllegalPaymentConfirmed).
		u64("agentId", agentID).
		hash("transactionHash", txID).
		build()
}

func newDuplicatePaymentConfirmedEvent(agentID uint64, txID1, txID2 common.Hash) *types.Event {
	return newEvent(EventTypeDuplicatePaymentConfirmed).
		u64("agentId", agentID).
		hash("transactionHash1", txID1).
		hash("transactionHash2", txID2).
		build()
}

func newUnderlyingBalanceTooLowEvent(agentID uint64, balanceUBA *big.Int, requiredUBA *big.Int) *types.Event {
	return newEvent(EventTypeUnderlyingBalanceTooLow).
		u64("agentId", agentID).
		amount("balanceUBA", balanceUBA).
		amount("requiredBalanceUBA", requiredUBA).
		build()
}

func newAgentCreatedEvent(agent *Agent) *types.Event {
	return newEvent(EventTypeAgentCreated).
		u64("agentId", agent.ID).
		addr("owner", agent.Owner).
		addr("vault", agent.Vault).
		addr("collateralPool", agent.Pool).
		str("underlyingAddress", agent.UnderlyingAddress).
		u64("feeBIPS", agent.FeeBIPS).
		u64("poolFeeShareBIPS", agent.PoolFeeShareBIPS).
		u64("mintingVaultCollateralRatioBIPS", agent.MintingVaultCollateralRatioBIPS).
		u64("mintingPoolCollateralRatioBIPS", agent.MintingPoolCollateralRatioBIPS).
		build()
}

func newAgentEvent(eventType string, agentID uint64) *types.Event {
	return newEvent(eventType).u64("agentId", agentID).build()
}

func newAgentDestroyAnnouncedEvent(agentID, allowedAt uint64) *types.Event {
	return newEvent(EventTypeAgentDestroyAnnounced).
		u64("agentId", agentID).
		u64("destroyAllowedAt", allowedAt).
		build()
}

func newToppedUpEvent(agentID uint64, txID common.Hash, depositedUBA *big.Int) *types.Event {
	return newEvent(EventTypeUnderlyingBalanceToppedUp).
		u64("agentId", agentID).
		hash("transactionHash", txID).
		amount("depositedUBA", depositedUBA).
		build()
}

func newWithdrawalEvent(eventType string, agentID, announcementID uint64, ref common.Hash) *types.Event {
	return newEvent(eventType).
		u64("agentId", agentID).
		u64("announcementId", announcementID).
		hash("paymentReference", ref).
		build()
}

func newWithdrawalConfirmedEvent(agentID, announcementID uint64, txID common.Hash, spentUBA *big.Int) *types.Event {
	return newEvent(EventTypeUnderlyingWithdrawalConfirmed).
		u64("agentId", agentID).
		u64("announcementId", announcementID).
		hash("transactionHash", txID).
		amount("spentUBA", spentUBA).
		build()
}

func newCollateralEvent(eventType string, agentID uint64, token string, amount *big.Int) *types.Event {
	return newEvent(eventType).
		u64("agentId", agentID).
		str("token", token).
		amount("amountWei", amount).
		build()
}

func newPoolEnteredEvent(agentID uint64, holder [20]byte, natWei, tokens *big.Int) *types.Event {
	return newEvent(EventTypePoolEntered).
		u64("agentId", agentID).
		addr("holder", holder).
		amount("amountNatWei", natWei).
		amount("receivedTokensWei", tokens).
		build()
}

func newPoolExitedEvent(agentID uint64, holder [20]byte, tokens, natWei, feesUBA, closedUBA *big.Int) *types.Event {
	return newEvent(EventTypePoolExited).
		u64("agentId", agentID).
		addr("holder", holder).
		amount("burnedTokensWei", tokens).
		amount("receivedNatWei", natWei).
		amount("receivedFAssetFeesUBA", feesUBA).
		amount("closedFAssetsUBA", closedUBA).
		build()
}

func newCurrentBlockUpdatedEvent(block, timestamp, updatedAt uint64) *types.Event {
	return newEvent(EventTypeCurrentBlockUpdated).
		u64("underlyingBlockNumber", block).
		u64("underlyingBlockTimestamp", timestamp).
		u64("updatedAt", updatedAt).
		build()
}
