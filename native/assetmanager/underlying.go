package assetmanager

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"fassetbridge/native/attestation"
)

// ConfirmTopupPayment credits a proven payment to the agent's underlying
// address carrying the agent's top-up reference.
func (e *Engine) ConfirmTopupPayment(proof attestation.Proof, agentID uint64, caller [20]byte) error {
	return e.run("confirm_topup_payment", opts{}, func(tx *txn) error {
		payment, err := tx.verifyPayment(proof)
		if err != nil {
			return err
		}
		agent, err := tx.ownedAgent(agentID, caller)
		if err != nil {
			return err
		}
		if payment.StandardPaymentReference != attestation.TopupReference(agent.ID) {
			return ErrInvalidTopupReference
		}
		if payment.ReceivingAddressHash != agent.UnderlyingAddressHash {
			return ErrTopupNotToAgentsAddress
		}
		if payment.BlockNumber < agent.CreationBlock {
			return ErrTopupBeforeAgentCreated
		}
		if err := tx.confirmPayment(payment.TransactionID); err != nil {
			return err
		}
		agent.UnderlyingBalanceUBA.Add(agent.UnderlyingBalanceUBA, payment.ReceivedAmount)
		tx.emit(newToppedUpEvent(agent.ID, payment.TransactionID, payment.ReceivedAmount))
		return nil
	})
}

// AnnounceUnderlyingWithdrawal opens a withdrawal announcement and returns
// the payment reference the agent must use for it.
func (e *Engine) AnnounceUnderlyingWithdrawal(agentID uint64, caller [20]byte) (common.Hash, error) {
	var ref common.Hash
	err := e.run("announce_underlying_withdrawal", opts{}, func(tx *txn) error {
		agent, err := tx.ownedAgent(agentID, caller)
		if err != nil {
			return err
		}
		if agent.AnnouncedWithdrawalID != 0 {
			return ErrWithdrawalAlreadyActive
		}
		id, err := tx.e.allocateID(nextWithdrawalID)
		if err != nil {
			return err
		}
		agent.AnnouncedWithdrawalID = id
		agent.AnnouncedWithdrawalAt = tx.now
		ref = attestation.AnnouncedWithdrawalReference(id)
		tx.emit(newWithdrawalEvent(EventTypeUnderlyingWithdrawalAnnounced, agent.ID, id, ref))
		return nil
	})
	return ref, err
}

// ConfirmUnderlyingWithdrawal books the announced spend. Anyone may confirm
// once the owner has had ConfirmationByOthersAfterSeconds to do so.
func (e *Engine) ConfirmUnderlyingWithdrawal(proof attestation.Proof, agentID uint64, caller [20]byte) error {
	return e.run("confirm_underlying_withdrawal", opts{}, func(tx *txn) error {
		spend, err := tx.verifyBalanceDecreasing(proof)
		if err != nil {
			return err
		}
		agent, err := tx.agent(agentID)
		if err != nil {
			return err
		}
		id := agent.AnnouncedWithdrawalID
		if id == 0 {
			return ErrNoActiveWithdrawal
		}
		if caller != agent.Owner && tx.now < agent.AnnouncedWithdrawalAt+tx.settings().ConfirmationByOthersAfterSeconds {
			return ErrConfirmationTooEarly
		}
		if spend.StandardPaymentReference != attestation.AnnouncedWithdrawalReference(id) {
			return ErrWrongAnnouncedReference
		}
		if spend.SourceAddressHash != agent.UnderlyingAddressHash {
			return ErrWrongAnnouncedSource
		}
		if err := tx.confirmPayment(spend.TransactionID); err != nil {
			return err
		}
		agent.UnderlyingBalanceUBA.Sub(agent.UnderlyingBalanceUBA, spend.SpentAmount)
		agent.AnnouncedWithdrawalID = 0
		agent.AnnouncedWithdrawalAt = 0
		tx.emit(newWithdrawalConfirmedEvent(agent.ID, id, spend.TransactionID, spend.SpentAmount))
		tx.checkUnderlyingBalance(agent)
		return nil
	})
}

// CancelUnderlyingWithdrawal drops an unconfirmed announcement.
func (e *Engine) CancelUnderlyingWithdrawal(agentID uint64, caller [20]byte) error {
	return e.run("cancel_underlying_withdrawal", opts{}, func(tx *txn) error {
		agent, err := tx.ownedAgent(agentID, caller)
		if err != nil {
			return err
		}
		id := agent.AnnouncedWithdrawalID
		if id == 0 {
			return ErrNoActiveWithdrawal
		}
		agent.AnnouncedWithdrawalID = 0
		agent.AnnouncedWithdrawalAt = 0
		tx.emit(newWithdrawalEvent(EventTypeUnderlyingWithdrawalCancelled, agent.ID, id, attestation.AnnouncedWithdrawalReference(id)))
		return nil
	})
}

// UpdateCurrentBlock advances the tracked underlying block and timestamp
// from a block height proof. Confirmations are counted as already mined.
func (e *Engine) UpdateCurrentBlock(proof attestation.Proof) error {
	return e.run("update_current_block", opts{}, func(tx *txn) error {
		height, err := tx.verifyBlockHeight(proof)
		if err != nil {
			return err
		}
		s := tx.settings()
		block := height.BlockNumber + height.NumberOfConfirmations
		timestamp := height.BlockTimestamp + height.NumberOfConfirmations*s.AverageBlockTimeMS/1000
		g := tx.globals
		if block <= g.CurrentUnderlyingBlock && timestamp <= g.CurrentUnderlyingBlockTimestamp {
			return ErrBlockHeightNotIncreased
		}
		g.CurrentUnderlyingBlock = maxU64(g.CurrentUnderlyingBlock, block)
		g.CurrentUnderlyingBlockTimestamp = maxU64(g.CurrentUnderlyingBlockTimestamp, timestamp)
		g.CurrentUnderlyingBlockUpdatedAt = tx.now
		tx.blockChanged = true
		tx.emit(newCurrentBlockUpdatedEvent(g.CurrentUnderlyingBlock, g.CurrentUnderlyingBlockTimestamp, tx.now))
		return nil
	})
}

// FreeUnderlyingBalance is the agent's underlying balance not needed for
// backing; it may be negative.
func (e *Engine) FreeUnderlyingBalance(agentID uint64) (*big.Int, error) {
	var free *big.Int
	err := e.view(func(tx *txn) error {
		agent, err := tx.agent(agentID)
		if err != nil {
			return err
		}
		free = tx.freeUnderlyingUBA(agent)
		return nil
	})
	return free, err
}
