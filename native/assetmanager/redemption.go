package assetmanager

import (
	"math/big"

	"fassetbridge/native/attestation"
	"fassetbridge/native/conversion"
)

// Failure reasons reported by RedemptionPaymentFailed.
const (
	redemptionFailedPayment   = "transaction failed"
	redemptionFailedAddress   = "not redeemer's address"
	redemptionFailedTooSmall  = "redemption payment too small"
	redemptionFailedTooLate   = "redemption payment too late"
	redemptionFailedDefaulted = "redemption already defaulted"
)

// RedeemResult describes the outcome of a queue redemption. Empty slices
// mean nothing changed.
type RedeemResult struct {
	Requests      []*RedemptionRequest
	RemainingLots uint64
	DustChanges   []DustChange
}

// lastDustChanges keeps the final dust of every agent in order of first
// change.
func lastDustChanges(changes []DustChange) []DustChange {
	index := make(map[uint64]int)
	out := make([]DustChange, 0, len(changes))
	for _, c := range changes {
		if pos, ok := index[c.AgentID]; ok {
			out[pos] = c
			continue
		}
		index[c.AgentID] = len(out)
		out = append(out, c)
	}
	return out
}

func checkPaymentAddress(address string) error {
	if len(address) > attestation.MaxUnderlyingAddressLength {
		return ErrUnderlyingAddressTooLong
	}
	return nil
}

// collectExecutorFee moves the NAT executor fee from payer to the module
// account where it waits for the request to settle.
func (tx *txn) collectExecutorFee(payer, executor [20]byte, feeWei *big.Int) (*big.Int, error) {
	if feeWei == nil || feeWei.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if feeWei.Sign() < 0 {
		return nil, ErrInappropriateFeeAmount
	}
	if executor == ([20]byte{}) {
		return nil, ErrExecutorFeeWithoutExecutor
	}
	if err := tx.transfer(tx.settings().PoolCollateral.Token, payer, ModuleAddress, feeWei); err != nil {
		return nil, err
	}
	return new(big.Int).Set(feeWei), nil
}

// createRedemptionRequest turns valueAMG of the agent's minted backing into
// a redemption obligation.
func (tx *txn) createRedemptionRequest(agent *Agent, valueAMG uint64, redeemer [20]byte, paymentAddress string, executor [20]byte, executorFeeWei *big.Int, poolSelfClose bool) (*RedemptionRequest, error) {
	minted, err := subChecked(agent.MintedAMG, valueAMG, "minted")
	if err != nil {
		return nil, err
	}
	agent.MintedAMG = minted
	tx.changeMinted(-int64(valueAMG))
	agent.RedeemingAMG += valueAMG
	if !poolSelfClose {
		agent.PoolRedeemingAMG += valueAMG
	}
	counter, err := tx.e.allocateID(nextRedemptionID)
	if err != nil {
		return nil, err
	}
	id := redemptionRequestID(counter, poolSelfClose)
	s := tx.settings()
	valueUBA := s.amgToUBA(valueAMG)
	first, last, lastTs := tx.paymentWindow()
	if executorFeeWei == nil {
		executorFeeWei = big.NewInt(0)
	}
	req := &RedemptionRequest{
		ID:                      id,
		AgentID:                 agent.ID,
		Redeemer:                redeemer,
		PaymentAddress:          paymentAddress,
		ValueAMG:                valueAMG,
		UnderlyingValueUBA:      valueUBA,
		UnderlyingFeeUBA:        conversion.MulBIPS64(valueUBA, s.RedemptionFeeBIPS),
		PaymentReference:        attestation.RedemptionReference(id),
		FirstUnderlyingBlock:    first,
		LastUnderlyingBlock:     last,
		LastUnderlyingTimestamp: lastTs,
		Executor:                executor,
		ExecutorFeeWei:          executorFeeWei,
		Status:                  RedemptionActive,
		Timestamp:               tx.now,
		PoolSelfClose:           poolSelfClose,
	}
	tx.putRedemption(req)
	tx.emit(newRedemptionRequestedEvent(req))
	return req, nil
}

// releaseRedeeming drops the redeeming value of a request that no longer
// needs to be backed.
func (tx *txn) releaseRedeeming(agent *Agent, req *RedemptionRequest) error {
	redeeming, err := subChecked(agent.RedeemingAMG, req.ValueAMG, "redeeming")
	if err != nil {
		return err
	}
	agent.RedeemingAMG = redeeming
	if !req.PoolSelfClose {
		poolRedeeming, err := subChecked(agent.PoolRedeemingAMG, req.ValueAMG, "pool redeeming")
		if err != nil {
			return err
		}
		agent.PoolRedeemingAMG = poolRedeeming
	}
	return nil
}

// Redeem burns up to lots of the redeemer's f-assets against the head of the
// redemption queue and creates one request per agent hit.
func (e *Engine) Redeem(redeemer [20]byte, lots uint64, paymentAddress string, executor [20]byte, executorFeeWei *big.Int) (*RedeemResult, error) {
	result := &RedeemResult{Requests: []*RedemptionRequest{}, DustChanges: []DustChange{}}
	err := e.run("redeem", opts{queue: true, paused: true}, func(tx *txn) error {
		if lots == 0 {
			return ErrRedeemZeroLots
		}
		if err := checkPaymentAddress(paymentAddress); err != nil {
			return err
		}
		fee, err := tx.collectExecutorFee(redeemer, executor, executorFeeWei)
		if err != nil {
			return err
		}
		parts, redeemedLots, err := tx.redeemFromQueue(lots)
		if err != nil {
			return err
		}
		if redeemedLots == 0 {
			return ErrRedeemZeroLots
		}
		s := tx.settings()
		redeemedAMG := redeemedLots * tx.lotSize()
		if err := tx.burn(s.AssetSymbol, redeemer, s.uba(redeemedAMG)); err != nil {
			return err
		}
		share := new(big.Int).Quo(fee, big.NewInt(int64(len(parts))))
		rest := new(big.Int).Sub(fee, new(big.Int).Mul(share, big.NewInt(int64(len(parts)))))
		if err := tx.settleExecutorFee(rest, nil); err != nil {
			return err
		}
		for _, part := range parts {
			req, err := tx.createRedemptionRequest(part.agent, part.valueAMG, redeemer, paymentAddress, executor, new(big.Int).Set(share), false)
			if err != nil {
				return err
			}
			result.Requests = append(result.Requests, req)
		}
		result.RemainingLots = lots - redeemedLots
		if result.RemainingLots > 0 {
			tx.emit(newRedemptionRequestIncompleteEvent(redeemer, s.uba(result.RemainingLots*tx.lotSize())))
		}
		tx.addVolume("redeemed", s.uba(redeemedAMG))
		result.DustChanges = lastDustChanges(tx.dustChanges)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, req := range result.Requests {
		result.Requests[i] = req.Clone()
	}
	return result, nil
}

// ConfirmRedemptionPayment records the agent's payment for a request. A
// payment that does not satisfy the request defaults it.
func (e *Engine) ConfirmRedemptionPayment(proof attestation.Proof, requestID uint64, caller [20]byte) error {
	return e.run("confirm_redemption_payment", opts{}, func(tx *txn) error {
		payment, err := tx.verifyPayment(proof)
		if err != nil {
			return err
		}
		req, agent, err := tx.redemption(requestID)
		if err != nil {
			return err
		}
		if agent.Owner != caller {
			return ErrOnlyAgentVaultOwner
		}
		if payment.StandardPaymentReference != req.PaymentReference {
			return ErrInvalidRedemptionReference
		}
		if payment.SourceAddressHash != agent.UnderlyingAddressHash {
			return ErrSourceNotAgentsUnderlyingAddress
		}
		if payment.BlockNumber < req.FirstUnderlyingBlock {
			return ErrRedemptionPaymentTooOld
		}
		if !req.open() {
			return ErrInvalidRedemptionStatus
		}
		if err := tx.confirmPayment(payment.TransactionID); err != nil {
			return err
		}

		failure := ""
		switch {
		case payment.Status != attestation.PaymentSuccess:
			failure = redemptionFailedPayment
		case payment.ReceivingAddressHash != attestation.AddressHash(req.PaymentAddress):
			failure = redemptionFailedAddress
		case payment.ReceivedAmount.Cmp(bigU64(req.UnderlyingValueUBA-req.UnderlyingFeeUBA)) < 0:
			failure = redemptionFailedTooSmall
		case payment.BlockNumber > req.LastUnderlyingBlock && payment.BlockTimestamp > req.LastUnderlyingTimestamp:
			failure = redemptionFailedTooLate
		}

		if req.Status == RedemptionDefaultedUnconfirmed {
			req.Status = RedemptionDefaultedFailed
			tx.emit(newRedemptionPaymentFailedEvent(req, payment.TransactionID, payment.SpentAmount, redemptionFailedDefaulted))
		} else {
			if err := tx.releaseRedeeming(agent, req); err != nil {
				return err
			}
			if failure == "" {
				req.Status = RedemptionSuccessful
				tx.emit(newRedemptionPerformedEvent(req, payment.TransactionID, payment.SpentAmount))
			} else {
				vaultWei, poolWei, err := tx.executeDefaultPayment(agent, req)
				if err != nil {
					return err
				}
				req.Status = RedemptionDefaultedFailed
				tx.emit(newRedemptionPaymentFailedEvent(req, payment.TransactionID, payment.SpentAmount, failure))
				tx.emit(newRedemptionDefaultEvent(req, vaultWei, poolWei))
				tx.e.logger.Info("redemption payment failed", "agentId", agent.ID, "requestId", req.ID, "reason", failure)
			}
			if err := tx.settleExecutorFee(req.ExecutorFeeWei, nil); err != nil {
				return err
			}
			req.ExecutorFeeWei = big.NewInt(0)
		}
		agent.UnderlyingBalanceUBA.Sub(agent.UnderlyingBalanceUBA, payment.SpentAmount)
		tx.checkUnderlyingBalance(agent)
		return nil
	})
}

// RejectInvalidRedemption cancels a request whose payment address is proven
// invalid and gives the redeemer its f-assets back.
func (e *Engine) RejectInvalidRedemption(proof attestation.Proof, requestID uint64, caller [20]byte) error {
	return e.run("reject_invalid_redemption", opts{queue: true}, func(tx *txn) error {
		req, agent, err := tx.redemption(requestID)
		if err != nil {
			return err
		}
		if agent.Owner != caller {
			return ErrOnlyAgentVaultOwner
		}
		validity, err := tx.verifyAddressValidity(proof)
		if err != nil {
			return err
		}
		if attestation.AddressHash(validity.Address) != attestation.AddressHash(req.PaymentAddress) {
			return ErrWrongAddress
		}
		if validity.IsValid {
			return ErrAddressValid
		}
		if req.Status != RedemptionActive {
			return ErrInvalidRedemptionStatus
		}
		if err := tx.releaseRedeeming(agent, req); err != nil {
			return err
		}
		agent.MintedAMG += req.ValueAMG
		tx.changeMinted(int64(req.ValueAMG))
		if err := tx.createNewMinting(agent, req.ValueAMG); err != nil {
			return err
		}
		s := tx.settings()
		tx.mint(s.AssetSymbol, req.Redeemer, bigU64(req.UnderlyingValueUBA))
		redeemer := req.Redeemer
		if err := tx.settleExecutorFee(req.ExecutorFeeWei, &redeemer); err != nil {
			return err
		}
		req.ExecutorFeeWei = big.NewInt(0)
		req.Status = RedemptionRejected
		tx.emit(newRedemptionRejectedEvent(req))
		return nil
	})
}

// SelfClose burns the owner's f-assets against the agent's own backing and
// returns the closed amount in UBA.
func (e *Engine) SelfClose(agentID uint64, caller [20]byte, amountUBA uint64) (uint64, error) {
	var closedUBA uint64
	err := e.run("self_close", opts{queue: true}, func(tx *txn) error {
		agent, err := tx.ownedAgent(agentID, caller)
		if err != nil {
			return err
		}
		s := tx.settings()
		amountAMG := s.ubaToAMG(amountUBA)
		if amountAMG == 0 {
			return ErrSelfCloseOfZero
		}
		closed, err := tx.closeTickets(agent, minU64(amountAMG, agent.MintedAMG))
		if err != nil {
			return err
		}
		if closed == 0 {
			return ErrSelfCloseOfZero
		}
		if err := tx.burn(s.AssetSymbol, agent.Owner, s.uba(closed)); err != nil {
			return err
		}
		if err := tx.reduceMinted(agent, closed); err != nil {
			return err
		}
		closedUBA = s.amgToUBA(closed)
		tx.emit(newSelfCloseEvent(agent.ID, closedUBA))
		return tx.backingReduced(agent)
	})
	return closedUBA, err
}

// reduceMinted removes closed backing from the agent and the global total.
func (tx *txn) reduceMinted(agent *Agent, amountAMG uint64) error {
	minted, err := subChecked(agent.MintedAMG, amountAMG, "minted")
	if err != nil {
		return err
	}
	agent.MintedAMG = minted
	tx.changeMinted(-int64(amountAMG))
	return nil
}

// RedeemFromAgent is used by the agent's collateral pool to redeem f-assets
// against this agent only. The request id is odd.
func (e *Engine) RedeemFromAgent(agentID uint64, caller, redeemer [20]byte, amountUBA uint64, paymentAddress string, executor [20]byte, executorFeeWei *big.Int) (*RedemptionRequest, error) {
	var out *RedemptionRequest
	err := e.run("redeem_from_agent", opts{queue: true}, func(tx *txn) error {
		agent, err := tx.agent(agentID)
		if err != nil {
			return err
		}
		if caller != agent.Pool {
			return ErrOnlyCollateralPool
		}
		req, err := tx.redeemFromAgent(agent, redeemer, amountUBA, paymentAddress, executor, executorFeeWei)
		if err != nil {
			return err
		}
		out = req.Clone()
		return nil
	})
	return out, err
}

func (tx *txn) redeemFromAgent(agent *Agent, redeemer [20]byte, amountUBA uint64, paymentAddress string, executor [20]byte, executorFeeWei *big.Int) (*RedemptionRequest, error) {
	if err := checkPaymentAddress(paymentAddress); err != nil {
		return nil, err
	}
	s := tx.settings()
	closed, err := tx.closeTickets(agent, minU64(s.ubaToAMG(amountUBA), agent.MintedAMG))
	if err != nil {
		return nil, err
	}
	if closed == 0 {
		return nil, ErrRedemptionOfZero
	}
	if err := tx.burn(s.AssetSymbol, agent.Pool, s.uba(closed)); err != nil {
		return nil, err
	}
	fee, err := tx.collectExecutorFee(redeemer, executor, executorFeeWei)
	if err != nil {
		return nil, err
	}
	tx.addVolume("redeemed", s.uba(closed))
	return tx.createRedemptionRequest(agent, closed, redeemer, paymentAddress, executor, fee, true)
}

// RedeemFromAgentInCollateral is used by the agent's collateral pool to
// redeem f-assets for vault collateral instead of underlying.
func (e *Engine) RedeemFromAgentInCollateral(agentID uint64, caller, redeemer [20]byte, amountUBA uint64) error {
	return e.run("redeem_from_agent_in_collateral", opts{queue: true}, func(tx *txn) error {
		agent, err := tx.agent(agentID)
		if err != nil {
			return err
		}
		if caller != agent.Pool {
			return ErrOnlyCollateralPool
		}
		_, err = tx.redeemFromAgentInCollateral(agent, redeemer, amountUBA)
		return err
	})
}

func (tx *txn) redeemFromAgentInCollateral(agent *Agent, redeemer [20]byte, amountUBA uint64) (uint64, error) {
	s := tx.settings()
	closed, err := tx.closeTickets(agent, minU64(s.ubaToAMG(amountUBA), agent.MintedAMG))
	if err != nil {
		return 0, err
	}
	if closed == 0 {
		return 0, ErrRedemptionOfZero
	}
	if err := tx.burn(s.AssetSymbol, agent.Pool, s.uba(closed)); err != nil {
		return 0, err
	}
	if err := tx.reduceMinted(agent, closed); err != nil {
		return 0, err
	}
	vaultWei, poolWei, err := tx.payVaultThenPool(agent, redeemer, closed, maxBIPS)
	if err != nil {
		return 0, err
	}
	tx.addVolume("redeemed", s.uba(closed))
	tx.emit(newRedeemedInCollateralEvent(agent.ID, redeemer, s.amgToUBA(closed), vaultWei, poolWei))
	return closed, tx.backingReduced(agent)
}

// Redemption returns a redemption request by id.
func (e *Engine) Redemption(id uint64) (*RedemptionRequest, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	req, ok, err := e.state.Redemption(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidRequestID
	}
	return req, nil
}
