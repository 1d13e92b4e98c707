package assetmanager

import (
	"math/big"

	"fassetbridge/native/attestation"
	"fassetbridge/native/conversion"
)

// payFromPool pays natWei of pool collateral to receiver and burns the
// agent's own pool tokens in proportion, so the payout is charged to the
// agent rather than to other pool members.
func (tx *txn) payFromPool(agent *Agent, receiver [20]byte, natWei *big.Int) error {
	if natWei.Sign() == 0 {
		return nil
	}
	token := tx.settings().PoolCollateral.Token
	poolBalance, err := tx.balance(token, agent.Pool)
	if err != nil {
		return err
	}
	if poolBalance.Sign() == 0 {
		return nil
	}
	if agent.PoolTokenSupply.Sign() > 0 {
		poolToken := PoolTokenSymbol(agent.ID)
		burned := new(big.Int).Mul(natWei, agent.PoolTokenSupply)
		burned.Quo(burned, poolBalance)
		agentTokens, err := tx.balance(poolToken, agent.Vault)
		if err != nil {
			return err
		}
		burned = minBig(burned, agentTokens)
		if err := tx.burn(poolToken, agent.Vault, burned); err != nil {
			return err
		}
		agent.PoolTokenSupply.Sub(agent.PoolTokenSupply, burned)
	}
	return tx.transfer(token, agent.Pool, receiver, natWei)
}

// payVaultThenPool compensates receiver for amountAMG at factorBIPS of its
// value. Vault collateral pays first; the uncovered part is paid from the
// pool at the NAT price.
func (tx *txn) payVaultThenPool(agent *Agent, receiver [20]byte, amountAMG uint64, factorBIPS uint64) (*big.Int, *big.Int, error) {
	s := tx.settings()
	vaultPrice, err := tx.price(vaultClass)
	if err != nil {
		return nil, nil, err
	}
	vaultBalance, err := tx.collateralBalance(agent, vaultClass)
	if err != nil {
		return nil, nil, err
	}
	needed := mulBIPS(conversion.AMGToTokenWei(amountAMG, vaultPrice.ftso), factorBIPS)
	vaultWei := minBig(needed, vaultBalance)
	if err := tx.transfer(s.VaultCollateral.Token, agent.Vault, receiver, vaultWei); err != nil {
		return nil, nil, err
	}
	poolWei := big.NewInt(0)
	if vaultWei.Cmp(needed) < 0 {
		uncoveredAMG := new(big.Int).Mul(bigU64(amountAMG), new(big.Int).Sub(needed, vaultWei))
		uncoveredAMG.Quo(uncoveredAMG, needed)
		natPrice, err := tx.price(poolClass)
		if err != nil {
			return nil, nil, err
		}
		poolBalance, err := tx.collateralBalance(agent, poolClass)
		if err != nil {
			return nil, nil, err
		}
		poolWei = minBig(mulBIPS(conversion.AMGToTokenWeiBig(uncoveredAMG, natPrice.ftso), factorBIPS), poolBalance)
		if err := tx.payFromPool(agent, receiver, poolWei); err != nil {
			return nil, nil, err
		}
	}
	return vaultWei, poolWei, nil
}

func (tx *txn) executeDefaultPayment(agent *Agent, req *RedemptionRequest) (*big.Int, *big.Int, error) {
	return tx.payVaultThenPool(agent, req.Redeemer, req.ValueAMG, tx.settings().RedemptionDefaultFactorBIPS)
}

// RedemptionPaymentDefault pays the redeemer in collateral after the agent
// is proven not to have paid in time.
func (e *Engine) RedemptionPaymentDefault(proof attestation.Proof, requestID uint64, caller [20]byte) error {
	return e.run("redemption_payment_default", opts{}, func(tx *txn) error {
		nonPayment, err := tx.verifyNonPayment(proof)
		if err != nil {
			return err
		}
		req, agent, err := tx.redemption(requestID)
		if err != nil {
			return err
		}
		isExecutor := req.Executor != ([20]byte{}) && caller == req.Executor
		if caller != req.Redeemer && caller != agent.Owner && !isExecutor {
			return ErrOnlyRedeemerExecutorOrAgent
		}
		if req.Status != RedemptionActive {
			return ErrInvalidRedemptionStatus
		}
		if nonPayment.CheckSourceAddresses {
			return ErrSourceAddressesNotSupported
		}
		if nonPayment.StandardPaymentReference != req.PaymentReference ||
			nonPayment.DestinationAddressHash != attestation.AddressHash(req.PaymentAddress) ||
			nonPayment.Amount.Cmp(bigU64(req.UnderlyingValueUBA-req.UnderlyingFeeUBA)) != 0 {
			return ErrRedemptionNonPaymentMismatch
		}
		if nonPaymentTooEarly(nonPayment, req.LastUnderlyingBlock, req.LastUnderlyingTimestamp) {
			return ErrRedemptionDefaultTooEarly
		}
		if nonPayment.MinimalBlockNumber > req.FirstUnderlyingBlock {
			return ErrRedemptionNonPaymentProofWindowTooShort
		}
		if err := tx.releaseRedeeming(agent, req); err != nil {
			return err
		}
		vaultWei, poolWei, err := tx.executeDefaultPayment(agent, req)
		if err != nil {
			return err
		}
		var payee *[20]byte
		if caller == req.Redeemer || isExecutor {
			payee = &caller
		}
		if err := tx.settleExecutorFee(req.ExecutorFeeWei, payee); err != nil {
			return err
		}
		req.ExecutorFeeWei = big.NewInt(0)
		req.Status = RedemptionDefaultedUnconfirmed
		tx.emit(newRedemptionDefaultEvent(req, vaultWei, poolWei))
		tx.e.logTransition("redemption defaulted", agent.ID, "requestId", req.ID)
		return nil
	})
}
