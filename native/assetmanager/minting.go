package assetmanager

import (
	"math/big"

	"fassetbridge/native/attestation"
	"fassetbridge/native/conversion"
)

// poolFeeUBA is the part of an agent fee minted to the collateral pool,
// rounded down to whole AMG.
func (s Settings) poolFeeUBA(feeUBA, shareBIPS uint64) uint64 {
	return conversion.RoundUBAToAMG(conversion.MulBIPS64(feeUBA, shareBIPS), s.AssetMintingGranularityUBA)
}

func (s Settings) reservationPoolFeeAMG(crt *CollateralReservation) uint64 {
	return s.ubaToAMG(s.poolFeeUBA(crt.UnderlyingFeeUBA, crt.PoolFeeShareBIPS))
}

// reservationFeeWei is the NAT fee a minter pays for reserving valueAMG.
func (tx *txn) reservationFeeWei(valueAMG uint64) (*big.Int, error) {
	nat, err := tx.price(poolClass)
	if err != nil {
		return nil, err
	}
	return mulBIPS(conversion.AMGToTokenWei(valueAMG, nat.ftso), tx.settings().CollateralReservationFeeBIPS), nil
}

// ReserveCollateral locks collateral of a publicly available agent for lots
// of minting. feePaidWei covers the reservation fee; any excess is the
// executor fee.
func (e *Engine) ReserveCollateral(minter [20]byte, agentID uint64, lots uint64, maxFeeBIPS uint64, executor [20]byte, feePaidWei *big.Int) (*CollateralReservation, error) {
	var reserved *CollateralReservation
	err := e.run("reserve_collateral", opts{paused: true}, func(tx *txn) error {
		if lots == 0 {
			return ErrCannotMintZeroLots
		}
		agent, err := tx.agent(agentID)
		if err != nil {
			return err
		}
		if agent.Status != AgentStatusNormal {
			return ErrInvalidAgentStatus
		}
		if !agent.PubliclyAvailable {
			return ErrAgentNotAvailable
		}
		if agent.FeeBIPS > maxFeeBIPS {
			return ErrAgentsFeeTooHigh
		}
		free, err := tx.freeCollateralLots(agent)
		if err != nil {
			return err
		}
		if lots > free {
			return ErrNotEnoughFreeCollateral
		}
		s := tx.settings()
		valueAMG := lots * tx.lotSize()
		valueUBA := s.amgToUBA(valueAMG)
		feeUBA := conversion.MulBIPS64(valueUBA, agent.FeeBIPS)
		poolFeeAMG := s.ubaToAMG(s.poolFeeUBA(feeUBA, agent.PoolFeeShareBIPS))
		if err := tx.checkMintingCap(valueAMG + poolFeeAMG); err != nil {
			return err
		}
		reservationFee, err := tx.reservationFeeWei(valueAMG)
		if err != nil {
			return err
		}
		if feePaidWei == nil || feePaidWei.Cmp(reservationFee) < 0 {
			return ErrInappropriateFeeAmount
		}
		executorFee := new(big.Int).Sub(feePaidWei, reservationFee)
		if executorFee.Sign() > 0 && executor == ([20]byte{}) {
			return ErrExecutorFeeWithoutExecutor
		}
		if err := tx.transfer(s.PoolCollateral.Token, minter, ModuleAddress, feePaidWei); err != nil {
			return err
		}
		id, err := tx.e.allocateID(nextReservationID)
		if err != nil {
			return err
		}
		first, last, lastTs := tx.paymentWindow()
		crt := &CollateralReservation{
			ID:                      id,
			AgentID:                 agent.ID,
			Minter:                  minter,
			PaymentAddress:          agent.UnderlyingAddress,
			ValueAMG:                valueAMG,
			UnderlyingValueUBA:      valueUBA,
			UnderlyingFeeUBA:        feeUBA,
			PoolFeeShareBIPS:        agent.PoolFeeShareBIPS,
			PaymentReference:        attestation.MintingReference(id),
			FirstUnderlyingBlock:    first,
			LastUnderlyingBlock:     last,
			LastUnderlyingTimestamp: lastTs,
			ReservationFeeWei:       reservationFee,
			Executor:                executor,
			ExecutorFeeWei:          executorFee,
			Status:                  ReservationActive,
			Timestamp:               tx.now,
		}
		agent.ReservedAMG += valueAMG + poolFeeAMG
		tx.changeReserved(int64(valueAMG + poolFeeAMG))
		tx.putReservation(crt)
		tx.emit(newCollateralReservedEvent(s, crt))
		reserved = crt.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reserved, nil
}

// releaseReservation returns the reserved value of a finished reservation.
func (tx *txn) releaseReservation(agent *Agent, crt *CollateralReservation) error {
	total := crt.ValueAMG + tx.settings().reservationPoolFeeAMG(crt)
	reserved, err := subChecked(agent.ReservedAMG, total, "reserved")
	if err != nil {
		return err
	}
	agent.ReservedAMG = reserved
	tx.changeReserved(-int64(total))
	return nil
}

// distributeReservationFee pays the held reservation fee to the pool and the
// agent owner according to the pool fee share.
func (tx *txn) distributeReservationFee(agent *Agent, crt *CollateralReservation) error {
	token := tx.settings().PoolCollateral.Token
	poolShare := mulBIPS(crt.ReservationFeeWei, crt.PoolFeeShareBIPS)
	if err := tx.transfer(token, ModuleAddress, agent.Pool, poolShare); err != nil {
		return err
	}
	return tx.transfer(token, ModuleAddress, agent.Owner, new(big.Int).Sub(crt.ReservationFeeWei, poolShare))
}

// settleExecutorFee pays the held executor fee to payee, or burns it when
// payee is nil.
func (tx *txn) settleExecutorFee(fee *big.Int, payee *[20]byte) error {
	token := tx.settings().PoolCollateral.Token
	if payee == nil {
		return tx.burn(token, ModuleAddress, fee)
	}
	return tx.transfer(token, ModuleAddress, *payee, fee)
}

// ExecuteMinting mints the f-assets of a reservation once the underlying
// payment to the agent is proven.
func (e *Engine) ExecuteMinting(proof attestation.Proof, crtID uint64, caller [20]byte) error {
	return e.run("execute_minting", opts{queue: true}, func(tx *txn) error {
		payment, err := tx.verifyPayment(proof)
		if err != nil {
			return err
		}
		crt, agent, err := tx.reservation(crtID)
		if err != nil {
			return err
		}
		if crt.Status != ReservationActive {
			return ErrInvalidCrtID
		}
		isExecutor := crt.Executor != ([20]byte{}) && caller == crt.Executor
		if caller != crt.Minter && caller != agent.Owner && !isExecutor {
			return ErrOnlyMinterExecutorOrAgent
		}
		if payment.StandardPaymentReference != crt.PaymentReference {
			return ErrInvalidMintingReference
		}
		if payment.Status != attestation.PaymentSuccess {
			return ErrMintingPaymentFailed
		}
		if payment.ReceivingAddressHash != agent.UnderlyingAddressHash {
			return ErrNotMintingAgentsAddress
		}
		if payment.ReceivedAmount.Cmp(bigU64(crt.UnderlyingValueUBA+crt.UnderlyingFeeUBA)) < 0 {
			return ErrMintingPaymentTooSmall
		}
		if payment.BlockNumber < crt.FirstUnderlyingBlock {
			return ErrMintingPaymentTooOld
		}
		if err := tx.confirmPayment(payment.TransactionID); err != nil {
			return err
		}

		s := tx.settings()
		poolFeeUBA := s.poolFeeUBA(crt.UnderlyingFeeUBA, crt.PoolFeeShareBIPS)
		poolFeeAMG := s.ubaToAMG(poolFeeUBA)
		if err := tx.releaseReservation(agent, crt); err != nil {
			return err
		}
		mintedAMG := crt.ValueAMG + poolFeeAMG
		agent.MintedAMG += mintedAMG
		tx.changeMinted(int64(mintedAMG))
		agent.UnderlyingBalanceUBA.Add(agent.UnderlyingBalanceUBA, payment.ReceivedAmount)
		tx.mint(s.AssetSymbol, crt.Minter, bigU64(crt.UnderlyingValueUBA))
		tx.mint(s.AssetSymbol, agent.Pool, bigU64(poolFeeUBA))
		if err := tx.createNewMinting(agent, mintedAMG); err != nil {
			return err
		}
		if err := tx.distributeReservationFee(agent, crt); err != nil {
			return err
		}
		var payee *[20]byte
		if isExecutor {
			payee = &crt.Executor
		}
		if err := tx.settleExecutorFee(crt.ExecutorFeeWei, payee); err != nil {
			return err
		}
		crt.Status = ReservationSuccessful
		tx.addVolume("minted", s.uba(mintedAMG))
		tx.emit(newMintingExecutedEvent(s, crt, poolFeeUBA))
		return nil
	})
}

// MintingPaymentDefault releases a reservation whose payment was proven
// missing. The agent keeps the reservation fee.
func (e *Engine) MintingPaymentDefault(proof attestation.Proof, crtID uint64, caller [20]byte) error {
	return e.run("minting_payment_default", opts{}, func(tx *txn) error {
		nonPayment, err := tx.verifyNonPayment(proof)
		if err != nil {
			return err
		}
		crt, agent, err := tx.reservation(crtID)
		if err != nil {
			return err
		}
		if agent.Owner != caller {
			return ErrOnlyAgentVaultOwner
		}
		if crt.Status != ReservationActive {
			return ErrInvalidCrtID
		}
		if nonPayment.CheckSourceAddresses {
			return ErrSourceAddressesNotSupported
		}
		if nonPayment.StandardPaymentReference != crt.PaymentReference ||
			nonPayment.DestinationAddressHash != agent.UnderlyingAddressHash ||
			nonPayment.Amount.Cmp(bigU64(crt.UnderlyingValueUBA+crt.UnderlyingFeeUBA)) != 0 {
			return ErrMintingNonPaymentMismatch
		}
		if nonPaymentTooEarly(nonPayment, crt.LastUnderlyingBlock, crt.LastUnderlyingTimestamp) {
			return ErrMintingDefaultTooEarly
		}
		if nonPayment.MinimalBlockNumber > crt.FirstUnderlyingBlock {
			return ErrMintingNonPaymentProofWindowTooShort
		}
		if err := tx.distributeReservationFee(agent, crt); err != nil {
			return err
		}
		if err := tx.settleExecutorFee(crt.ExecutorFeeWei, nil); err != nil {
			return err
		}
		if err := tx.releaseReservation(agent, crt); err != nil {
			return err
		}
		crt.Status = ReservationDefaulted
		tx.emit(newMintingPaymentDefaultEvent(tx.settings(), crt))
		return nil
	})
}

// UnstickMinting closes a reservation that can no longer be proven either
// way. The owner buys the reserved vault collateral back with NAT.
func (e *Engine) UnstickMinting(proof attestation.Proof, crtID uint64, caller [20]byte, natPaidWei *big.Int) error {
	return e.run("unstick_minting", opts{}, func(tx *txn) error {
		height, err := tx.verifyBlockHeight(proof)
		if err != nil {
			return err
		}
		crt, agent, err := tx.reservation(crtID)
		if err != nil {
			return err
		}
		if agent.Owner != caller {
			return ErrOnlyAgentVaultOwner
		}
		if crt.Status != ReservationActive {
			return ErrInvalidCrtID
		}
		if height.LowestQueryWindowBlockNumber <= crt.LastUnderlyingBlock ||
			height.LowestQueryWindowBlockTimestamp <= crt.LastUnderlyingTimestamp {
			return ErrCannotUnstickMintingYet
		}
		s := tx.settings()
		nat, err := tx.price(poolClass)
		if err != nil {
			return err
		}
		vault, err := tx.price(vaultClass)
		if err != nil {
			return err
		}
		burnNAT := mulBIPS(conversion.AMGToTokenWei(crt.ValueAMG, nat.ftso), s.VaultCollateralBuyForFlareFactorBIPS)
		if natPaidWei == nil || natPaidWei.Cmp(burnNAT) < 0 {
			return ErrInappropriateFeeAmount
		}
		if err := tx.burn(s.PoolCollateral.Token, agent.Owner, burnNAT); err != nil {
			return err
		}
		vaultBalance, err := tx.collateralBalance(agent, vaultClass)
		if err != nil {
			return err
		}
		payout := minBig(conversion.AMGToTokenWei(crt.ValueAMG, vault.ftso), vaultBalance)
		if err := tx.transfer(s.VaultCollateral.Token, agent.Vault, agent.Owner, payout); err != nil {
			return err
		}
		if err := tx.burn(s.PoolCollateral.Token, ModuleAddress, crt.ReservationFeeWei); err != nil {
			return err
		}
		if err := tx.settleExecutorFee(crt.ExecutorFeeWei, nil); err != nil {
			return err
		}
		if err := tx.releaseReservation(agent, crt); err != nil {
			return err
		}
		crt.Status = ReservationExpired
		tx.emit(newCollateralReservationDeletedEvent(s, crt))
		return nil
	})
}

// SelfMint lets the owner mint against its own underlying deposit without a
// reservation. Zero lots only tops up the underlying balance.
func (e *Engine) SelfMint(proof attestation.Proof, agentID uint64, lots uint64, caller [20]byte) error {
	return e.run("self_mint", opts{queue: true, paused: true}, func(tx *txn) error {
		payment, err := tx.verifyPayment(proof)
		if err != nil {
			return err
		}
		agent, err := tx.ownedAgent(agentID, caller)
		if err != nil {
			return err
		}
		if payment.StandardPaymentReference != attestation.SelfMintReference(agent.ID) {
			return ErrSelfMintInvalidReference
		}
		if payment.Status != attestation.PaymentSuccess {
			return ErrMintingPaymentFailed
		}
		if payment.ReceivingAddressHash != agent.UnderlyingAddressHash {
			return ErrNotMintingAgentsAddress
		}
		if payment.BlockNumber < agent.CreationBlock {
			return ErrSelfMintPaymentTooOld
		}
		if err := tx.confirmPayment(payment.TransactionID); err != nil {
			return err
		}
		s := tx.settings()
		valueAMG := lots * tx.lotSize()
		valueUBA := s.amgToUBA(valueAMG)
		poolFeeUBA := s.poolFeeUBA(conversion.MulBIPS64(valueUBA, agent.FeeBIPS), agent.PoolFeeShareBIPS)
		if payment.ReceivedAmount.Cmp(bigU64(valueUBA+poolFeeUBA)) < 0 {
			return ErrSelfMintPaymentTooSmall
		}
		agent.UnderlyingBalanceUBA.Add(agent.UnderlyingBalanceUBA, payment.ReceivedAmount)
		if lots == 0 {
			tx.emit(newSelfMintEvent(agent.ID, 0, clampUint64(payment.ReceivedAmount), 0))
			return nil
		}
		if agent.Status != AgentStatusNormal {
			return ErrSelfMintInvalidAgentStatus
		}
		free, err := tx.freeCollateralLots(agent)
		if err != nil {
			return err
		}
		if lots > free {
			return ErrNotEnoughFreeCollateral
		}
		mintedAMG := valueAMG + s.ubaToAMG(poolFeeUBA)
		if err := tx.checkMintingCap(mintedAMG); err != nil {
			return err
		}
		agent.MintedAMG += mintedAMG
		tx.changeMinted(int64(mintedAMG))
		tx.mint(s.AssetSymbol, agent.Owner, bigU64(valueUBA))
		tx.mint(s.AssetSymbol, agent.Pool, bigU64(poolFeeUBA))
		if err := tx.createNewMinting(agent, mintedAMG); err != nil {
			return err
		}
		tx.addVolume("minted", s.uba(mintedAMG))
		tx.emit(newSelfMintEvent(agent.ID, valueUBA, clampUint64(payment.ReceivedAmount), poolFeeUBA))
		return nil
	})
}

// Reservation returns a collateral reservation by id.
func (e *Engine) Reservation(id uint64) (*CollateralReservation, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	crt, ok, err := e.state.Reservation(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCrtID
	}
	return crt, nil
}
