package assetmanager

import (
	"math/big"

	"fassetbridge/native/conversion"
)

// LiquidationResult reports what one Liquidate call closed and paid.
type LiquidationResult struct {
	LiquidatedUBA uint64
	VaultPaidWei  *big.Int
	PoolPaidWei   *big.Int
}

// liquidationFactors returns the vault and pool payout factors for the
// current auction step. The vault part never exceeds the vault ratio; the
// pool covers the rest of the total factor.
func (tx *txn) liquidationFactors(agent *Agent) (uint64, uint64, error) {
	s := tx.settings()
	var elapsed uint64
	if tx.now > agent.LiquidationStartedAt {
		elapsed = tx.now - agent.LiquidationStartedAt
	}
	step := minU64(uint64(len(s.LiquidationCollateralFactorBIPS)-1), elapsed/s.LiquidationStepSeconds)
	vaultCR, err := tx.collateralRatio(agent, vaultClass)
	if err != nil {
		return 0, 0, err
	}
	vaultFactor := minU64(s.LiquidationFactorVaultCollateralBIPS[step], vaultCR)
	return vaultFactor, s.LiquidationCollateralFactorBIPS[step] - vaultFactor, nil
}

// maxLiquidationAMG is how much a liquidator may close now: everything in
// full liquidation, otherwise the amount that lifts the worse class back to
// its safety ratio.
func (tx *txn) maxLiquidationAMG(agent *Agent, vaultFactor, poolFactor uint64) (uint64, error) {
	if agent.Status == AgentStatusFullLiquidation {
		return agent.MintedAMG, nil
	}
	var needed uint64
	for _, class := range collateralClasses {
		factor := vaultFactor
		if class == poolClass {
			factor = poolFactor
		}
		amg, err := tx.liquidationToSafety(agent, class, factor)
		if err != nil {
			return 0, err
		}
		needed = maxU64(needed, amg)
	}
	lot := tx.lotSize()
	if rem := needed % lot; rem != 0 {
		needed += lot - rem
	}
	return minU64(needed, agent.MintedAMG), nil
}

// liquidationToSafety solves (C - wei(x)*f) / wei(B - x) >= s for x.
func (tx *txn) liquidationToSafety(agent *Agent, class collateralClass, factor uint64) (uint64, error) {
	safety := tx.collateralType(class).SafetyMinCollateralRatioBIPS
	if safety <= factor {
		return agent.MintedAMG, nil
	}
	collateral, err := tx.collateralBalance(agent, class)
	if err != nil {
		return 0, err
	}
	price, err := tx.price(class)
	if err != nil {
		return 0, err
	}
	backingWei := conversion.AMGToTokenWei(backingFor(agent, class), price.ftso)
	numerator := new(big.Int).Mul(backingWei, bigU64(safety))
	numerator.Sub(numerator, new(big.Int).Mul(collateral, conversion.MaxBIPS))
	if numerator.Sign() <= 0 {
		return 0, nil
	}
	if price.ftso.Sign() == 0 {
		return agent.MintedAMG, nil
	}
	numerator.Mul(numerator, conversion.AMGTokenWeiPriceScale)
	denominator := new(big.Int).Mul(price.ftso, bigU64(safety-factor))
	return clampUint64(ceilDiv(numerator, denominator)), nil
}

// backingReduced re-evaluates the agent status after minted backing was
// closed.
func (tx *txn) backingReduced(agent *Agent) error {
	switch agent.Status {
	case AgentStatusLiquidation:
		if agent.MintedAMG == 0 && agent.RedeemingAMG == 0 {
			agent.Status = AgentStatusNormal
			agent.LiquidationStartedAt = 0
			tx.emit(newLiquidationEndedEvent(agent.ID))
			tx.e.logTransition("agent liquidation ended", agent.ID)
			return nil
		}
		_, err := tx.endLiquidationIfHealthy(agent)
		return err
	case AgentStatusFullLiquidation:
		if agent.MintedAMG == 0 {
			tx.emit(newLiquidationEndedEvent(agent.ID))
		}
	}
	return nil
}

// Liquidate burns the liquidator's f-assets against a liquidating agent and
// pays the liquidator from vault and pool collateral at the current factors.
func (e *Engine) Liquidate(agentID uint64, liquidator [20]byte, amountUBA uint64) (*LiquidationResult, error) {
	result := &LiquidationResult{VaultPaidWei: big.NewInt(0), PoolPaidWei: big.NewInt(0)}
	err := e.run("liquidate", opts{queue: true}, func(tx *txn) error {
		agent, err := tx.agent(agentID)
		if err != nil {
			return err
		}
		liquidating, err := tx.startLiquidation(agent)
		if err != nil {
			return err
		}
		if !liquidating {
			return ErrNotInLiquidation
		}
		if agent.Status == AgentStatusFullLiquidation && agent.MintedAMG == 0 {
			return ErrLiquidationNotPossible
		}
		vaultFactor, poolFactor, err := tx.liquidationFactors(agent)
		if err != nil {
			return err
		}
		maxAMG, err := tx.maxLiquidationAMG(agent, vaultFactor, poolFactor)
		if err != nil {
			return err
		}
		s := tx.settings()
		target := minU64(s.ubaToAMG(amountUBA), maxAMG)
		if target == 0 {
			_, err := tx.endLiquidationIfHealthy(agent)
			return err
		}
		liquidated, err := tx.closeTickets(agent, target)
		if err != nil {
			return err
		}
		if liquidated == 0 {
			return nil
		}
		if err := tx.burn(s.AssetSymbol, liquidator, s.uba(liquidated)); err != nil {
			return err
		}
		if err := tx.reduceMinted(agent, liquidated); err != nil {
			return err
		}
		vaultWei, poolWei, err := tx.payLiquidator(agent, liquidator, liquidated, vaultFactor, poolFactor)
		if err != nil {
			return err
		}
		result.LiquidatedUBA = s.amgToUBA(liquidated)
		result.VaultPaidWei = vaultWei
		result.PoolPaidWei = poolWei
		tx.addVolume("liquidated", s.uba(liquidated))
		tx.e.metrics.ObserveLiquidationFactor(vaultFactor + poolFactor)
		tx.emit(newLiquidationPerformedEvent(agent.ID, liquidator, result.LiquidatedUBA, vaultWei, poolWei))
		return tx.backingReduced(agent)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (tx *txn) payLiquidator(agent *Agent, liquidator [20]byte, amountAMG, vaultFactor, poolFactor uint64) (*big.Int, *big.Int, error) {
	s := tx.settings()
	vaultPrice, err := tx.price(vaultClass)
	if err != nil {
		return nil, nil, err
	}
	natPrice, err := tx.price(poolClass)
	if err != nil {
		return nil, nil, err
	}
	vaultBalance, err := tx.collateralBalance(agent, vaultClass)
	if err != nil {
		return nil, nil, err
	}
	poolBalance, err := tx.collateralBalance(agent, poolClass)
	if err != nil {
		return nil, nil, err
	}
	// The factor applies to the AMG amount before conversion.
	vaultWei := minBig(conversion.AMGToTokenWeiBig(mulBIPS(bigU64(amountAMG), vaultFactor), vaultPrice.ftso), vaultBalance)
	poolWei := minBig(conversion.AMGToTokenWeiBig(mulBIPS(bigU64(amountAMG), poolFactor), natPrice.ftso), poolBalance)
	if err := tx.transfer(s.VaultCollateral.Token, agent.Vault, liquidator, vaultWei); err != nil {
		return nil, nil, err
	}
	if err := tx.payFromPool(agent, liquidator, poolWei); err != nil {
		return nil, nil, err
	}
	return vaultWei, poolWei, nil
}

// StartLiquidation puts an agent under its minimum ratio into liquidation.
func (e *Engine) StartLiquidation(agentID uint64) error {
	return e.run("start_liquidation", opts{}, func(tx *txn) error {
		agent, err := tx.agent(agentID)
		if err != nil {
			return err
		}
		liquidating, err := tx.startLiquidation(agent)
		if err != nil {
			return err
		}
		if !liquidating {
			return ErrLiquidationNotStarted
		}
		return nil
	})
}

// EndLiquidation returns a partially liquidated agent to normal once it is
// back at its safety ratios.
func (e *Engine) EndLiquidation(agentID uint64) error {
	return e.run("end_liquidation", opts{}, func(tx *txn) error {
		agent, err := tx.agent(agentID)
		if err != nil {
			return err
		}
		switch agent.Status {
		case AgentStatusFullLiquidation:
			return ErrCannotStopLiquidation
		case AgentStatusLiquidation:
		default:
			return ErrLiquidationNotStarted
		}
		ended, err := tx.endLiquidationIfHealthy(agent)
		if err != nil {
			return err
		}
		if !ended {
			return ErrCannotStopLiquidation
		}
		return nil
	})
}
