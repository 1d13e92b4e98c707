package assetmanager

import (
	"math/big"

	"fassetbridge/native/conversion"
)

// PoolExit reports what a holder received when leaving a collateral pool.
type PoolExit struct {
	NATWei    *big.Int
	FeesUBA   *big.Int
	ClosedUBA *big.Int
}

// poolTokenHolder maps the owner to the vault, which holds the agent's own
// pool tokens.
func poolTokenHolder(agent *Agent, holder [20]byte) [20]byte {
	if holder == agent.Owner {
		return agent.Vault
	}
	return holder
}

// poolShare returns amount * tokens / supply.
func poolShare(amount, tokens, supply *big.Int) *big.Int {
	if supply.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, tokens)
	return out.Quo(out, supply)
}

// EnterPool deposits NAT into the agent's collateral pool and mints pool
// tokens pro rata. The first deposit mints one token per wei.
func (e *Engine) EnterPool(agentID uint64, holder [20]byte, natWei *big.Int) (*big.Int, error) {
	var minted *big.Int
	err := e.run("enter_pool", opts{}, func(tx *txn) error {
		agent, err := tx.agent(agentID)
		if err != nil {
			return err
		}
		if agent.Status == AgentStatusDestroying {
			return ErrInvalidAgentStatus
		}
		if natWei == nil || natWei.Sign() <= 0 {
			return ErrZeroAmount
		}
		token := tx.settings().PoolCollateral.Token
		poolBalance, err := tx.balance(token, agent.Pool)
		if err != nil {
			return err
		}
		tokens := new(big.Int).Set(natWei)
		if agent.PoolTokenSupply.Sign() > 0 && poolBalance.Sign() > 0 {
			tokens = poolShare(natWei, agent.PoolTokenSupply, poolBalance)
		}
		if tokens.Sign() == 0 {
			return ErrPoolDepositTooSmall
		}
		if err := tx.transfer(token, holder, agent.Pool, natWei); err != nil {
			return err
		}
		tx.mint(PoolTokenSymbol(agent.ID), poolTokenHolder(agent, holder), tokens)
		agent.PoolTokenSupply.Add(agent.PoolTokenSupply, tokens)
		tx.emit(newPoolEnteredEvent(agent.ID, holder, natWei, tokens))
		if _, err := tx.endLiquidationIfHealthy(agent); err != nil {
			return err
		}
		minted = tokens
		return nil
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

// ExitPool burns pool tokens and pays out the holder's share of pool NAT
// and collected f-asset fees.
func (e *Engine) ExitPool(agentID uint64, holder [20]byte, tokens *big.Int) (*PoolExit, error) {
	var out *PoolExit
	err := e.run("exit_pool", opts{}, func(tx *txn) error {
		agent, err := tx.agent(agentID)
		if err != nil {
			return err
		}
		exit, err := tx.exitPool(agent, holder, tokens, nil, nil)
		if err != nil {
			return err
		}
		out = exit
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SelfCloseExitPool exits the pool and first redeems enough f-assets against
// the agent to keep the pool at its exit ratio. The f-assets come from the
// holder's fee share and then from the holder's balance.
func (e *Engine) SelfCloseExitPool(agentID uint64, holder [20]byte, tokens *big.Int, redeemInCollateral bool, paymentAddress string) (*PoolExit, error) {
	var out *PoolExit
	err := e.run("self_close_exit_pool", opts{queue: true}, func(tx *txn) error {
		agent, err := tx.agent(agentID)
		if err != nil {
			return err
		}
		if err := tx.requirePoolTokens(agent, holder, tokens); err != nil {
			return err
		}
		s := tx.settings()
		poolBalance, err := tx.collateralBalance(agent, poolClass)
		if err != nil {
			return err
		}
		natAfter := new(big.Int).Sub(poolBalance, poolShare(poolBalance, tokens, agent.PoolTokenSupply))
		closeAMG, err := tx.poolExitCloseAMG(agent, natAfter)
		if err != nil {
			return err
		}
		closedUBA := big.NewInt(0)
		var holderFees *big.Int
		if closeAMG > 0 {
			closeUBA := s.uba(closeAMG)
			fees, err := tx.balance(s.AssetSymbol, agent.Pool)
			if err != nil {
				return err
			}
			feeShare := poolShare(fees, tokens, agent.PoolTokenSupply)
			extra := new(big.Int).Sub(closeUBA, feeShare)
			if extra.Sign() < 0 {
				extra.SetInt64(0)
			}
			if err := tx.transfer(s.AssetSymbol, holder, agent.Pool, extra); err != nil {
				return err
			}
			var closed uint64
			if redeemInCollateral {
				if closed, err = tx.redeemFromAgentInCollateral(agent, holder, closeUBA.Uint64()); err != nil {
					return err
				}
			} else {
				req, err := tx.redeemFromAgent(agent, holder, closeUBA.Uint64(), paymentAddress, [20]byte{}, nil)
				if err != nil {
					return err
				}
				closed = req.ValueAMG
			}
			closedUBA = s.uba(closed)
			holderFees = new(big.Int).Add(feeShare, extra)
			holderFees.Sub(holderFees, closedUBA)
		}
		exit, err := tx.exitPool(agent, holder, tokens, closedUBA, holderFees)
		if err != nil {
			return err
		}
		out = exit
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (tx *txn) requirePoolTokens(agent *Agent, holder [20]byte, tokens *big.Int) error {
	if tokens == nil || tokens.Sign() <= 0 {
		return ErrZeroAmount
	}
	have, err := tx.balance(PoolTokenSymbol(agent.ID), poolTokenHolder(agent, holder))
	if err != nil {
		return err
	}
	if have.Cmp(tokens) < 0 {
		return ErrPoolTokensTooLow
	}
	return nil
}

// poolExitCloseAMG is the minted backing that must be closed so that the pool
// keeps its exit ratio with natAfter collateral.
func (tx *txn) poolExitCloseAMG(agent *Agent, natAfter *big.Int) (uint64, error) {
	backing := backingFor(agent, poolClass)
	if backing == 0 {
		return 0, nil
	}
	exitCR := tx.settings().PoolExitCollateralRatioBIPS
	if exitCR == 0 {
		return 0, nil
	}
	price, err := tx.price(poolClass)
	if err != nil {
		return 0, err
	}
	maxBackingWei := new(big.Int).Mul(natAfter, conversion.MaxBIPS)
	maxBackingWei.Quo(maxBackingWei, bigU64(exitCR))
	maxBacking, err := conversion.TokenWeiToAMG(maxBackingWei, price.ftso)
	if err != nil {
		return 0, err
	}
	if maxBacking.Cmp(bigU64(backing)) >= 0 {
		return 0, nil
	}
	return minU64(backing-maxBacking.Uint64(), agent.MintedAMG), nil
}

// exitPool burns the holder's tokens and pays out the NAT and fee share. The
// remaining pool must stay at the exit ratio. A nil feesUBA pays the pro-rata
// fee share.
func (tx *txn) exitPool(agent *Agent, holder [20]byte, tokens, closedUBA, feesUBA *big.Int) (*PoolExit, error) {
	if err := tx.requirePoolTokens(agent, holder, tokens); err != nil {
		return nil, err
	}
	s := tx.settings()
	poolBalance, err := tx.collateralBalance(agent, poolClass)
	if err != nil {
		return nil, err
	}
	fees, err := tx.balance(s.AssetSymbol, agent.Pool)
	if err != nil {
		return nil, err
	}
	natWei := poolShare(poolBalance, tokens, agent.PoolTokenSupply)
	if feesUBA == nil {
		feesUBA = poolShare(fees, tokens, agent.PoolTokenSupply)
	}
	if backingFor(agent, poolClass) > 0 {
		ratio, err := tx.collateralRatioWith(agent, poolClass, new(big.Int).Sub(poolBalance, natWei))
		if err != nil {
			return nil, err
		}
		if ratio < s.PoolExitCollateralRatioBIPS {
			return nil, ErrPoolCRTooLowForExit
		}
	}
	if err := tx.burn(PoolTokenSymbol(agent.ID), poolTokenHolder(agent, holder), tokens); err != nil {
		return nil, err
	}
	agent.PoolTokenSupply.Sub(agent.PoolTokenSupply, tokens)
	if err := tx.transfer(s.PoolCollateral.Token, agent.Pool, holder, natWei); err != nil {
		return nil, err
	}
	if err := tx.transfer(s.AssetSymbol, agent.Pool, holder, feesUBA); err != nil {
		return nil, err
	}
	if closedUBA == nil {
		closedUBA = big.NewInt(0)
	}
	tx.emit(newPoolExitedEvent(agent.ID, holder, tokens, natWei, feesUBA, closedUBA))
	return &PoolExit{NATWei: natWei, FeesUBA: feesUBA, ClosedUBA: closedUBA}, nil
}
