package assetmanager

import (
	"math/big"

	"fassetbridge/native/conversion"
)

type collateralClass uint8

const (
	vaultClass collateralClass = iota
	poolClass
)

var collateralClasses = []collateralClass{vaultClass, poolClass}

func (c collateralClass) String() string {
	if c == poolClass {
		return "pool"
	}
	return "vault"
}

// collateralPrice holds the AMG to token wei price of one collateral, at
// FTSO prices and, when published, at trusted prices.
type collateralPrice struct {
	ftso    *big.Int
	trusted *big.Int
}

func (tx *txn) collateralType(class collateralClass) CollateralType {
	if class == poolClass {
		return tx.settings().PoolCollateral
	}
	return tx.settings().VaultCollateral
}

func (tx *txn) price(class collateralClass) (*collateralPrice, error) {
	ct := tx.collateralType(class)
	if cached, ok := tx.prices[ct.Token]; ok {
		return cached, nil
	}
	s := tx.settings()
	asset, err := tx.e.prices.Price(s.AssetPriceSymbol)
	if err != nil {
		return nil, err
	}
	token, err := tx.e.prices.Price(ct.PriceSymbol)
	if err != nil {
		return nil, err
	}
	ftso, err := conversion.AMGToTokenWeiPrice(ct.Decimals, token.Value, token.Decimals, asset.Value, asset.Decimals, s.AssetMintingDecimals)
	if err != nil {
		return nil, err
	}
	out := &collateralPrice{ftso: ftso}
	trustedAsset, okAsset := tx.e.prices.TrustedPrice(s.AssetPriceSymbol)
	trustedToken, okToken := tx.e.prices.TrustedPrice(ct.PriceSymbol)
	if okAsset && okToken {
		trusted, err := conversion.AMGToTokenWeiPrice(ct.Decimals, trustedToken.Value, trustedToken.Decimals, trustedAsset.Value, trustedAsset.Decimals, s.AssetMintingDecimals)
		if err == nil {
			out.trusted = trusted
		}
	}
	tx.prices[ct.Token] = out
	return out, nil
}

func (tx *txn) collateralHolder(agent *Agent, class collateralClass) [20]byte {
	if class == poolClass {
		return agent.Pool
	}
	return agent.Vault
}

func (tx *txn) collateralBalance(agent *Agent, class collateralClass) (*big.Int, error) {
	return tx.balance(tx.collateralType(class).Token, tx.collateralHolder(agent, class))
}

func redeemingFor(agent *Agent, class collateralClass) uint64 {
	if class == poolClass {
		return agent.PoolRedeemingAMG
	}
	return agent.RedeemingAMG
}

func backingFor(agent *Agent, class collateralClass) uint64 {
	return agent.ReservedAMG + agent.MintedAMG + redeemingFor(agent, class)
}

func (tx *txn) mintingRatio(agent *Agent, class collateralClass) uint64 {
	ct := tx.collateralType(class)
	if class == poolClass {
		return maxU64(agent.MintingPoolCollateralRatioBIPS, ct.MinCollateralRatioBIPS)
	}
	return maxU64(agent.MintingVaultCollateralRatioBIPS, ct.MinCollateralRatioBIPS)
}

func ratioAt(collateral *big.Int, backingAMG uint64, price *big.Int) uint64 {
	backingWei := conversion.AMGToTokenWei(backingAMG, price)
	ratio := conversion.RatioBIPS(collateral, backingWei)
	if ratio == nil {
		return infiniteRatio
	}
	return clampUint64(ratio)
}

// collateralRatio returns the agent's ratio for one class in BIPS, the
// larger of the FTSO and trusted price ratios.
func (tx *txn) collateralRatio(agent *Agent, class collateralClass) (uint64, error) {
	return tx.collateralRatioWith(agent, class, nil)
}

// collateralRatioWith computes the ratio with an overridden collateral
// amount.
func (tx *txn) collateralRatioWith(agent *Agent, class collateralClass, collateral *big.Int) (uint64, error) {
	backing := backingFor(agent, class)
	if backing == 0 {
		return infiniteRatio, nil
	}
	if collateral == nil {
		var err error
		if collateral, err = tx.collateralBalance(agent, class); err != nil {
			return 0, err
		}
	}
	price, err := tx.price(class)
	if err != nil {
		return 0, err
	}
	ratio := ratioAt(collateral, backing, price.ftso)
	if price.trusted != nil {
		ratio = maxU64(ratio, ratioAt(collateral, backing, price.trusted))
	}
	return ratio, nil
}

// freeCollateralLots is the number of lots the agent can still reserve,
// limited by the scarcer collateral class.
func (tx *txn) freeCollateralLots(agent *Agent) (uint64, error) {
	lot := tx.lotSize()
	lots := uint64(infiniteRatio)
	for _, class := range collateralClasses {
		ct := tx.collateralType(class)
		collateral, err := tx.collateralBalance(agent, class)
		if err != nil {
			return 0, err
		}
		price, err := tx.price(class)
		if err != nil {
			return 0, err
		}
		mintingCR := tx.mintingRatio(agent, class)
		locked := mulBIPS(conversion.AMGToTokenWei(agent.ReservedAMG+agent.MintedAMG, price.ftso), mintingCR)
		locked.Add(locked, mulBIPS(conversion.AMGToTokenWei(redeemingFor(agent, class), price.ftso), ct.MinCollateralRatioBIPS))
		free := new(big.Int).Sub(collateral, locked)
		if free.Sign() <= 0 {
			return 0, nil
		}
		lotWei := mulBIPS(conversion.AMGToTokenWei(lot, price.ftso), mintingCR)
		if lotWei.Sign() == 0 {
			continue
		}
		lots = minU64(lots, clampUint64(new(big.Int).Quo(free, lotWei)))
	}
	return lots, nil
}

// belowMinimum reports whether any class is under its minimum ratio.
func (tx *txn) belowMinimum(agent *Agent) (bool, error) {
	for _, class := range collateralClasses {
		ratio, err := tx.collateralRatio(agent, class)
		if err != nil {
			return false, err
		}
		if ratio < tx.collateralType(class).MinCollateralRatioBIPS {
			return true, nil
		}
	}
	return false, nil
}

// atSafety reports whether every class is at or above its safety ratio.
func (tx *txn) atSafety(agent *Agent) (bool, error) {
	for _, class := range collateralClasses {
		ratio, err := tx.collateralRatio(agent, class)
		if err != nil {
			return false, err
		}
		if ratio < tx.collateralType(class).SafetyMinCollateralRatioBIPS {
			return false, nil
		}
	}
	return true, nil
}

// startLiquidation moves a NORMAL agent under its minimum ratio into
// LIQUIDATION. It reports whether the agent is liquidating afterwards.
func (tx *txn) startLiquidation(agent *Agent) (bool, error) {
	switch agent.Status {
	case AgentStatusLiquidation, AgentStatusFullLiquidation:
		return true, nil
	case AgentStatusDestroying:
		return false, nil
	}
	below, err := tx.belowMinimum(agent)
	if err != nil || !below {
		return false, err
	}
	agent.Status = AgentStatusLiquidation
	agent.LiquidationStartedAt = tx.now
	tx.emit(newLiquidationStartedEvent(EventTypeLiquidationStarted, agent.ID, tx.now))
	tx.e.logTransition("agent liquidation started", agent.ID)
	return true, nil
}

// startFullLiquidation is triggered by proven illegal behaviour and cannot be
// cancelled.
func (tx *txn) startFullLiquidation(agent *Agent) {
	if agent.Status == AgentStatusFullLiquidation {
		return
	}
	if agent.Status != AgentStatusLiquidation {
		agent.LiquidationStartedAt = tx.now
	}
	agent.Status = AgentStatusFullLiquidation
	agent.PubliclyAvailable = false
	tx.emit(newLiquidationStartedEvent(EventTypeFullLiquidationStarted, agent.ID, agent.LiquidationStartedAt))
	tx.e.logger.Warn("agent full liquidation started", "agentId", agent.ID)
}

// endLiquidationIfHealthy returns a partially liquidated agent to NORMAL once
// every class is back at its safety ratio.
func (tx *txn) endLiquidationIfHealthy(agent *Agent) (bool, error) {
	if agent.Status != AgentStatusLiquidation {
		return false, nil
	}
	healthy, err := tx.atSafety(agent)
	if err != nil || !healthy {
		return false, err
	}
	agent.Status = AgentStatusNormal
	agent.LiquidationStartedAt = 0
	tx.emit(newLiquidationEndedEvent(agent.ID))
	tx.e.logTransition("agent liquidation ended", agent.ID)
	return true, nil
}

// requiredUnderlyingUBA is the underlying balance the agent must hold to
// back its minted and redeeming f-assets.
func (tx *txn) requiredUnderlyingUBA(agent *Agent) *big.Int {
	return tx.settings().uba(agent.MintedAMG + agent.RedeemingAMG)
}

// freeUnderlyingUBA may be negative.
func (tx *txn) freeUnderlyingUBA(agent *Agent) *big.Int {
	return new(big.Int).Sub(agent.UnderlyingBalanceUBA, tx.requiredUnderlyingUBA(agent))
}

// checkUnderlyingBalance starts a full liquidation when the tracked
// underlying balance no longer covers the backing.
func (tx *txn) checkUnderlyingBalance(agent *Agent) {
	required := tx.requiredUnderlyingUBA(agent)
	if agent.UnderlyingBalanceUBA.Cmp(required) >= 0 {
		return
	}
	tx.emit(newUnderlyingBalanceTooLowEvent(agent.ID, agent.UnderlyingBalanceUBA, required))
	tx.startFullLiquidation(agent)
}
