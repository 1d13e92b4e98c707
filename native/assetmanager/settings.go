package assetmanager

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"fassetbridge/native/conversion"
)

// PauseModule is the module name checked against the pause view.
const PauseModule = "fassets"

// CollateralType describes one collateral class: the ledger token that holds
// it, its price feed and its ratio thresholds.
type CollateralType struct {
	Token                        string
	PriceSymbol                  string
	Decimals                     uint8
	MinCollateralRatioBIPS       uint64
	SafetyMinCollateralRatioBIPS uint64
}

// Settings are the static parameters of one asset manager.
type Settings struct {
	ChainID                    string
	AssetSymbol                string
	AssetPriceSymbol           string
	AssetDecimals              uint8
	AssetMintingDecimals       uint8
	AssetMintingGranularityUBA uint64
	LotSizeAMG                 uint64
	MintingCapAMG              uint64
	MaxRedeemedTickets         uint64

	CollateralReservationFeeBIPS uint64
	RedemptionFeeBIPS            uint64
	RedemptionDefaultFactorBIPS  uint64

	UnderlyingBlocksForPayment       uint64
	UnderlyingSecondsForPayment      uint64
	AverageBlockTimeMS               uint64
	ConfirmationByOthersAfterSeconds uint64

	PaymentChallengeRewardBIPS   uint64
	PaymentChallengeRewardCapWei *big.Int

	LiquidationStepSeconds               uint64
	LiquidationCollateralFactorBIPS      []uint64
	LiquidationFactorVaultCollateralBIPS []uint64

	VaultCollateralBuyForFlareFactorBIPS uint64
	AgentDestroyDelaySeconds             uint64
	PoolExitCollateralRatioBIPS          uint64

	VaultCollateral CollateralType
	PoolCollateral  CollateralType
}

var errInvalidSettings = errors.New("asset manager: invalid settings")

func settingsError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errInvalidSettings, fmt.Sprintf(format, args...))
}

// Validate checks the internal consistency of the settings.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.ChainID) == "" {
		return settingsError("chain id required")
	}
	if strings.TrimSpace(s.AssetSymbol) == "" || strings.TrimSpace(s.AssetPriceSymbol) == "" {
		return settingsError("asset symbols required")
	}
	if s.AssetMintingGranularityUBA == 0 {
		return settingsError("minting granularity must be positive")
	}
	if s.LotSizeAMG == 0 {
		return settingsError("lot size must be positive")
	}
	if s.MaxRedeemedTickets == 0 {
		return settingsError("max redeemed tickets must be positive")
	}
	if s.AssetMintingDecimals > s.AssetDecimals {
		return settingsError("minting decimals exceed asset decimals")
	}
	for name, bips := range map[string]uint64{
		"collateral reservation fee": s.CollateralReservationFeeBIPS,
		"redemption fee":             s.RedemptionFeeBIPS,
		"challenge reward":           s.PaymentChallengeRewardBIPS,
	} {
		if bips > maxBIPS {
			return settingsError("%s bips out of range", name)
		}
	}
	if s.RedemptionDefaultFactorBIPS < maxBIPS {
		return settingsError("redemption default factor must be at least 100%%")
	}
	if s.LiquidationStepSeconds == 0 {
		return settingsError("liquidation step must be positive")
	}
	total := s.LiquidationCollateralFactorBIPS
	vault := s.LiquidationFactorVaultCollateralBIPS
	if len(total) == 0 || len(total) != len(vault) {
		return settingsError("liquidation factor schedules must be non-empty and of equal length")
	}
	for i := range total {
		if vault[i] > total[i] {
			return settingsError("vault liquidation factor %d exceeds total factor", i)
		}
		if i > 0 && (total[i] < total[i-1] || vault[i] < vault[i-1]) {
			return settingsError("liquidation factors must be non-decreasing")
		}
		if i > 0 && total[i]-vault[i] < total[i-1]-vault[i-1] {
			return settingsError("pool liquidation factor %d decreases", i)
		}
	}
	if s.UnderlyingBlocksForPayment == 0 || s.UnderlyingSecondsForPayment == 0 {
		return settingsError("payment window must be positive")
	}
	for _, c := range []CollateralType{s.VaultCollateral, s.PoolCollateral} {
		if strings.TrimSpace(c.Token) == "" || strings.TrimSpace(c.PriceSymbol) == "" {
			return settingsError("collateral token and price symbol required")
		}
		if c.MinCollateralRatioBIPS < maxBIPS || c.SafetyMinCollateralRatioBIPS < c.MinCollateralRatioBIPS {
			return settingsError("collateral %s ratios inconsistent", c.Token)
		}
	}
	if strings.EqualFold(s.VaultCollateral.Token, s.PoolCollateral.Token) {
		return settingsError("vault and pool collateral must differ")
	}
	return nil
}

// Clone returns a deep copy of the settings.
func (s Settings) Clone() Settings {
	clone := s
	clone.PaymentChallengeRewardCapWei = cloneBigInt(s.PaymentChallengeRewardCapWei)
	clone.LiquidationCollateralFactorBIPS = append([]uint64(nil), s.LiquidationCollateralFactorBIPS...)
	clone.LiquidationFactorVaultCollateralBIPS = append([]uint64(nil), s.LiquidationFactorVaultCollateralBIPS...)
	return clone
}

func (s Settings) amgToUBA(amg uint64) uint64 {
	return conversion.AMGToUBA(amg, s.AssetMintingGranularityUBA)
}

func (s Settings) ubaToAMG(uba uint64) uint64 {
	amg, _ := conversion.UBAToAMG(uba, s.AssetMintingGranularityUBA)
	return amg
}
