package config

import (
	"fmt"

	"fassetbridge/native/attestation"
	"fassetbridge/observability/logging"
)

const maxBIPS = 10_000

// Validate checks the configuration sections the engine does not know about
// and then the engine rules through Settings. Liquidation schedules are only
// checked by Settings.Validate.
func (cfg *Config) Validate() error {
	if !logging.KnownLevel(cfg.LogLevel) {
		return fmt.Errorf("config: unknown log level %q", cfg.LogLevel)
	}
	am := cfg.AssetManager
	if am.ChainID == "" {
		return fmt.Errorf("asset_manager: chain id required")
	}
	if am.LotSizeAMG == 0 {
		return fmt.Errorf("asset_manager: lot size must be > 0")
	}
	if am.AssetMintingGranularityUBA == 0 {
		return fmt.Errorf("asset_manager: minting granularity must be > 0")
	}
	for name, bips := range map[string]uint64{
		"CollateralReservationFeeBIPS": am.CollateralReservationFeeBIPS,
		"RedemptionFeeBIPS":            am.RedemptionFeeBIPS,
		"PaymentChallengeRewardBIPS":   am.PaymentChallengeRewardBIPS,
	} {
		if bips > maxBIPS {
			return fmt.Errorf("asset_manager: %s out of range", name)
		}
	}
	for name, c := range map[string]Collateral{"vault_collateral": am.VaultCollateral, "pool_collateral": am.PoolCollateral} {
		if c.Token == "" || c.PriceSymbol == "" {
			return fmt.Errorf("%s: token and price symbol required", name)
		}
		if c.MinCollateralRatioBIPS > c.SafetyMinCollateralRatioBIPS {
			return fmt.Errorf("%s: min collateral ratio > safety ratio", name)
		}
	}
	addrs := am.UnderlyingAddresses
	if addrs.MaxLength < 0 || addrs.MaxLength > attestation.MaxUnderlyingAddressLength {
		return fmt.Errorf("asset_manager.underlying_addresses: max length out of range")
	}
	for _, hrp := range addrs.Bech32HRPs {
		if hrp == "" {
			return fmt.Errorf("asset_manager.underlying_addresses: empty bech32 prefix")
		}
	}
	for _, v := range addrs.Base58Versions {
		if v > 0xff {
			return fmt.Errorf("asset_manager.underlying_addresses: base58 version %d out of range", v)
		}
	}
	if _, err := parseUintAmount(am.PaymentChallengeRewardCapWei); err != nil {
		return fmt.Errorf("asset_manager: PaymentChallengeRewardCapWei: %w", err)
	}
	if _, err := cfg.Settings(); err != nil {
		return err
	}
	return nil
}
