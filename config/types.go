package config

// Collateral configures one collateral class.
type Collateral struct {
	Token                        string `toml:"Token" yaml:"token"`
	PriceSymbol                  string `toml:"PriceSymbol" yaml:"price_symbol"`
	Decimals                     uint8  `toml:"Decimals" yaml:"decimals"`
	MinCollateralRatioBIPS       uint64 `toml:"MinCollateralRatioBIPS" yaml:"min_collateral_ratio_bips"`
	SafetyMinCollateralRatioBIPS uint64 `toml:"SafetyMinCollateralRatioBIPS" yaml:"safety_min_collateral_ratio_bips"`
}

// AssetManager captures the static parameters of one f-asset.
type AssetManager struct {
	ChainID                    string `toml:"ChainID" yaml:"chain_id"`
	AssetSymbol                string `toml:"AssetSymbol" yaml:"asset_symbol"`
	AssetPriceSymbol           string `toml:"AssetPriceSymbol" yaml:"asset_price_symbol"`
	AssetDecimals              uint8  `toml:"AssetDecimals" yaml:"asset_decimals"`
	AssetMintingDecimals       uint8  `toml:"AssetMintingDecimals" yaml:"asset_minting_decimals"`
	AssetMintingGranularityUBA uint64 `toml:"AssetMintingGranularityUBA" yaml:"asset_minting_granularity_uba"`
	LotSizeAMG                 uint64 `toml:"LotSizeAMG" yaml:"lot_size_amg"`
	MintingCapAMG              uint64 `toml:"MintingCapAMG" yaml:"minting_cap_amg"`
	MaxRedeemedTickets         uint64 `toml:"MaxRedeemedTickets" yaml:"max_redeemed_tickets"`

	CollateralReservationFeeBIPS uint64 `toml:"CollateralReservationFeeBIPS" yaml:"collateral_reservation_fee_bips"`
	RedemptionFeeBIPS            uint64 `toml:"RedemptionFeeBIPS" yaml:"redemption_fee_bips"`
	RedemptionDefaultFactorBIPS  uint64 `toml:"RedemptionDefaultFactorBIPS" yaml:"redemption_default_factor_bips"`

	UnderlyingBlocksForPayment       uint64 `toml:"UnderlyingBlocksForPayment" yaml:"underlying_blocks_for_payment"`
	UnderlyingSecondsForPayment      uint64 `toml:"UnderlyingSecondsForPayment" yaml:"underlying_seconds_for_payment"`
	AverageBlockTimeMS               uint64 `toml:"AverageBlockTimeMS" yaml:"average_block_time_ms"`
	ConfirmationByOthersAfterSeconds uint64 `toml:"ConfirmationByOthersAfterSeconds" yaml:"confirmation_by_others_after_seconds"`

	PaymentChallengeRewardBIPS uint64 `toml:"PaymentChallengeRewardBIPS" yaml:"payment_challenge_reward_bips"`
	// PaymentChallengeRewardCapWei is a base-10 wei amount; empty or zero
	// leaves the reward uncapped.
	PaymentChallengeRewardCapWei string `toml:"PaymentChallengeRewardCapWei" yaml:"payment_challenge_reward_cap_wei"`

	LiquidationStepSeconds               uint64   `toml:"LiquidationStepSeconds" yaml:"liquidation_step_seconds"`
	LiquidationCollateralFactorBIPS      []uint64 `toml:"LiquidationCollateralFactorBIPS" yaml:"liquidation_collateral_factor_bips"`
	LiquidationFactorVaultCollateralBIPS []uint64 `toml:"LiquidationFactorVaultCollateralBIPS" yaml:"liquidation_factor_vault_collateral_bips"`

	VaultCollateralBuyForFlareFactorBIPS uint64 `toml:"VaultCollateralBuyForFlareFactorBIPS" yaml:"vault_collateral_buy_for_flare_factor_bips"`
	AgentDestroyDelaySeconds             uint64 `toml:"AgentDestroyDelaySeconds" yaml:"agent_destroy_delay_seconds"`
	PoolExitCollateralRatioBIPS          uint64 `toml:"PoolExitCollateralRatioBIPS" yaml:"pool_exit_collateral_ratio_bips"`

	VaultCollateral Collateral `toml:"vault_collateral" yaml:"vault_collateral"`
	PoolCollateral  Collateral `toml:"pool_collateral" yaml:"pool_collateral"`

	UnderlyingAddresses UnderlyingAddresses `toml:"underlying_addresses" yaml:"underlying_addresses"`
}

// UnderlyingAddresses selects the address format of the underlying chain.
// Without bech32 prefixes or base58 versions any printable address up to
// MaxLength is accepted.
type UnderlyingAddresses struct {
	Bech32HRPs     []string `toml:"Bech32HRPs" yaml:"bech32_hrps"`
	Base58Versions []uint   `toml:"Base58Versions" yaml:"base58_versions"`
	MaxLength      int      `toml:"MaxLength" yaml:"max_length"`
}

// Config is the file-level configuration of an asset manager instance.
type Config struct {
	Service     string `toml:"Service" yaml:"service"`
	Environment string `toml:"Environment" yaml:"environment"`
	LogLevel    string `toml:"LogLevel" yaml:"log_level"`
	// DataDir selects a LevelDB directory for engine state. Empty keeps the
	// state in memory.
	DataDir            string `toml:"DataDir" yaml:"data_dir"`
	StateCacheSize     int    `toml:"StateCacheSize" yaml:"state_cache_size"`
	PriceMaxAgeSeconds uint64 `toml:"PriceMaxAgeSeconds" yaml:"price_max_age_seconds"`

	AssetManager AssetManager `toml:"asset_manager" yaml:"asset_manager"`
}
