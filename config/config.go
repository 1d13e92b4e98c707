package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"fassetbridge/native/assetmanager"
	"fassetbridge/native/attestation"
)

const (
	defaultService            = "fassets"
	defaultLogLevel           = "info"
	defaultStateCacheSize     = 1024
	defaultPriceMaxAgeSeconds = 300
	defaultMaxRedeemedTickets = 20
	defaultAverageBlockTimeMS = 4000
	defaultDefaultFactorBIPS  = 11000
	defaultDestroyDelay       = 3600
	defaultConfirmByOthers    = 4 * 3600
)

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load loads the configuration from the given path. TOML and YAML are
// selected by file extension. A missing file is created with defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	if isYAML(path) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config %s: unknown key %s", path, undecoded[0].String())
		}
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	if strings.TrimSpace(cfg.Service) == "" {
		cfg.Service = defaultService
	}
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.StateCacheSize <= 0 {
		cfg.StateCacheSize = defaultStateCacheSize
	}
	if cfg.PriceMaxAgeSeconds == 0 {
		cfg.PriceMaxAgeSeconds = defaultPriceMaxAgeSeconds
	}
	am := &cfg.AssetManager
	am.ChainID = strings.TrimSpace(am.ChainID)
	am.AssetSymbol = strings.ToUpper(strings.TrimSpace(am.AssetSymbol))
	am.AssetPriceSymbol = strings.ToUpper(strings.TrimSpace(am.AssetPriceSymbol))
	if am.MaxRedeemedTickets == 0 {
		am.MaxRedeemedTickets = defaultMaxRedeemedTickets
	}
	if am.AverageBlockTimeMS == 0 {
		am.AverageBlockTimeMS = defaultAverageBlockTimeMS
	}
	if am.RedemptionDefaultFactorBIPS == 0 {
		am.RedemptionDefaultFactorBIPS = defaultDefaultFactorBIPS
	}
	if am.AgentDestroyDelaySeconds == 0 {
		am.AgentDestroyDelaySeconds = defaultDestroyDelay
	}
	if am.ConfirmationByOthersAfterSeconds == 0 {
		am.ConfirmationByOthersAfterSeconds = defaultConfirmByOthers
	}
	addrs := &am.UnderlyingAddresses
	for i, hrp := range addrs.Bech32HRPs {
		addrs.Bech32HRPs[i] = strings.ToLower(strings.TrimSpace(hrp))
	}
	if len(addrs.Bech32HRPs) == 0 {
		addrs.Bech32HRPs = nil
	}
	if len(addrs.Base58Versions) == 0 {
		addrs.Base58Versions = nil
	}
	for _, c := range []*Collateral{&am.VaultCollateral, &am.PoolCollateral} {
		c.Token = strings.ToUpper(strings.TrimSpace(c.Token))
		c.PriceSymbol = strings.ToUpper(strings.TrimSpace(c.PriceSymbol))
	}
}

// Settings converts the asset manager section into engine settings.
func (cfg *Config) Settings() (assetmanager.Settings, error) {
	am := cfg.AssetManager
	rewardCap, err := parseUintAmount(am.PaymentChallengeRewardCapWei)
	if err != nil {
		return assetmanager.Settings{}, fmt.Errorf("invalid asset_manager.PaymentChallengeRewardCapWei: %w", err)
	}
	settings := assetmanager.Settings{
		ChainID:                              am.ChainID,
		AssetSymbol:                          am.AssetSymbol,
		AssetPriceSymbol:                     am.AssetPriceSymbol,
		AssetDecimals:                        am.AssetDecimals,
		AssetMintingDecimals:                 am.AssetMintingDecimals,
		AssetMintingGranularityUBA:           am.AssetMintingGranularityUBA,
		LotSizeAMG:                           am.LotSizeAMG,
		MintingCapAMG:                        am.MintingCapAMG,
		MaxRedeemedTickets:                   am.MaxRedeemedTickets,
		CollateralReservationFeeBIPS:         am.CollateralReservationFeeBIPS,
		RedemptionFeeBIPS:                    am.RedemptionFeeBIPS,
		RedemptionDefaultFactorBIPS:          am.RedemptionDefaultFactorBIPS,
		UnderlyingBlocksForPayment:           am.UnderlyingBlocksForPayment,
		UnderlyingSecondsForPayment:          am.UnderlyingSecondsForPayment,
		AverageBlockTimeMS:                   am.AverageBlockTimeMS,
		ConfirmationByOthersAfterSeconds:     am.ConfirmationByOthersAfterSeconds,
		PaymentChallengeRewardBIPS:           am.PaymentChallengeRewardBIPS,
		PaymentChallengeRewardCapWei:         rewardCap,
		LiquidationStepSeconds:               am.LiquidationStepSeconds,
		LiquidationCollateralFactorBIPS:      append([]uint64(nil), am.LiquidationCollateralFactorBIPS...),
		LiquidationFactorVaultCollateralBIPS: append([]uint64(nil), am.LiquidationFactorVaultCollateralBIPS...),
		VaultCollateralBuyForFlareFactorBIPS: am.VaultCollateralBuyForFlareFactorBIPS,
		AgentDestroyDelaySeconds:             am.AgentDestroyDelaySeconds,
		PoolExitCollateralRatioBIPS:          am.PoolExitCollateralRatioBIPS,
		VaultCollateral:                      am.VaultCollateral.collateralType(),
		PoolCollateral:                       am.PoolCollateral.collateralType(),
	}
	if err := settings.Validate(); err != nil {
		return assetmanager.Settings{}, err
	}
	return settings, nil
}

// AddressValidator returns the underlying address check for the configured
// chain. Provers use it to answer address validity requests.
func (cfg *Config) AddressValidator() attestation.AddressValidator {
	addrs := cfg.AssetManager.UnderlyingAddresses
	if len(addrs.Bech32HRPs) == 0 && len(addrs.Base58Versions) == 0 {
		return attestation.FormatValidator{MaxLength: addrs.MaxLength}
	}
	versions := make([]byte, 0, len(addrs.Base58Versions))
	for _, v := range addrs.Base58Versions {
		versions = append(versions, byte(v))
	}
	return attestation.BitcoinStyleValidator{
		Bech32HRPs:     append([]string(nil), addrs.Bech32HRPs...),
		Base58Versions: versions,
	}
}

func (c Collateral) collateralType() assetmanager.CollateralType {
	return assetmanager.CollateralType{
		Token:                        c.Token,
		PriceSymbol:                  c.PriceSymbol,
		Decimals:                     c.Decimals,
		MinCollateralRatioBIPS:       c.MinCollateralRatioBIPS,
		SafetyMinCollateralRatioBIPS: c.SafetyMinCollateralRatioBIPS,
	}
}

// PriceSymbols lists the feeds the engine reads: the asset first, then vault
// and pool collateral.
func (cfg *Config) PriceSymbols() []string {
	am := cfg.AssetManager
	return []string{am.AssetPriceSymbol, am.VaultCollateral.PriceSymbol, am.PoolCollateral.PriceSymbol}
}

// PriceMaxAge is the staleness bound for the price store.
func (cfg *Config) PriceMaxAge() time.Duration {
	return time.Duration(cfg.PriceMaxAgeSeconds) * time.Second
}

func parseUintAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("not a base-10 integer: %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("must not be negative: %q", value)
	}
	return amount, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a test-network configuration for an XRP-like asset.
func Default() *Config {
	cfg := &Config{
		Service:            defaultService,
		Environment:        "local",
		LogLevel:           defaultLogLevel,
		StateCacheSize:     defaultStateCacheSize,
		PriceMaxAgeSeconds: defaultPriceMaxAgeSeconds,
		AssetManager: AssetManager{
			ChainID:                          "testXRP",
			AssetSymbol:                      "FTESTXRP",
			AssetPriceSymbol:                 "TESTXRP",
			AssetDecimals:                    6,
			AssetMintingDecimals:             6,
			AssetMintingGranularityUBA:       1,
			LotSizeAMG:                       20_000_000,
			MaxRedeemedTickets:               defaultMaxRedeemedTickets,
			CollateralReservationFeeBIPS:     10,
			RedemptionFeeBIPS:                20,
			RedemptionDefaultFactorBIPS:      defaultDefaultFactorBIPS,
			UnderlyingBlocksForPayment:       100,
			UnderlyingSecondsForPayment:      400,
			AverageBlockTimeMS:               defaultAverageBlockTimeMS,
			ConfirmationByOthersAfterSeconds: defaultConfirmByOthers,
			PaymentChallengeRewardBIPS:       10,
			LiquidationStepSeconds:           90,
			LiquidationCollateralFactorBIPS:  []uint64{12000, 16000, 20000},
			LiquidationFactorVaultCollateralBIPS: []uint64{
				10000, 10000, 10000,
			},
			VaultCollateralBuyForFlareFactorBIPS: 10500,
			AgentDestroyDelaySeconds:             defaultDestroyDelay,
			PoolExitCollateralRatioBIPS:          26000,
			VaultCollateral: Collateral{
				Token:                        "USDC",
				PriceSymbol:                  "USDC",
				Decimals:                     18,
				MinCollateralRatioBIPS:       14000,
				SafetyMinCollateralRatioBIPS: 15000,
			},
			PoolCollateral: Collateral{
				Token:                        "WNAT",
				PriceSymbol:                  "NAT",
				Decimals:                     18,
				MinCollateralRatioBIPS:       20000,
				SafetyMinCollateralRatioBIPS: 21000,
			},
		},
	}
	return cfg
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}
