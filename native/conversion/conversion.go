package conversion

import (
	"errors"
	"math/big"
)

// AMGTokenWeiPriceScaleExp is the decimal exponent of the fixed-point scale
// carried by AMG to token-wei prices.
const AMGTokenWeiPriceScaleExp = 9

var (
	// AMGTokenWeiPriceScale is the fixed-point scale (1e9) carried by AMG to
	// token-wei prices.
	AMGTokenWeiPriceScale = big.NewInt(1_000_000_000)

	// MaxBIPS is the basis point denominator.
	MaxBIPS = big.NewInt(10_000)

	ErrZeroPrice       = errors.New("conversion: zero price")
	ErrZeroGranularity = errors.New("conversion: zero granularity")
)

func pow10(exp int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil)
}

// AMGToTokenWeiPrice derives the price of one AMG expressed in token wei,
// scaled by AMGTokenWeiPriceScale. Both prices are FTSO style integers with
// their own decimal counts. The result is computed with a single division.
func AMGToTokenWeiPrice(tokenDecimals uint8, tokenPrice *big.Int, tokenFtsoDecimals uint8, assetPrice *big.Int, assetFtsoDecimals uint8, assetMintingDecimals uint8) (*big.Int, error) {
	if tokenPrice == nil || tokenPrice.Sign() <= 0 {
		return nil, ErrZeroPrice
	}
	if assetPrice == nil || assetPrice.Sign() < 0 {
		return nil, ErrZeroPrice
	}
	expPlus := int64(tokenDecimals) + int64(tokenFtsoDecimals) + AMGTokenWeiPriceScaleExp
	expMinus := int64(assetMintingDecimals) + int64(assetFtsoDecimals)
	numerator := new(big.Int).Set(assetPrice)
	denominator := new(big.Int).Set(tokenPrice)
	if expPlus >= expMinus {
		numerator.Mul(numerator, pow10(expPlus-expMinus))
	} else {
		denominator.Mul(denominator, pow10(expMinus-expPlus))
	}
	return numerator.Quo(numerator, denominator), nil
}

// AMGToTokenWei converts an AMG amount to token wei at the supplied price,
// rounding down.
func AMGToTokenWei(amg uint64, price *big.Int) *big.Int {
	if price == nil || amg == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).SetUint64(amg)
	out.Mul(out, price)
	return out.Quo(out, AMGTokenWeiPriceScale)
}

// AMGToTokenWeiBig is AMGToTokenWei for amounts that may exceed uint64.
func AMGToTokenWeiBig(amg *big.Int, price *big.Int) *big.Int {
	if price == nil || amg == nil || amg.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amg, price)
	return out.Quo(out, AMGTokenWeiPriceScale)
}

// TokenWeiToAMG converts a token wei amount back to AMG at the supplied price,
// rounding down.
func TokenWeiToAMG(wei *big.Int, price *big.Int) (*big.Int, error) {
	if price == nil || price.Sign() == 0 {
		return nil, ErrZeroPrice
	}
	if wei == nil || wei.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	out := new(big.Int).Mul(wei, AMGTokenWeiPriceScale)
	return out.Quo(out, price), nil
}

// AMGToUBA converts AMG to underlying base amount.
func AMGToUBA(amg uint64, granularityUBA uint64) uint64 {
	return amg * granularityUBA
}

// UBAToAMG converts an underlying base amount to AMG, dropping any
// sub-granularity remainder.
func UBAToAMG(uba uint64, granularityUBA uint64) (uint64, error) {
	if granularityUBA == 0 {
		return 0, ErrZeroGranularity
	}
	return uba / granularityUBA, nil
}

// RoundUBAToAMG rounds an underlying base amount down to a whole number of
// AMG units, still expressed in UBA.
func RoundUBAToAMG(uba uint64, granularityUBA uint64) uint64 {
	if granularityUBA == 0 {
		return uba
	}
	return uba - uba%granularityUBA
}

// MulBIPS returns x * bips / 10000 rounded down.
func MulBIPS(x *big.Int, bips uint64) *big.Int {
	if x == nil || x.Sign() == 0 || bips == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(x, new(big.Int).SetUint64(bips))
	return out.Quo(out, MaxBIPS)
}

// MulBIPS64 is MulBIPS for uint64 amounts. The intermediate product is
// computed with big integers so it cannot overflow.
func MulBIPS64(x uint64, bips uint64) uint64 {
	return MulBIPS(new(big.Int).SetUint64(x), bips).Uint64()
}

// RatioBIPS returns numerator * 10000 / denominator, or nil when the
// denominator is zero (an infinite ratio).
func RatioBIPS(numerator, denominator *big.Int) *big.Int {
	if denominator == nil || denominator.Sign() == 0 {
		return nil
	}
	if numerator == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(numerator, MaxBIPS)
	return out.Quo(out, denominator)
}
