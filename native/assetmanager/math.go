package assetmanager

import (
	"math"
	"math/big"

	"fassetbridge/native/conversion"
)

const maxBIPS uint64 = 10_000

// infiniteRatio marks a collateral ratio with zero backing.
const infiniteRatio = math.MaxUint64

func mulBIPS(x *big.Int, bips uint64) *big.Int { return conversion.MulBIPS(x, bips) }

func bigU64(v uint64) *big.Int { return new(big.Int).SetUint64(v) }

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func roundDownToLot(amg, lot uint64) uint64 {
	if lot == 0 {
		return amg
	}
	return amg - amg%lot
}

// ceilDiv divides two non-negative integers rounding up.
func ceilDiv(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// clampUint64 saturates a non-negative big integer to the uint64 range.
func clampUint64(v *big.Int) uint64 {
	if v == nil || v.Sign() <= 0 {
		return 0
	}
	if !v.IsUint64() {
		return math.MaxUint64
	}
	return v.Uint64()
}

func subChecked(a, b uint64, what string) (uint64, error) {
	if b > a {
		return 0, invariantf("%s underflow: %d < %d", what, a, b)
	}
	return a - b, nil
}
