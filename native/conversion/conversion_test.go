package conversion

import (
	"math/big"
	"testing"
)

func TestAMGToTokenWeiPrice(t *testing.T) {
	price, err := AMGToTokenWeiPrice(18, big.NewInt(1e5), 5, big.NewInt(1621e5), 5, 9)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	want, _ := new(big.Int).SetString("1621000000000000000000", 10)
	if price.Cmp(want) != 0 {
		t.Fatalf("unexpected price: got %s want %s", price, want)
	}
}

func TestAMGToTokenWeiPriceNegativeExponent(t *testing.T) {
	// token with 0 decimals and a very fine minting granularity.
	price, err := AMGToTokenWeiPrice(0, big.NewInt(2), 0, big.NewInt(3), 5, 12)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	// 3 * 10^(9-17) / 2 rounds to zero.
	if price.Sign() != 0 {
		t.Fatalf("expected zero price, got %s", price)
	}
	if _, err := AMGToTokenWeiPrice(18, big.NewInt(0), 5, big.NewInt(1), 5, 9); err != ErrZeroPrice {
		t.Fatalf("expected ErrZeroPrice, got %v", err)
	}
}

func TestAMGTokenWeiRoundTrip(t *testing.T) {
	price := big.NewInt(2)
	wei := AMGToTokenWei(1e18, price)
	if wei.Cmp(big.NewInt(2e9)) != 0 {
		t.Fatalf("unexpected wei: %s", wei)
	}
	amg, err := TokenWeiToAMG(big.NewInt(1e18), price)
	if err != nil {
		t.Fatalf("to amg: %v", err)
	}
	want, _ := new(big.Int).SetString("500000000000000000000000000", 10)
	if amg.Cmp(want) != 0 {
		t.Fatalf("unexpected amg: %s", amg)
	}
	if _, err := TokenWeiToAMG(big.NewInt(1), big.NewInt(0)); err != ErrZeroPrice {
		t.Fatalf("expected ErrZeroPrice, got %v", err)
	}
}

func TestUBAConversions(t *testing.T) {
	if got := AMGToUBA(7, 1000); got != 7000 {
		t.Fatalf("amg to uba: %d", got)
	}
	amg, err := UBAToAMG(7999, 1000)
	if err != nil || amg != 7 {
		t.Fatalf("uba to amg: %d %v", amg, err)
	}
	if _, err := UBAToAMG(1, 0); err != ErrZeroGranularity {
		t.Fatalf("expected ErrZeroGranularity, got %v", err)
	}
	if got := RoundUBAToAMG(7999, 1000); got != 7000 {
		t.Fatalf("round: %d", got)
	}
}

func TestBIPSHelpers(t *testing.T) {
	if got := MulBIPS64(500, 4000); got != 200 {
		t.Fatalf("mul bips: %d", got)
	}
	if got := MulBIPS(big.NewInt(3), 3333); got.Sign() != 0 {
		t.Fatalf("expected rounding down, got %s", got)
	}
	if RatioBIPS(big.NewInt(1), big.NewInt(0)) != nil {
		t.Fatalf("expected infinite ratio")
	}
	if got := RatioBIPS(big.NewInt(3), big.NewInt(2)); got.Int64() != 15_000 {
		t.Fatalf("ratio: %s", got)
	}
}
