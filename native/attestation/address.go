package attestation

import (
	"errors"
	"strings"
	"unicode"

	"github.com/btcsuite/btcutil/base58"
	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// MaxUnderlyingAddressLength bounds the length of underlying addresses
// accepted anywhere in the system.
const MaxUnderlyingAddressLength = 128

var ErrInvalidAddress = errors.New("attestation: invalid underlying address")

// AddressHash returns the hash under which underlying addresses appear in
// attestation responses.
func AddressHash(address string) common.Hash {
	return ethcrypto.Keccak256Hash([]byte(address))
}

// AddressValidator normalizes underlying chain addresses, returning the
// standard form or ErrInvalidAddress.
type AddressValidator interface {
	Normalize(address string) (string, error)
}

// FormatValidator accepts any printable address without whitespace up to the
// configured length.
type FormatValidator struct {
	MaxLength int
}

// Normalize implements AddressValidator.
func (v FormatValidator) Normalize(address string) (string, error) {
	limit := v.MaxLength
	if limit <= 0 {
		limit = MaxUnderlyingAddressLength
	}
	if address == "" || len(address) > limit {
		return "", ErrInvalidAddress
	}
	for _, r := range address {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return "", ErrInvalidAddress
		}
	}
	return address, nil
}

// BitcoinStyleValidator accepts segwit bech32 addresses with one of the
// configured human readable parts and base58check addresses with one of the
// configured version bytes.
type BitcoinStyleValidator struct {
	Bech32HRPs     []string
	Base58Versions []byte
}

// Normalize implements AddressValidator. Bech32 addresses are returned in
// lower case, base58 addresses unchanged.
func (v BitcoinStyleValidator) Normalize(address string) (string, error) {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" || len(trimmed) > MaxUnderlyingAddressLength {
		return "", ErrInvalidAddress
	}
	if hrp, data, err := bech32.Decode(trimmed); err == nil {
		if len(data) == 0 {
			return "", ErrInvalidAddress
		}
		for _, allowed := range v.Bech32HRPs {
			if strings.EqualFold(hrp, allowed) {
				return strings.ToLower(trimmed), nil
			}
		}
		return "", ErrInvalidAddress
	}
	payload, version, err := base58.CheckDecode(trimmed)
	if err != nil || len(payload) != 20 {
		return "", ErrInvalidAddress
	}
	for _, allowed := range v.Base58Versions {
		if version == allowed {
			return trimmed, nil
		}
	}
	return "", ErrInvalidAddress
}
