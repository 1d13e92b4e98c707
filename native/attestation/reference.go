package attestation

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Payment reference types. The top 64 bits of a reference carry the type,
// the low bits carry the identifier of the referenced record.
const (
	ReferenceMinting             uint64 = 0x4642505266410001
	ReferenceRedemption          uint64 = 0x4642505266410002
	ReferenceAnnouncedWithdrawal uint64 = 0x4642505266410003
	ReferenceTopup               uint64 = 0x4642505266410011
	ReferenceSelfMint            uint64 = 0x4642505266410012

	referenceTypeShift = 192
)

var referenceIDMask = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), referenceTypeShift), uint256.NewInt(1))

func newReference(kind uint64, id uint64) common.Hash {
	ref := new(uint256.Int).Lsh(uint256.NewInt(kind), referenceTypeShift)
	ref.Or(ref, uint256.NewInt(id))
	return common.Hash(ref.Bytes32())
}

// MintingReference returns the reference a minter must attach to the payment
// for collateral reservation id.
func MintingReference(id uint64) common.Hash { return newReference(ReferenceMinting, id) }

// RedemptionReference returns the reference an agent must attach to the
// payment for redemption request id.
func RedemptionReference(id uint64) common.Hash { return newReference(ReferenceRedemption, id) }

// AnnouncedWithdrawalReference returns the reference for announced underlying
// withdrawal id.
func AnnouncedWithdrawalReference(id uint64) common.Hash {
	return newReference(ReferenceAnnouncedWithdrawal, id)
}

// TopupReference returns the reference for underlying top-ups of agent id.
func TopupReference(agentID uint64) common.Hash { return newReference(ReferenceTopup, agentID) }

// SelfMintReference returns the reference for self-mint payments of agent id.
func SelfMintReference(agentID uint64) common.Hash { return newReference(ReferenceSelfMint, agentID) }

// DecodeReference splits a reference into its type and identifier. ok is false
// when the identifier does not fit in 64 bits.
func DecodeReference(ref common.Hash) (kind uint64, id uint64, ok bool) {
	value := new(uint256.Int).SetBytes32(ref[:])
	kind = new(uint256.Int).Rsh(value, referenceTypeShift).Uint64()
	low := new(uint256.Int).And(value, referenceIDMask)
	if !low.IsUint64() {
		return kind, 0, false
	}
	return kind, low.Uint64(), true
}

// IsReferenceOf reports whether ref carries the requested type and returns the
// identifier it references.
func IsReferenceOf(ref common.Hash, kind uint64) (uint64, bool) {
	decoded, id, ok := DecodeReference(ref)
	if !ok || decoded != kind {
		return 0, false
	}
	return id, true
}
