package attestation

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Kind identifies the attestation type carried by a proof.
type Kind uint8

const (
	KindPayment Kind = iota + 1
	KindBalanceDecreasingTransaction
	KindReferencedPaymentNonexistence
	KindConfirmedBlockHeightExists
	KindAddressValidity
)

// String renders the attestation type name.
func (k Kind) String() string {
	switch k {
	case KindPayment:
		return "Payment"
	case KindBalanceDecreasingTransaction:
		return "BalanceDecreasingTransaction"
	case KindReferencedPaymentNonexistence:
		return "ReferencedPaymentNonexistence"
	case KindConfirmedBlockHeightExists:
		return "ConfirmedBlockHeightExists"
	case KindAddressValidity:
		return "AddressValidity"
	default:
		return "Unknown"
	}
}

// Payment status codes reported by the Payment attestation.
const (
	PaymentSuccess         uint8 = 0
	PaymentSenderFailure   uint8 = 1
	PaymentReceiverFailure uint8 = 2
)

// Response is the verified body of an attestation. Exactly one of the
// concrete response types below implements it per attestation kind.
type Response interface {
	Kind() Kind
	isResponse()
}

// Proof binds a verified response to the underlying chain it was attested on
// and the attestation round that produced it.
type Proof struct {
	ChainID  string
	Round    uint64
	Response Response
}

// Payment reports the effect of a single underlying transaction on one source
// and one receiving address. Amounts are non-negative.
type Payment struct {
	TransactionID            common.Hash
	BlockNumber              uint64
	BlockTimestamp           uint64
	SourceAddressHash        common.Hash
	ReceivingAddressHash     common.Hash
	SpentAmount              *big.Int
	ReceivedAmount           *big.Int
	StandardPaymentReference common.Hash
	OneToOne                 bool
	Status                   uint8
}

func (*Payment) Kind() Kind  { return KindPayment }
func (*Payment) isResponse() {}

// BalanceDecreasingTransaction reports that a transaction spent funds from the
// source address.
type BalanceDecreasingTransaction struct {
	TransactionID            common.Hash
	BlockNumber              uint64
	BlockTimestamp           uint64
	SourceAddressHash        common.Hash
	SpentAmount              *big.Int
	StandardPaymentReference common.Hash
}

func (*BalanceDecreasingTransaction) Kind() Kind  { return KindBalanceDecreasingTransaction }
func (*BalanceDecreasingTransaction) isResponse() {}

// ReferencedPaymentNonexistence reports that no payment with the reference
// and at least the amount reached the destination between MinimalBlockNumber
// and the first overflow block.
type ReferencedPaymentNonexistence struct {
	MinimalBlockNumber          uint64
	MinimalBlockTimestamp       uint64
	DeadlineBlockNumber         uint64
	DeadlineTimestamp           uint64
	DestinationAddressHash      common.Hash
	Amount                      *big.Int
	StandardPaymentReference    common.Hash
	CheckSourceAddresses        bool
	SourceAddressesRoot         common.Hash
	FirstOverflowBlockNumber    uint64
	FirstOverflowBlockTimestamp uint64
}

func (*ReferencedPaymentNonexistence) Kind() Kind  { return KindReferencedPaymentNonexistence }
func (*ReferencedPaymentNonexistence) isResponse() {}

// ConfirmedBlockHeightExists reports a finalized block and the lowest block of
// the current attestation query window.
type ConfirmedBlockHeightExists struct {
	BlockNumber                     uint64
	BlockTimestamp                  uint64
	NumberOfConfirmations           uint64
	LowestQueryWindowBlockNumber    uint64
	LowestQueryWindowBlockTimestamp uint64
}

func (*ConfirmedBlockHeightExists) Kind() Kind  { return KindConfirmedBlockHeightExists }
func (*ConfirmedBlockHeightExists) isResponse() {}

// AddressValidity reports whether an address is valid on the underlying chain
// and its standard form.
type AddressValidity struct {
	Address             string
	IsValid             bool
	StandardAddress     string
	StandardAddressHash common.Hash
}

func (*AddressValidity) Kind() Kind  { return KindAddressValidity }
func (*AddressValidity) isResponse() {}

// Payment returns the payment body when the proof carries one.
func (p Proof) Payment() (*Payment, bool) {
	body, ok := p.Response.(*Payment)
	return body, ok && body != nil
}

// BalanceDecreasing returns the balance decreasing transaction body when the
// proof carries one.
func (p Proof) BalanceDecreasing() (*BalanceDecreasingTransaction, bool) {
	body, ok := p.Response.(*BalanceDecreasingTransaction)
	return body, ok && body != nil
}

// NonPayment returns the referenced payment nonexistence body when the proof
// carries one.
func (p Proof) NonPayment() (*ReferencedPaymentNonexistence, bool) {
	body, ok := p.Response.(*ReferencedPaymentNonexistence)
	return body, ok && body != nil
}

// BlockHeight returns the confirmed block height body when the proof carries
// one.
func (p Proof) BlockHeight() (*ConfirmedBlockHeightExists, bool) {
	body, ok := p.Response.(*ConfirmedBlockHeightExists)
	return body, ok && body != nil
}

// AddressValidity returns the address validity body when the proof carries
// one.
func (p Proof) AddressValidity() (*AddressValidity, bool) {
	body, ok := p.Response.(*AddressValidity)
	return body, ok && body != nil
}
