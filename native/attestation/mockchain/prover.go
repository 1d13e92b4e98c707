package mockchain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"fassetbridge/native/attestation"
)

var (
	ErrNotFinalized          = errors.New("mockchain: block not finalized")
	ErrSourceNotInvolved     = errors.New("mockchain: source address not spending in transaction")
	ErrPaymentExists         = errors.New("mockchain: referenced payment exists")
	ErrOverflowBlockNotFound = errors.New("mockchain: overflow block not found")
	ErrOutsideQueryWindow    = errors.New("mockchain: block outside attestation query window")
)

// DefaultQueryWindowSeconds is how far back the prover can look, mirroring
// the attestation providers' query window.
const DefaultQueryWindowSeconds = 86_400

// Prover builds attested proofs of facts about a Chain.
type Prover struct {
	chainID     string
	chain       *Chain
	hub         *attestation.Hub
	validator   attestation.AddressValidator
	queryWindow uint64
}

// NewProver creates a prover for the chain. Proofs are attested through hub
// under chainID.
func NewProver(chainID string, chain *Chain, hub *attestation.Hub) *Prover {
	return &Prover{
		chainID:     chainID,
		chain:       chain,
		hub:         hub,
		validator:   attestation.FormatValidator{},
		queryWindow: DefaultQueryWindowSeconds,
	}
}

// SetAddressValidator replaces the address format check used by
// ProveAddressValidity.
func (p *Prover) SetAddressValidator(v attestation.AddressValidator) {
	if v == nil {
		v = attestation.FormatValidator{}
	}
	p.validator = v
}

// SetQueryWindow overrides the attestation query window in seconds.
func (p *Prover) SetQueryWindow(seconds uint64) { p.queryWindow = seconds }

func (p *Prover) finalizedHeight() (uint64, bool) {
	p.chain.mu.RLock()
	defer p.chain.mu.RUnlock()
	height := uint64(len(p.chain.blocks) - 1)
	if height < p.chain.finalizationBlocks {
		return 0, false
	}
	return height - p.chain.finalizationBlocks, true
}

func (p *Prover) lowestQueryWindowBlock() *Block {
	p.chain.mu.RLock()
	defer p.chain.mu.RUnlock()
	last := p.chain.blocks[len(p.chain.blocks)-1]
	var start uint64
	if last.Timestamp > p.queryWindow {
		start = last.Timestamp - p.queryWindow
	}
	for _, b := range p.chain.blocks {
		if b.Timestamp >= start {
			return b
		}
	}
	return last
}

func (p *Prover) checkFinalized(block uint64) error {
	height, ok := p.finalizedHeight()
	if !ok || block > height {
		return fmt.Errorf("%w: block %d", ErrNotFinalized, block)
	}
	return nil
}

// ProvePayment attests the effect of transaction txID on source and
// destination. An empty source selects the transaction's first input.
func (p *Prover) ProvePayment(txID common.Hash, source, destination string) (attestation.Proof, error) {
	tx, block, err := p.chain.Transaction(txID)
	if err != nil {
		return attestation.Proof{}, err
	}
	if err := p.checkFinalized(block.Number); err != nil {
		return attestation.Proof{}, err
	}
	flows, sources := netFlows(tx)
	if source == "" && len(sources) > 0 {
		source = tx.Inputs[0].Address
	}
	spent, ok := flows[source]
	if !ok {
		return attestation.Proof{}, ErrSourceNotInvolved
	}
	received := big.NewInt(0)
	if flow, ok := flows[destination]; ok {
		received = new(big.Int).Neg(flow)
	}
	if spent.Sign() < 0 {
		spent = big.NewInt(0)
	}
	if received.Sign() < 0 {
		received = big.NewInt(0)
	}
	if tx.Status != attestation.PaymentSuccess {
		received = big.NewInt(0)
	}
	oneToOne := len(sources) == 1
	for _, out := range tx.Outputs {
		if out.Address != destination && out.Address != source {
			oneToOne = false
		}
	}
	return p.hub.Attest(p.chainID, &attestation.Payment{
		TransactionID:            tx.ID,
		BlockNumber:              block.Number,
		BlockTimestamp:           block.Timestamp,
		SourceAddressHash:        attestation.AddressHash(source),
		ReceivingAddressHash:     attestation.AddressHash(destination),
		SpentAmount:              new(big.Int).Set(spent),
		ReceivedAmount:           received,
		StandardPaymentReference: tx.Reference,
		OneToOne:                 oneToOne,
		Status:                   tx.Status,
	})
}

// ProveBalanceDecreasingTransaction attests that txID spent funds from
// source.
func (p *Prover) ProveBalanceDecreasingTransaction(txID common.Hash, source string) (attestation.Proof, error) {
	tx, block, err := p.chain.Transaction(txID)
	if err != nil {
		return attestation.Proof{}, err
	}
	if err := p.checkFinalized(block.Number); err != nil {
		return attestation.Proof{}, err
	}
	flows, _ := netFlows(tx)
	spent, ok := flows[source]
	if !ok || spent.Sign() < 0 {
		return attestation.Proof{}, ErrSourceNotInvolved
	}
	isInput := false
	for _, in := range tx.Inputs {
		if in.Address == source {
			isInput = true
			break
		}
	}
	if !isInput {
		return attestation.Proof{}, ErrSourceNotInvolved
	}
	return p.hub.Attest(p.chainID, &attestation.BalanceDecreasingTransaction{
		TransactionID:            tx.ID,
		BlockNumber:              block.Number,
		BlockTimestamp:           block.Timestamp,
		SourceAddressHash:        attestation.AddressHash(source),
		SpentAmount:              new(big.Int).Set(spent),
		StandardPaymentReference: tx.Reference,
	})
}

// ProveReferencedPaymentNonexistence attests that no successful payment with
// the reference and at least amount reached destination from firstBlock up
// to the first block past both lastBlock and lastTimestamp.
func (p *Prover) ProveReferencedPaymentNonexistence(destination string, reference common.Hash, amount *big.Int, firstBlock, lastBlock, lastTimestamp uint64) (attestation.Proof, error) {
	lowest := p.lowestQueryWindowBlock()
	if firstBlock < lowest.Number {
		return attestation.Proof{}, fmt.Errorf("%w: block %d", ErrOutsideQueryWindow, firstBlock)
	}
	height, ok := p.finalizedHeight()
	if !ok {
		return attestation.Proof{}, ErrOverflowBlockNotFound
	}
	var overflow *Block
	var minimal *Block
	for n := firstBlock; n <= height; n++ {
		block, ok := p.chain.Block(n)
		if !ok {
			break
		}
		if minimal == nil {
			minimal = block
		}
		if block.Number > lastBlock && block.Timestamp > lastTimestamp {
			overflow = block
			break
		}
		for _, tx := range block.Transactions {
			if tx.Status != attestation.PaymentSuccess || tx.Reference != reference {
				continue
			}
			flows, _ := netFlows(tx)
			if flow, ok := flows[destination]; ok && new(big.Int).Neg(flow).Cmp(amount) >= 0 {
				return attestation.Proof{}, ErrPaymentExists
			}
		}
	}
	if overflow == nil || minimal == nil {
		return attestation.Proof{}, ErrOverflowBlockNotFound
	}
	return p.hub.Attest(p.chainID, &attestation.ReferencedPaymentNonexistence{
		MinimalBlockNumber:          minimal.Number,
		MinimalBlockTimestamp:       minimal.Timestamp,
		DeadlineBlockNumber:         lastBlock,
		DeadlineTimestamp:           lastTimestamp,
		DestinationAddressHash:      attestation.AddressHash(destination),
		Amount:                      new(big.Int).Set(amount),
		StandardPaymentReference:    reference,
		FirstOverflowBlockNumber:    overflow.Number,
		FirstOverflowBlockTimestamp: overflow.Timestamp,
	})
}

// ProveAddressValidity attests whether the address is valid on the chain.
func (p *Prover) ProveAddressValidity(address string) (attestation.Proof, error) {
	standard, err := p.validator.Normalize(address)
	body := &attestation.AddressValidity{Address: address}
	if err == nil {
		body.IsValid = true
		body.StandardAddress = standard
		body.StandardAddressHash = attestation.AddressHash(standard)
	}
	return p.hub.Attest(p.chainID, body)
}

// ProveConfirmedBlockHeightExists attests the latest finalized block and the
// lowest block of a query window of windowSeconds. A zero window uses the
// prover's configured query window.
func (p *Prover) ProveConfirmedBlockHeightExists(windowSeconds uint64) (attestation.Proof, error) {
	height, ok := p.finalizedHeight()
	if !ok {
		return attestation.Proof{}, ErrNotFinalized
	}
	block, _ := p.chain.Block(height)
	if windowSeconds == 0 {
		windowSeconds = p.queryWindow
	}
	var start uint64
	if block.Timestamp > windowSeconds {
		start = block.Timestamp - windowSeconds
	}
	lowest := block
	for n := uint64(0); n <= height; n++ {
		candidate, _ := p.chain.Block(n)
		if candidate.Timestamp >= start {
			lowest = candidate
			break
		}
	}
	p.chain.mu.RLock()
	confirmations := p.chain.finalizationBlocks
	p.chain.mu.RUnlock()
	return p.hub.Attest(p.chainID, &attestation.ConfirmedBlockHeightExists{
		BlockNumber:                     block.Number,
		BlockTimestamp:                  block.Timestamp,
		NumberOfConfirmations:           confirmations,
		LowestQueryWindowBlockNumber:    lowest.Number,
		LowestQueryWindowBlockTimestamp: lowest.Timestamp,
	})
}
