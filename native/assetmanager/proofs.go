package assetmanager

import (
	"fmt"
	"strings"

	"fassetbridge/native/attestation"
)

func (tx *txn) verify(proof attestation.Proof, notProven error) error {
	if !strings.EqualFold(proof.ChainID, tx.settings().ChainID) {
		return ErrInvalidChain
	}
	if proof.Response == nil {
		return notProven
	}
	if err := tx.e.verifier.Verify(proof); err != nil {
		return fmt.Errorf("%w: %v", notProven, err)
	}
	return nil
}

func (tx *txn) verifyPayment(proof attestation.Proof) (*attestation.Payment, error) {
	if err := tx.verify(proof, ErrLegalPaymentNotProven); err != nil {
		return nil, err
	}
	body, ok := proof.Payment()
	if !ok || body.SpentAmount == nil || body.ReceivedAmount == nil {
		return nil, ErrLegalPaymentNotProven
	}
	return body, nil
}

func (tx *txn) verifyBalanceDecreasing(proof attestation.Proof) (*attestation.BalanceDecreasingTransaction, error) {
	if err := tx.verify(proof, ErrTransactionNotProven); err != nil {
		return nil, err
	}
	body, ok := proof.BalanceDecreasing()
	if !ok || body.SpentAmount == nil {
		return nil, ErrTransactionNotProven
	}
	return body, nil
}

func (tx *txn) verifyNonPayment(proof attestation.Proof) (*attestation.ReferencedPaymentNonexistence, error) {
	if err := tx.verify(proof, ErrNonPaymentNotProven); err != nil {
		return nil, err
	}
	body, ok := proof.NonPayment()
	if !ok || body.Amount == nil {
		return nil, ErrNonPaymentNotProven
	}
	return body, nil
}

func (tx *txn) verifyBlockHeight(proof attestation.Proof) (*attestation.ConfirmedBlockHeightExists, error) {
	if err := tx.verify(proof, ErrBlockHeightNotProven); err != nil {
		return nil, err
	}
	body, ok := proof.BlockHeight()
	if !ok {
		return nil, ErrBlockHeightNotProven
	}
	return body, nil
}

func (tx *txn) verifyAddressValidity(proof attestation.Proof) (*attestation.AddressValidity, error) {
	if err := tx.verify(proof, ErrAddressValidityNotProven); err != nil {
		return nil, err
	}
	body, ok := proof.AddressValidity()
	if !ok {
		return nil, ErrAddressValidityNotProven
	}
	return body, nil
}

// paymentWindow returns the underlying block range and deadline timestamp
// granted to a new payment obligation.
func (tx *txn) paymentWindow() (first, last, lastTimestamp uint64) {
	g := tx.globals
	s := tx.settings()
	first = g.CurrentUnderlyingBlock
	last = first + s.UnderlyingBlocksForPayment
	var elapsed uint64
	if g.CurrentUnderlyingBlockUpdatedAt > 0 && tx.now > g.CurrentUnderlyingBlockUpdatedAt {
		elapsed = tx.now - g.CurrentUnderlyingBlockUpdatedAt
	}
	lastTimestamp = g.CurrentUnderlyingBlockTimestamp + elapsed + s.UnderlyingSecondsForPayment
	return first, last, lastTimestamp
}

// nonPaymentTooEarly reports whether the non-payment proof does not reach
// past both deadlines of the payment window.
func nonPaymentTooEarly(np *attestation.ReferencedPaymentNonexistence, lastBlock, lastTimestamp uint64) bool {
	return !(np.FirstOverflowBlockNumber > lastBlock && np.FirstOverflowBlockTimestamp > lastTimestamp)
}
