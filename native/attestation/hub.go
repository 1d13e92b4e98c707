package attestation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

var (
	ErrNotAttested     = errors.New("attestation: proof not attested")
	ErrMalformedProof  = errors.New("attestation: malformed proof")
	ErrUnknownChain    = errors.New("attestation: chain id required")
	ErrNilVerifierHook = errors.New("attestation: verifier not configured")
)

// Verifier checks that a proof was produced by the attestation system.
type Verifier interface {
	Verify(Proof) error
}

type digestEnvelope struct {
	Kind    uint8
	ChainID string
	Round   uint64
	Body    []byte
}

// Digest returns the canonical hash of the proof. The response body is RLP
// encoded and hashed together with its chain and round.
func Digest(p Proof) (common.Hash, error) {
	if p.Response == nil {
		return common.Hash{}, ErrMalformedProof
	}
	body, err := rlp.EncodeToBytes(p.Response)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}
	encoded, err := rlp.EncodeToBytes(digestEnvelope{
		Kind:    uint8(p.Response.Kind()),
		ChainID: p.ChainID,
		Round:   p.Round,
		Body:    body,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}
	return ethcrypto.Keccak256Hash(encoded), nil
}

// Hub is a local attestation client. Responses attested through the hub are
// recorded by digest; Verify accepts exactly the recorded proofs, so any
// tampering with a proof body after attestation is rejected.
type Hub struct {
	mu       sync.RWMutex
	round    uint64
	attested map[common.Hash]struct{}
}

// NewHub constructs an empty attestation hub.
func NewHub() *Hub {
	return &Hub{attested: make(map[common.Hash]struct{})}
}

// Attest records the response as verified for the chain and returns the
// resulting proof.
func (h *Hub) Attest(chainID string, response Response) (Proof, error) {
	if h == nil {
		return Proof{}, ErrNilVerifierHook
	}
	chainID = strings.TrimSpace(chainID)
	if chainID == "" {
		return Proof{}, ErrUnknownChain
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.round++
	proof := Proof{ChainID: chainID, Round: h.round, Response: response}
	digest, err := Digest(proof)
	if err != nil {
		return Proof{}, err
	}
	h.attested[digest] = struct{}{}
	return proof, nil
}

// Verify implements Verifier.
func (h *Hub) Verify(p Proof) error {
	if h == nil {
		return ErrNilVerifierHook
	}
	digest, err := Digest(p)
	if err != nil {
		return err
	}
	h.mu.RLock()
	_, ok := h.attested[digest]
	h.mu.RUnlock()
	if !ok {
		return ErrNotAttested
	}
	return nil
}
