package mockchain

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"fassetbridge/native/attestation"
)

var (
	ErrInsufficientFunds   = errors.New("mockchain: insufficient funds")
	ErrTransactionNotFound = errors.New("mockchain: transaction not found")
	ErrInvalidTransaction  = errors.New("mockchain: invalid transaction")
)

// Transfer is one input or output of a transaction.
type Transfer struct {
	Address string
	Value   *big.Int
}

// Transaction is a simulated underlying chain transaction with an optional
// payment reference (memo).
type Transaction struct {
	ID        common.Hash
	Inputs    []Transfer
	Outputs   []Transfer
	Reference common.Hash
	Status    uint8
}

// Block is a mined block of transactions.
type Block struct {
	Number       uint64
	Timestamp    uint64
	Transactions []*Transaction
}

type txLocation struct {
	block uint64
	index int
}

// Chain is an in-memory underlying chain. Every transaction is mined in its
// own block immediately, and empty blocks can be mined to advance time.
type Chain struct {
	mu                 sync.RWMutex
	blocks             []*Block
	index              map[common.Hash]txLocation
	balances           map[string]*big.Int
	nonce              uint64
	secondsPerBlock    uint64
	finalizationBlocks uint64
}

// New creates a chain whose genesis block is at the supplied unix timestamp.
func New(genesisTimestamp uint64, secondsPerBlock uint64) *Chain {
	if secondsPerBlock == 0 {
		secondsPerBlock = 1
	}
	return &Chain{
		blocks:          []*Block{{Number: 0, Timestamp: genesisTimestamp}},
		index:           make(map[common.Hash]txLocation),
		balances:        make(map[string]*big.Int),
		secondsPerBlock: secondsPerBlock,
	}
}

// SetFinalizationBlocks configures how many blocks must follow a block before
// it can be attested.
func (c *Chain) SetFinalizationBlocks(n uint64) {
	c.mu.Lock()
	c.finalizationBlocks = n
	c.mu.Unlock()
}

// SecondsPerBlock reports the block interval.
func (c *Chain) SecondsPerBlock() uint64 { return c.secondsPerBlock }

// Mint credits an address out of thin air.
func (c *Chain) Mint(address string, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credit(address, amount)
}

// Balance returns the balance of an address.
func (c *Chain) Balance(address string) *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if bal, ok := c.balances[address]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// Height returns the number of the last mined block.
func (c *Chain) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return uint64(len(c.blocks) - 1)
}

// Timestamp returns the timestamp of the last mined block.
func (c *Chain) Timestamp() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1].Timestamp
}

// Block returns a copy of the block header and transaction list.
func (c *Chain) Block(number uint64) (*Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if number >= uint64(len(c.blocks)) {
		return nil, false
	}
	b := c.blocks[number]
	return &Block{Number: b.Number, Timestamp: b.Timestamp, Transactions: append([]*Transaction(nil), b.Transactions...)}, true
}

// Mine appends n empty blocks.
func (c *Chain) Mine(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < n; i++ {
		c.appendBlock(nil)
	}
}

// SkipTime mines enough empty blocks to advance the chain by at least the
// given number of seconds.
func (c *Chain) SkipTime(seconds uint64) {
	blocks := (seconds + c.secondsPerBlock - 1) / c.secondsPerBlock
	c.Mine(int(blocks))
}

// AddTransaction pays value from source to destination with the reference and
// mines it.
func (c *Chain) AddTransaction(source, destination string, value *big.Int, reference common.Hash) (common.Hash, error) {
	return c.AddMultiTransaction(
		[]Transfer{{Address: source, Value: value}},
		[]Transfer{{Address: destination, Value: value}},
		reference,
		attestation.PaymentSuccess,
	)
}

// AddMultiTransaction mines a transaction with arbitrary inputs and outputs.
// Failed transactions consume no value.
func (c *Chain) AddMultiTransaction(inputs, outputs []Transfer, reference common.Hash, status uint8) (common.Hash, error) {
	if len(inputs) == 0 {
		return common.Hash{}, ErrInvalidTransaction
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	totalIn := big.NewInt(0)
	totalOut := big.NewInt(0)
	for _, in := range inputs {
		if in.Value == nil || in.Value.Sign() < 0 {
			return common.Hash{}, ErrInvalidTransaction
		}
		totalIn.Add(totalIn, in.Value)
	}
	for _, out := range outputs {
		if out.Value == nil || out.Value.Sign() < 0 {
			return common.Hash{}, ErrInvalidTransaction
		}
		totalOut.Add(totalOut, out.Value)
	}
	if totalOut.Cmp(totalIn) > 0 {
		return common.Hash{}, ErrInvalidTransaction
	}
	if status == attestation.PaymentSuccess {
		for _, in := range inputs {
			if c.balanceOf(in.Address).Cmp(in.Value) < 0 {
				return common.Hash{}, fmt.Errorf("%w: %s", ErrInsufficientFunds, in.Address)
			}
		}
		for _, in := range inputs {
			c.credit(in.Address, new(big.Int).Neg(in.Value))
		}
		for _, out := range outputs {
			c.credit(out.Address, out.Value)
		}
	}
	c.nonce++
	tx := &Transaction{
		Inputs:    cloneTransfers(inputs),
		Outputs:   cloneTransfers(outputs),
		Reference: reference,
		Status:    status,
	}
	encoded, err := rlp.EncodeToBytes([]interface{}{c.nonce, tx.Inputs, tx.Outputs, tx.Reference, tx.Status})
	if err != nil {
		return common.Hash{}, err
	}
	tx.ID = ethcrypto.Keccak256Hash(encoded)
	c.appendBlock([]*Transaction{tx})
	return tx.ID, nil
}

// Transaction returns a mined transaction and the block containing it.
func (c *Chain) Transaction(id common.Hash) (*Transaction, *Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	loc, ok := c.index[id]
	if !ok {
		return nil, nil, ErrTransactionNotFound
	}
	block := c.blocks[loc.block]
	return block.Transactions[loc.index], block, nil
}

func (c *Chain) appendBlock(txs []*Transaction) {
	last := c.blocks[len(c.blocks)-1]
	block := &Block{
		Number:       last.Number + 1,
		Timestamp:    last.Timestamp + c.secondsPerBlock,
		Transactions: txs,
	}
	c.blocks = append(c.blocks, block)
	for i, tx := range txs {
		c.index[tx.ID] = txLocation{block: block.Number, index: i}
	}
}

func (c *Chain) balanceOf(address string) *big.Int {
	if bal, ok := c.balances[address]; ok {
		return bal
	}
	return big.NewInt(0)
}

func (c *Chain) credit(address string, amount *big.Int) {
	if amount == nil {
		return
	}
	c.balances[address] = new(big.Int).Add(c.balanceOf(address), amount)
}

func cloneTransfers(in []Transfer) []Transfer {
	out := make([]Transfer, len(in))
	for i, t := range in {
		out[i] = Transfer{Address: t.Address, Value: new(big.Int).Set(t.Value)}
	}
	return out
}

// netFlows returns the per-address net outflow (inputs minus outputs) of the
// transaction, and the sorted list of input addresses.
func netFlows(tx *Transaction) (map[string]*big.Int, []string) {
	flows := make(map[string]*big.Int)
	seen := make(map[string]struct{})
	var sources []string
	for _, in := range tx.Inputs {
		if _, ok := flows[in.Address]; !ok {
			flows[in.Address] = big.NewInt(0)
		}
		flows[in.Address].Add(flows[in.Address], in.Value)
		if _, ok := seen[in.Address]; !ok {
			seen[in.Address] = struct{}{}
			sources = append(sources, in.Address)
		}
	}
	for _, out := range tx.Outputs {
		if _, ok := flows[out.Address]; !ok {
			flows[out.Address] = big.NewInt(0)
		}
		flows[out.Address].Sub(flows[out.Address], out.Value)
	}
	sort.Strings(sources)
	return flows, sources
}
