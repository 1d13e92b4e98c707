package assetmanager

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"fassetbridge/core/types"
	"fassetbridge/native/redemptionqueue"
)

// txn buffers every read and write of one engine operation. Agents are
// locked on first access and stay locked until release. Shared cells (token
// balances, global totals) are kept as deltas and folded into the latest
// stored values under the commit lock.
type txn struct {
	e   *Engine
	now uint64

	globals       *Globals
	lotChanged    bool
	blockChanged  bool
	mintedDelta   int64
	reservedDelta int64

	locked        map[uint64]*sync.Mutex
	lockOrder     []uint64
	agents        map[uint64]*Agent
	createdAgents map[uint64]bool
	deletedAgents map[uint64]bool
	statusBefore  map[uint64]AgentStatus

	reservations map[uint64]*CollateralReservation
	redemptions  map[uint64]*RedemptionRequest

	tickets   map[uint64]*redemptionqueue.Ticket
	queuePtrs *redemptionqueue.Pointers
	agentPtrs map[uint64]redemptionqueue.Pointers

	balances  map[balanceKey]*big.Int
	confirmed map[common.Hash]struct{}

	prices map[string]*collateralPrice

	events      []*types.Event
	dustChanges []DustChange
	volume      map[string]*big.Int
}

func (e *Engine) begin() (*txn, error) {
	g, err := e.state.Globals()
	if err != nil {
		return nil, err
	}
	if g.LotSizeAMG == 0 {
		g.LotSizeAMG = e.settings.LotSizeAMG
	}
	return &txn{
		e:             e,
		now:           e.now(),
		globals:       g,
		locked:        make(map[uint64]*sync.Mutex),
		agents:        make(map[uint64]*Agent),
		createdAgents: make(map[uint64]bool),
		deletedAgents: make(map[uint64]bool),
		statusBefore:  make(map[uint64]AgentStatus),
		reservations:  make(map[uint64]*CollateralReservation),
		redemptions:   make(map[uint64]*RedemptionRequest),
		tickets:       make(map[uint64]*redemptionqueue.Ticket),
		agentPtrs:     make(map[uint64]redemptionqueue.Pointers),
		balances:      make(map[balanceKey]*big.Int),
		confirmed:     make(map[common.Hash]struct{}),
		prices:        make(map[string]*collateralPrice),
		volume:        make(map[string]*big.Int),
	}, nil
}

func (tx *txn) release() {
	for i := len(tx.lockOrder) - 1; i >= 0; i-- {
		tx.locked[tx.lockOrder[i]].Unlock()
	}
	tx.lockOrder = nil
	tx.locked = map[uint64]*sync.Mutex{}
}

func (tx *txn) settings() Settings { return tx.e.settings }

func (tx *txn) lotSize() uint64 { return tx.globals.LotSizeAMG }

func (tx *txn) lock(agentID uint64) {
	if _, ok := tx.locked[agentID]; ok {
		return
	}
	mu := tx.e.agentLock(agentID)
	mu.Lock()
	tx.locked[agentID] = mu
	tx.lockOrder = append(tx.lockOrder, agentID)
}

// agent locks and loads an agent.
func (tx *txn) agent(id uint64) (*Agent, error) {
	if agent, ok := tx.agents[id]; ok {
		if tx.deletedAgents[id] {
			return nil, ErrAgentNotFound
		}
		return agent, nil
	}
	if id == 0 {
		return nil, ErrAgentNotFound
	}
	tx.lock(id)
	agent, ok, err := tx.e.state.Agent(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAgentNotFound
	}
	if agent.UnderlyingBalanceUBA == nil {
		agent.UnderlyingBalanceUBA = big.NewInt(0)
	}
	if agent.PoolTokenSupply == nil {
		agent.PoolTokenSupply = big.NewInt(0)
	}
	tx.agents[id] = agent
	tx.statusBefore[id] = agent.Status
	return agent, nil
}

func (tx *txn) ownedAgent(id uint64, caller [20]byte) (*Agent, error) {
	agent, err := tx.agent(id)
	if err != nil {
		return nil, err
	}
	if agent.Owner != caller {
		return nil, ErrOnlyAgentVaultOwner
	}
	return agent, nil
}

func (tx *txn) putNewAgent(agent *Agent) {
	tx.lock(agent.ID)
	tx.agents[agent.ID] = agent
	tx.createdAgents[agent.ID] = true
}

func (tx *txn) deleteAgent(id uint64) {
	tx.deletedAgents[id] = true
}

// reservation loads a collateral reservation after locking its agent.
func (tx *txn) reservation(id uint64) (*CollateralReservation, *Agent, error) {
	if crt, ok := tx.reservations[id]; ok {
		agent, err := tx.agent(crt.AgentID)
		return crt, agent, err
	}
	peek, ok, err := tx.e.state.Reservation(id)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrInvalidCrtID
	}
	agent, err := tx.agent(peek.AgentID)
	if err != nil {
		return nil, nil, err
	}
	crt, _, err := tx.e.state.Reservation(id)
	if err != nil {
		return nil, nil, err
	}
	if crt.ReservationFeeWei == nil {
		crt.ReservationFeeWei = big.NewInt(0)
	}
	if crt.ExecutorFeeWei == nil {
		crt.ExecutorFeeWei = big.NewInt(0)
	}
	tx.reservations[id] = crt
	return crt, agent, nil
}

func (tx *txn) putReservation(crt *CollateralReservation) { tx.reservations[crt.ID] = crt }

// redemption loads a redemption request after locking its agent.
func (tx *txn) redemption(id uint64) (*RedemptionRequest, *Agent, error) {
	if req, ok := tx.redemptions[id]; ok {
		agent, err := tx.agent(req.AgentID)
		return req, agent, err
	}
	peek, ok, err := tx.e.state.Redemption(id)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrInvalidRequestID
	}
	agent, err := tx.agent(peek.AgentID)
	if err != nil {
		return nil, nil, err
	}
	req, _, err := tx.e.state.Redemption(id)
	if err != nil {
		return nil, nil, err
	}
	if req.ExecutorFeeWei == nil {
		req.ExecutorFeeWei = big.NewInt(0)
	}
	tx.redemptions[id] = req
	return req, agent, nil
}

func (tx *txn) putRedemption(req *RedemptionRequest) { tx.redemptions[req.ID] = req }

// Ticket implements redemptionqueue.Store.
func (tx *txn) Ticket(id uint64) (*redemptionqueue.Ticket, bool, error) {
	if ticket, ok := tx.tickets[id]; ok {
		if ticket == nil {
			return nil, false, nil
		}
		return ticket.Clone(), true, nil
	}
	return tx.e.state.Ticket(id)
}

// PutTicket implements redemptionqueue.Store.
func (tx *txn) PutTicket(ticket *redemptionqueue.Ticket) error {
	tx.tickets[ticket.ID] = ticket.Clone()
	return nil
}

// DeleteTicket implements redemptionqueue.Store.
func (tx *txn) DeleteTicket(id uint64) error {
	tx.tickets[id] = nil
	return nil
}

// QueuePointers implements redemptionqueue.Store.
func (tx *txn) QueuePointers() (redemptionqueue.Pointers, error) {
	if tx.queuePtrs != nil {
		return *tx.queuePtrs, nil
	}
	return tx.e.state.QueuePointers()
}

// PutQueuePointers implements redemptionqueue.Store.
func (tx *txn) PutQueuePointers(p redemptionqueue.Pointers) error {
	tx.queuePtrs = &p
	return nil
}

// AgentQueuePointers implements redemptionqueue.Store.
func (tx *txn) AgentQueuePointers(agentID uint64) (redemptionqueue.Pointers, error) {
	if p, ok := tx.agentPtrs[agentID]; ok {
		return p, nil
	}
	return tx.e.state.AgentQueuePointers(agentID)
}

// PutAgentQueuePointers implements redemptionqueue.Store.
func (tx *txn) PutAgentQueuePointers(agentID uint64, p redemptionqueue.Pointers) error {
	tx.agentPtrs[agentID] = p
	return nil
}

func (tx *txn) queue() *redemptionqueue.Queue { return redemptionqueue.New(tx) }

// balance returns the stored balance adjusted by this transaction.
func (tx *txn) balance(token string, holder [20]byte) (*big.Int, error) {
	stored, err := tx.e.state.Balance(token, holder)
	if err != nil {
		return nil, err
	}
	if delta, ok := tx.balances[newBalanceKey(token, holder)]; ok {
		stored.Add(stored, delta)
	}
	return stored, nil
}

func (tx *txn) adjust(token string, holder [20]byte, delta *big.Int) {
	key := newBalanceKey(token, holder)
	current, ok := tx.balances[key]
	if !ok {
		current = big.NewInt(0)
	}
	tx.balances[key] = current.Add(current, delta)
}

func (tx *txn) transfer(token string, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return invariantf("negative transfer of %s", token)
	}
	if err := tx.requireBalance(token, from, amount); err != nil {
		return err
	}
	tx.adjust(token, from, new(big.Int).Neg(amount))
	tx.adjust(token, to, amount)
	return nil
}

func (tx *txn) mint(token string, to [20]byte, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	tx.adjust(token, to, amount)
}

func (tx *txn) burn(token string, from [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if err := tx.requireBalance(token, from, amount); err != nil {
		return err
	}
	tx.adjust(token, from, new(big.Int).Neg(amount))
	return nil
}

func (tx *txn) requireBalance(token string, holder [20]byte, amount *big.Int) error {
	have, err := tx.balance(token, holder)
	if err != nil {
		return err
	}
	if have.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s of %x has %s, needs %s", ErrInsufficientBalance, token, holder[:4], have, amount)
	}
	return nil
}

func (tx *txn) paymentConfirmed(txID common.Hash) (bool, error) {
	if _, ok := tx.confirmed[txID]; ok {
		return true, nil
	}
	return tx.e.state.PaymentConfirmed(txID)
}

func (tx *txn) confirmPayment(txID common.Hash) error {
	done, err := tx.paymentConfirmed(txID)
	if err != nil {
		return err
	}
	if done {
		return ErrPaymentAlreadyConfirmed
	}
	tx.confirmed[txID] = struct{}{}
	return nil
}

func (tx *txn) changeMinted(delta int64)   { tx.mintedDelta += delta }
func (tx *txn) changeReserved(delta int64) { tx.reservedDelta += delta }

// checkMintingCap verifies that adding amg to the minted and reserved totals
// stays within the cap.
func (tx *txn) checkMintingCap(amg uint64) error {
	limit := tx.settings().MintingCapAMG
	if limit == 0 {
		return nil
	}
	total := int64(tx.globals.TotalMintedAMG+tx.globals.TotalReservedAMG) + tx.mintedDelta + tx.reservedDelta
	if total < 0 {
		total = 0
	}
	if uint64(total)+amg > limit {
		return ErrMintingCapExceeded
	}
	return nil
}

func (tx *txn) emit(evt *types.Event) { tx.events = append(tx.events, evt) }

func (tx *txn) addVolume(kind string, uba *big.Int) {
	current, ok := tx.volume[kind]
	if !ok {
		current = big.NewInt(0)
	}
	tx.volume[kind] = current.Add(current, uba)
}

// commit folds the transaction into the state under the commit lock.
func (tx *txn) commit() error {
	e := tx.e
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	cs := &ChangeSet{}
	for key, delta := range tx.balances {
		if delta.Sign() == 0 {
			continue
		}
		stored, err := e.state.Balance(key.token, key.holder)
		if err != nil {
			return err
		}
		stored.Add(stored, delta)
		if stored.Sign() < 0 {
			return fmt.Errorf("%w: %s", ErrInsufficientBalance, key.token)
		}
		cs.Balances = append(cs.Balances, BalanceEntry{Token: key.token, Holder: key.holder, Amount: stored})
	}
	sort.Slice(cs.Balances, func(i, j int) bool {
		if cs.Balances[i].Token != cs.Balances[j].Token {
			return cs.Balances[i].Token < cs.Balances[j].Token
		}
		return string(cs.Balances[i].Holder[:]) < string(cs.Balances[j].Holder[:])
	})
	for txID := range tx.confirmed {
		done, err := e.state.PaymentConfirmed(txID)
		if err != nil {
			return err
		}
		if done {
			return ErrPaymentAlreadyConfirmed
		}
		cs.ConfirmedPayments = append(cs.ConfirmedPayments, txID)
	}

	if tx.mintedDelta != 0 || tx.reservedDelta != 0 || tx.lotChanged || tx.blockChanged {
		g, err := e.state.Globals()
		if err != nil {
			return err
		}
		minted := int64(g.TotalMintedAMG) + tx.mintedDelta
		reserved := int64(g.TotalReservedAMG) + tx.reservedDelta
		if minted < 0 || reserved < 0 {
			return invariantf("global totals underflow")
		}
		if limit := e.settings.MintingCapAMG; limit > 0 && tx.mintedDelta+tx.reservedDelta > 0 &&
			uint64(minted+reserved) > limit {
			return ErrMintingCapExceeded
		}
		g.TotalMintedAMG = uint64(minted)
		g.TotalReservedAMG = uint64(reserved)
		if tx.lotChanged || g.LotSizeAMG == 0 {
			g.LotSizeAMG = tx.globals.LotSizeAMG
		}
		if tx.blockChanged {
			g.CurrentUnderlyingBlock = maxU64(g.CurrentUnderlyingBlock, tx.globals.CurrentUnderlyingBlock)
			g.CurrentUnderlyingBlockTimestamp = maxU64(g.CurrentUnderlyingBlockTimestamp, tx.globals.CurrentUnderlyingBlockTimestamp)
			g.CurrentUnderlyingBlockUpdatedAt = tx.globals.CurrentUnderlyingBlockUpdatedAt
		}
		cs.Globals = g
	}

	for _, id := range sortedKeys(tx.agents) {
		if tx.deletedAgents[id] {
			cs.DeletedAgents = append(cs.DeletedAgents, id)
			continue
		}
		cs.Agents = append(cs.Agents, tx.agents[id])
	}
	for _, id := range sortedKeys(tx.reservations) {
		cs.Reservations = append(cs.Reservations, tx.reservations[id])
	}
	for _, id := range sortedKeys(tx.redemptions) {
		cs.Redemptions = append(cs.Redemptions, tx.redemptions[id])
	}
	for _, id := range sortedKeys(tx.tickets) {
		if ticket := tx.tickets[id]; ticket != nil {
			cs.Tickets = append(cs.Tickets, ticket)
		} else {
			cs.DeletedTickets = append(cs.DeletedTickets, id)
		}
	}
	cs.QueuePointers = tx.queuePtrs
	if len(tx.agentPtrs) > 0 {
		cs.AgentQueuePointers = tx.agentPtrs
	}
	return e.state.Apply(cs)
}

func (tx *txn) publishMetrics() {
	m := tx.e.metrics
	for id, agent := range tx.agents {
		from := ""
		if before, ok := tx.statusBefore[id]; ok {
			from = before.String()
		}
		to := agent.Status.String()
		if tx.deletedAgents[id] {
			to = ""
		}
		m.AgentStatusChanged(from, to)
	}
	for kind, uba := range tx.volume {
		m.AddVolume(kind, uba)
	}
}

func sortedKeys[V any](m map[uint64]V) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
