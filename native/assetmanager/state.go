package assetmanager

import (
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"fassetbridge/native/redemptionqueue"
)

// State is the persistence backend of the engine. Reads return copies; all
// writes of one operation arrive as a single ChangeSet that must be applied
// atomically.
type State interface {
	Globals() (*Globals, error)
	Agent(id uint64) (*Agent, bool, error)
	AgentIDs() ([]uint64, error)
	Reservation(id uint64) (*CollateralReservation, bool, error)
	Redemption(id uint64) (*RedemptionRequest, bool, error)
	Ticket(id uint64) (*redemptionqueue.Ticket, bool, error)
	QueuePointers() (redemptionqueue.Pointers, error)
	AgentQueuePointers(agentID uint64) (redemptionqueue.Pointers, error)
	Balance(token string, holder [20]byte) (*big.Int, error)
	PaymentConfirmed(txID common.Hash) (bool, error)
	Apply(*ChangeSet) error
}

// BalanceEntry is the new absolute balance of a holder for a token.
type BalanceEntry struct {
	Token  string
	Holder [20]byte
	Amount *big.Int
}

// ChangeSet carries every write of one committed operation.
type ChangeSet struct {
	Globals            *Globals
	Agents             []*Agent
	DeletedAgents      []uint64
	Reservations       []*CollateralReservation
	Redemptions        []*RedemptionRequest
	Tickets            []*redemptionqueue.Ticket
	DeletedTickets     []uint64
	QueuePointers      *redemptionqueue.Pointers
	AgentQueuePointers map[uint64]redemptionqueue.Pointers
	Balances           []BalanceEntry
	ConfirmedPayments  []common.Hash
}

// Empty reports whether the change set carries no writes.
func (cs *ChangeSet) Empty() bool {
	if cs == nil {
		return true
	}
	return cs.Globals == nil && len(cs.Agents) == 0 && len(cs.DeletedAgents) == 0 &&
		len(cs.Reservations) == 0 && len(cs.Redemptions) == 0 && len(cs.Tickets) == 0 &&
		len(cs.DeletedTickets) == 0 && cs.QueuePointers == nil && len(cs.AgentQueuePointers) == 0 &&
		len(cs.Balances) == 0 && len(cs.ConfirmedPayments) == 0
}

type balanceKey struct {
	token  string
	holder [20]byte
}

func newBalanceKey(token string, holder [20]byte) balanceKey {
	return balanceKey{token: strings.ToUpper(strings.TrimSpace(token)), holder: holder}
}

// MemoryState is a map backed State. It is safe for concurrent use.
type MemoryState struct {
	mu           sync.RWMutex
	globals      *Globals
	agents       map[uint64]*Agent
	reservations map[uint64]*CollateralReservation
	redemptions  map[uint64]*RedemptionRequest
	tickets      map[uint64]*redemptionqueue.Ticket
	queue        redemptionqueue.Pointers
	agentQueues  map[uint64]redemptionqueue.Pointers
	balances     map[balanceKey]*big.Int
	confirmed    map[common.Hash]struct{}
}

// NewMemoryState constructs an empty in-memory state.
func NewMemoryState() *MemoryState {
	return &MemoryState{
		globals:      &Globals{},
		agents:       make(map[uint64]*Agent),
		reservations: make(map[uint64]*CollateralReservation),
		redemptions:  make(map[uint64]*RedemptionRequest),
		tickets:      make(map[uint64]*redemptionqueue.Ticket),
		agentQueues:  make(map[uint64]redemptionqueue.Pointers),
		balances:     make(map[balanceKey]*big.Int),
		confirmed:    make(map[common.Hash]struct{}),
	}
}

func (m *MemoryState) Globals() (*Globals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.globals.Clone(), nil
}

func (m *MemoryState) Agent(id uint64) (*Agent, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agent, ok := m.agents[id]
	if !ok {
		return nil, false, nil
	}
	return agent.Clone(), true, nil
}

func (m *MemoryState) AgentIDs() ([]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]uint64, 0, len(m.agents))
	for id := range m.agents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *MemoryState) Reservation(id uint64) (*CollateralReservation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	crt, ok := m.reservations[id]
	if !ok {
		return nil, false, nil
	}
	return crt.Clone(), true, nil
}

func (m *MemoryState) Redemption(id uint64) (*RedemptionRequest, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.redemptions[id]
	if !ok {
		return nil, false, nil
	}
	return req.Clone(), true, nil
}

func (m *MemoryState) Ticket(id uint64) (*redemptionqueue.Ticket, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ticket, ok := m.tickets[id]
	if !ok {
		return nil, false, nil
	}
	return ticket.Clone(), true, nil
}

func (m *MemoryState) QueuePointers() (redemptionqueue.Pointers, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queue, nil
}

func (m *MemoryState) AgentQueuePointers(agentID uint64) (redemptionqueue.Pointers, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.agentQueues[agentID], nil
}

func (m *MemoryState) Balance(token string, holder [20]byte) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneBigInt(m.balances[newBalanceKey(token, holder)]), nil
}

func (m *MemoryState) PaymentConfirmed(txID common.Hash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.confirmed[txID]
	return ok, nil
}

// Apply implements State.
func (m *MemoryState) Apply(cs *ChangeSet) error {
	if cs.Empty() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cs.Globals != nil {
		m.globals = cs.Globals.Clone()
	}
	for _, agent := range cs.Agents {
		m.agents[agent.ID] = agent.Clone()
	}
	for _, id := range cs.DeletedAgents {
		delete(m.agents, id)
		delete(m.agentQueues, id)
	}
	for _, crt := range cs.Reservations {
		m.reservations[crt.ID] = crt.Clone()
	}
	for _, req := range cs.Redemptions {
		m.redemptions[req.ID] = req.Clone()
	}
	for _, ticket := range cs.Tickets {
		m.tickets[ticket.ID] = ticket.Clone()
	}
	for _, id := range cs.DeletedTickets {
		delete(m.tickets, id)
	}
	if cs.QueuePointers != nil {
		m.queue = *cs.QueuePointers
	}
	for id, ptrs := range cs.AgentQueuePointers {
		m.agentQueues[id] = ptrs
	}
	for _, entry := range cs.Balances {
		m.balances[newBalanceKey(entry.Token, entry.Holder)] = cloneBigInt(entry.Amount)
	}
	for _, txID := range cs.ConfirmedPayments {
		m.confirmed[txID] = struct{}{}
	}
	return nil
}
