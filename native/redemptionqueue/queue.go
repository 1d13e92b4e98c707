package redemptionqueue

import (
	"errors"
	"fmt"
)

var (
	ErrTicketNotFound = errors.New("redemption queue: ticket not found")
	ErrZeroValue      = errors.New("redemption queue: zero ticket value")
	ErrNilStore       = errors.New("redemption queue: store not configured")
)

// Ticket is one unit of redeemable backing owned by an agent. Tickets form a
// global list in creation order and a per-agent list; zero ids terminate both.
type Ticket struct {
	ID           uint64
	AgentID      uint64
	ValueAMG     uint64
	Prev         uint64
	Next         uint64
	PrevForAgent uint64
	NextForAgent uint64
}

// Clone returns a copy of the ticket.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

// Pointers locate the ends of a ticket list. NextID is only maintained on the
// global list.
type Pointers struct {
	First  uint64
	Last   uint64
	NextID uint64
}

// Store persists tickets and list pointers.
type Store interface {
	Ticket(id uint64) (*Ticket, bool, error)
	PutTicket(*Ticket) error
	DeleteTicket(id uint64) error
	QueuePointers() (Pointers, error)
	PutQueuePointers(Pointers) error
	AgentQueuePointers(agentID uint64) (Pointers, error)
	PutAgentQueuePointers(agentID uint64, p Pointers) error
}

// Queue is the FIFO of redemption tickets spanning all agents. Queue holds no
// state of its own; callers serialize access.
type Queue struct {
	store Store
}

// New wraps a store as a queue.
func New(store Store) *Queue {
	return &Queue{store: store}
}

// Get loads a ticket by id.
func (q *Queue) Get(id uint64) (*Ticket, error) {
	if q == nil || q.store == nil {
		return nil, ErrNilStore
	}
	ticket, ok, err := q.store.Ticket(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrTicketNotFound, id)
	}
	return ticket, nil
}

// First returns the oldest ticket in the queue.
func (q *Queue) First() (*Ticket, bool, error) {
	if q == nil || q.store == nil {
		return nil, false, ErrNilStore
	}
	ptrs, err := q.store.QueuePointers()
	if err != nil {
		return nil, false, err
	}
	if ptrs.First == 0 {
		return nil, false, nil
	}
	ticket, err := q.Get(ptrs.First)
	if err != nil {
		return nil, false, err
	}
	return ticket, true, nil
}

// FirstForAgent returns the agent's oldest ticket.
func (q *Queue) FirstForAgent(agentID uint64) (*Ticket, bool, error) {
	if q == nil || q.store == nil {
		return nil, false, ErrNilStore
	}
	ptrs, err := q.store.AgentQueuePointers(agentID)
	if err != nil {
		return nil, false, err
	}
	if ptrs.First == 0 {
		return nil, false, nil
	}
	ticket, err := q.Get(ptrs.First)
	if err != nil {
		return nil, false, err
	}
	return ticket, true, nil
}

// Push appends value for the agent. When the last ticket of the queue belongs
// to the same agent the value is merged into it instead.
func (q *Queue) Push(agentID uint64, valueAMG uint64) (ticket *Ticket, merged bool, err error) {
	if q == nil || q.store == nil {
		return nil, false, ErrNilStore
	}
	if valueAMG == 0 {
		return nil, false, ErrZeroValue
	}
	ptrs, err := q.store.QueuePointers()
	if err != nil {
		return nil, false, err
	}
	if ptrs.Last != 0 {
		last, err := q.Get(ptrs.Last)
		if err != nil {
			return nil, false, err
		}
		if last.AgentID == agentID {
			last.ValueAMG += valueAMG
			if err := q.store.PutTicket(last); err != nil {
				return nil, false, err
			}
			return last.Clone(), true, nil
		}
	}
	agentPtrs, err := q.store.AgentQueuePointers(agentID)
	if err != nil {
		return nil, false, err
	}
	if ptrs.NextID == 0 {
		ptrs.NextID = 1
	}
	ticket = &Ticket{
		ID:           ptrs.NextID,
		AgentID:      agentID,
		ValueAMG:     valueAMG,
		Prev:         ptrs.Last,
		PrevForAgent: agentPtrs.Last,
	}
	ptrs.NextID++
	if ptrs.Last != 0 {
		if err := q.relink(ptrs.Last, func(t *Ticket) { t.Next = ticket.ID }); err != nil {
			return nil, false, err
		}
	} else {
		ptrs.First = ticket.ID
	}
	ptrs.Last = ticket.ID
	if agentPtrs.Last != 0 {
		if err := q.relink(agentPtrs.Last, func(t *Ticket) { t.NextForAgent = ticket.ID }); err != nil {
			return nil, false, err
		}
	} else {
		agentPtrs.First = ticket.ID
	}
	agentPtrs.Last = ticket.ID
	if err := q.store.PutTicket(ticket); err != nil {
		return nil, false, err
	}
	if err := q.store.PutQueuePointers(ptrs); err != nil {
		return nil, false, err
	}
	if err := q.store.PutAgentQueuePointers(agentID, agentPtrs); err != nil {
		return nil, false, err
	}
	return ticket.Clone(), false, nil
}

// SetValue updates the value of a ticket in place.
func (q *Queue) SetValue(id uint64, valueAMG uint64) error {
	if valueAMG == 0 {
		return ErrZeroValue
	}
	return q.relink(id, func(t *Ticket) { t.ValueAMG = valueAMG })
}

// Remove unlinks and deletes a ticket from both the global and the agent
// list.
func (q *Queue) Remove(id uint64) error {
	ticket, err := q.Get(id)
	if err != nil {
		return err
	}
	ptrs, err := q.store.QueuePointers()
	if err != nil {
		return err
	}
	agentPtrs, err := q.store.AgentQueuePointers(ticket.AgentID)
	if err != nil {
		return err
	}
	if ticket.Prev != 0 {
		if err := q.relink(ticket.Prev, func(t *Ticket) { t.Next = ticket.Next }); err != nil {
			return err
		}
	} else {
		ptrs.First = ticket.Next
	}
	if ticket.Next != 0 {
		if err := q.relink(ticket.Next, func(t *Ticket) { t.Prev = ticket.Prev }); err != nil {
			return err
		}
	} else {
		ptrs.Last = ticket.Prev
	}
	if ticket.PrevForAgent != 0 {
		if err := q.relink(ticket.PrevForAgent, func(t *Ticket) { t.NextForAgent = ticket.NextForAgent }); err != nil {
			return err
		}
	} else {
		agentPtrs.First = ticket.NextForAgent
	}
	if ticket.NextForAgent != 0 {
		if err := q.relink(ticket.NextForAgent, func(t *Ticket) { t.PrevForAgent = ticket.PrevForAgent }); err != nil {
			return err
		}
	} else {
		agentPtrs.Last = ticket.PrevForAgent
	}
	if err := q.store.DeleteTicket(id); err != nil {
		return err
	}
	if err := q.store.PutQueuePointers(ptrs); err != nil {
		return err
	}
	return q.store.PutAgentQueuePointers(ticket.AgentID, agentPtrs)
}

func (q *Queue) relink(id uint64, update func(*Ticket)) error {
	ticket, err := q.Get(id)
	if err != nil {
		return err
	}
	update(ticket)
	return q.store.PutTicket(ticket)
}

// Tickets lists all tickets in queue order.
func (q *Queue) Tickets() ([]*Ticket, error) {
	ticket, ok, err := q.First()
	if err != nil || !ok {
		return nil, err
	}
	out := []*Ticket{ticket}
	for ticket.Next != 0 {
		if ticket, err = q.Get(ticket.Next); err != nil {
			return nil, err
		}
		out = append(out, ticket)
	}
	return out, nil
}

// AgentTickets lists an agent's tickets in creation order.
func (q *Queue) AgentTickets(agentID uint64) ([]*Ticket, error) {
	ticket, ok, err := q.FirstForAgent(agentID)
	if err != nil || !ok {
		return nil, err
	}
	out := []*Ticket{ticket}
	for ticket.NextForAgent != 0 {
		if ticket, err = q.Get(ticket.NextForAgent); err != nil {
			return nil, err
		}
		out = append(out, ticket)
	}
	return out, nil
}

// AgentValue sums the value of an agent's tickets.
func (q *Queue) AgentValue(agentID uint64) (uint64, error) {
	tickets, err := q.AgentTickets(agentID)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, t := range tickets {
		total += t.ValueAMG
	}
	return total, nil
}
