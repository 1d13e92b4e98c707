package redemptionqueue

import (
	"testing"
)

type mockStore struct {
	tickets map[uint64]*Ticket
	ptrs    Pointers
	agents  map[uint64]Pointers
}

func newMockStore() *mockStore {
	return &mockStore{tickets: make(map[uint64]*Ticket), agents: make(map[uint64]Pointers)}
}

func (m *mockStore) Ticket(id uint64) (*Ticket, bool, error) {
	t, ok := m.tickets[id]
	if !ok {
		return nil, false, nil
	}
	return t.Clone(), true, nil
}

func (m *mockStore) PutTicket(t *Ticket) error {
	m.tickets[t.ID] = t.Clone()
	return nil
}

func (m *mockStore) DeleteTicket(id uint64) error {
	delete(m.tickets, id)
	return nil
}

func (m *mockStore) QueuePointers() (Pointers, error) { return m.ptrs, nil }

func (m *mockStore) PutQueuePointers(p Pointers) error {
	m.ptrs = p
	return nil
}

func (m *mockStore) AgentQueuePointers(agentID uint64) (Pointers, error) {
	return m.agents[agentID], nil
}

func (m *mockStore) PutAgentQueuePointers(agentID uint64, p Pointers) error {
	m.agents[agentID] = p
	return nil
}

func values(t *testing.T, q *Queue) []uint64 {
	t.Helper()
	tickets, err := q.Tickets()
	if err != nil {
		t.Fatalf("tickets: %v", err)
	}
	out := make([]uint64, 0, len(tickets))
	for _, ticket := range tickets {
		out = append(out, ticket.AgentID*1000+ticket.ValueAMG)
	}
	return out
}

func equal(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPushMergesIntoTailOfSameAgent(t *testing.T) {
	q := New(newMockStore())
	if _, merged, err := q.Push(1, 5); err != nil || merged {
		t.Fatalf("push: merged=%v err=%v", merged, err)
	}
	ticket, merged, err := q.Push(1, 3)
	if err != nil || !merged {
		t.Fatalf("expected merge, merged=%v err=%v", merged, err)
	}
	if ticket.ValueAMG != 8 {
		t.Fatalf("unexpected merged value %d", ticket.ValueAMG)
	}
	if _, merged, _ := q.Push(2, 4); merged {
		t.Fatalf("different agent must not merge")
	}
	if _, merged, _ := q.Push(1, 2); merged {
		t.Fatalf("agent 1 is no longer at the tail")
	}
	if got := values(t, q); !equal(got, []uint64{1008, 2004, 1002}) {
		t.Fatalf("unexpected queue %v", got)
	}
	own, err := q.AgentTickets(1)
	if err != nil || len(own) != 2 {
		t.Fatalf("agent tickets: %v %v", own, err)
	}
	total, _ := q.AgentValue(1)
	if total != 10 {
		t.Fatalf("agent value %d", total)
	}
	if _, _, err := q.Push(3, 0); err != ErrZeroValue {
		t.Fatalf("expected ErrZeroValue, got %v", err)
	}
}

func TestRemoveRelinksBothLists(t *testing.T) {
	q := New(newMockStore())
	a1, _, _ := q.Push(1, 1)
	b1, _, _ := q.Push(2, 1)
	a2, _, _ := q.Push(1, 2)
	b2, _, _ := q.Push(2, 2)

	if err := q.Remove(a2.ID); err != nil {
		t.Fatalf("remove middle: %v", err)
	}
	if got := values(t, q); !equal(got, []uint64{1001, 2001, 2002}) {
		t.Fatalf("unexpected queue %v", got)
	}
	own, _ := q.AgentTickets(1)
	if len(own) != 1 || own[0].ID != a1.ID || own[0].NextForAgent != 0 {
		t.Fatalf("agent list not relinked: %+v", own)
	}
	if err := q.Remove(a1.ID); err != nil {
		t.Fatalf("remove head: %v", err)
	}
	first, ok, _ := q.First()
	if !ok || first.ID != b1.ID || first.Prev != 0 {
		t.Fatalf("unexpected head %+v", first)
	}
	if _, ok, _ := q.FirstForAgent(1); ok {
		t.Fatalf("agent 1 should have no tickets")
	}
	if err := q.Remove(b2.ID); err != nil {
		t.Fatalf("remove tail: %v", err)
	}
	// a new push for agent 2 merges into the remaining tail
	if _, merged, _ := q.Push(2, 5); !merged {
		t.Fatalf("expected merge into remaining agent 2 ticket")
	}
	if got := values(t, q); !equal(got, []uint64{2006}) {
		t.Fatalf("unexpected queue %v", got)
	}
	if err := q.Remove(999); err == nil {
		t.Fatalf("expected missing ticket error")
	}
}

func TestSetValue(t *testing.T) {
	q := New(newMockStore())
	ticket, _, _ := q.Push(7, 9)
	if err := q.SetValue(ticket.ID, 4); err != nil {
		t.Fatalf("set value: %v", err)
	}
	got, _ := q.Get(ticket.ID)
	if got.ValueAMG != 4 {
		t.Fatalf("unexpected value %d", got.ValueAMG)
	}
	if err := q.SetValue(ticket.ID, 0); err != ErrZeroValue {
		t.Fatalf("expected ErrZeroValue, got %v", err)
	}
}
