// Package store persists the asset manager state in a key-value database.
package store

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	lru "github.com/hashicorp/golang-lru/v2"

	"fassetbridge/native/assetmanager"
	"fassetbridge/native/redemptionqueue"
	"fassetbridge/storage"
)

const defaultCacheSize = 1024

var (
	globalsKey          = []byte("fasset/globals")
	queuePointersKey    = []byte("fasset/queue")
	agentPrefix         = []byte("fasset/agent/")
	reservationPrefix   = []byte("fasset/reservation/")
	redemptionPrefix    = []byte("fasset/redemption/")
	ticketPrefix        = []byte("fasset/ticket/")
	agentQueuePrefix    = []byte("fasset/agent-queue/")
	balancePrefix       = []byte("fasset/balance/")
	confirmedPaymentKey = []byte("fasset/confirmed/")
)

func idKey(prefix []byte, id uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], id)
	return key
}

func balanceKey(token string, holder [20]byte) []byte {
	symbol := strings.ToUpper(strings.TrimSpace(token))
	return []byte(string(balancePrefix) + symbol + "/" + hex.EncodeToString(holder[:]))
}

func confirmedKey(txID common.Hash) []byte {
	return append(append([]byte(nil), confirmedPaymentKey...), txID.Bytes()...)
}

// Store is an assetmanager.State over a storage.Database. Agents are the
// hottest records and are kept in an LRU cache in front of the database.
type Store struct {
	mu     sync.RWMutex
	db     storage.Database
	agents *lru.Cache[uint64, *assetmanager.Agent]
}

var _ assetmanager.State = (*Store)(nil)

// New wraps db. A non-positive cacheSize selects the default.
func New(db storage.Database, cacheSize int) (*Store, error) {
	if db == nil {
		return nil, errors.New("store: database required")
	}
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[uint64, *assetmanager.Agent](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, agents: cache}, nil
}

func (s *Store) get(key []byte, out interface{}) (bool, error) {
	raw, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("store: decode %q: %w", key, err)
	}
	return true, nil
}

func put(batch storage.Batch, key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("store: encode %q: %w", key, err)
	}
	batch.Put(key, encoded)
	return nil
}

func (s *Store) Globals() (*assetmanager.Globals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stored storedGlobals
	ok, err := s.get(globalsKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &assetmanager.Globals{}, nil
	}
	return stored.toGlobals(), nil
}

func (s *Store) Agent(id uint64) (*assetmanager.Agent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cached, ok := s.agents.Get(id); ok {
		return cached.Clone(), true, nil
	}
	var stored storedAgent
	ok, err := s.get(idKey(agentPrefix, id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	agent, err := stored.toAgent()
	if err != nil {
		return nil, false, err
	}
	s.agents.Add(id, agent.Clone())
	return agent, true, nil
}

func (s *Store) AgentIDs() ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []uint64
	err := s.db.Iterate(agentPrefix, func(key, _ []byte) bool {
		if len(key) == len(agentPrefix)+8 {
			ids = append(ids, binary.BigEndian.Uint64(key[len(agentPrefix):]))
		}
		return true
	})
	return ids, err
}

func (s *Store) Reservation(id uint64) (*assetmanager.CollateralReservation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stored storedReservation
	ok, err := s.get(idKey(reservationPrefix, id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	crt, err := stored.toReservation()
	if err != nil {
		return nil, false, err
	}
	return crt, true, nil
}

func (s *Store) Redemption(id uint64) (*assetmanager.RedemptionRequest, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stored storedRedemption
	ok, err := s.get(idKey(redemptionPrefix, id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	req, err := stored.toRedemption()
	if err != nil {
		return nil, false, err
	}
	return req, true, nil
}

func (s *Store) Ticket(id uint64) (*redemptionqueue.Ticket, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ticket := new(redemptionqueue.Ticket)
	ok, err := s.get(idKey(ticketPrefix, id), ticket)
	if err != nil || !ok {
		return nil, false, err
	}
	return ticket, true, nil
}

func (s *Store) QueuePointers() (redemptionqueue.Pointers, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stored storedPointers
	if _, err := s.get(queuePointersKey, &stored); err != nil {
		return redemptionqueue.Pointers{}, err
	}
	return stored.toPointers(), nil
}

func (s *Store) AgentQueuePointers(agentID uint64) (redemptionqueue.Pointers, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stored storedPointers
	if _, err := s.get(idKey(agentQueuePrefix, agentID), &stored); err != nil {
		return redemptionqueue.Pointers{}, err
	}
	return stored.toPointers(), nil
}

func (s *Store) Balance(token string, holder [20]byte) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	amount := new(big.Int)
	if _, err := s.get(balanceKey(token, holder), amount); err != nil {
		return nil, err
	}
	return amount, nil
}

func (s *Store) PaymentConfirmed(txID common.Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := s.db.Get(confirmedKey(txID))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Apply writes the change set in one database batch and refreshes the agent
// cache once the batch is durable.
func (s *Store) Apply(cs *assetmanager.ChangeSet) error {
	if cs.Empty() {
		return nil
	}
	batch := s.db.NewBatch()
	if cs.Globals != nil {
		if err := put(batch, globalsKey, fromGlobals(cs.Globals)); err != nil {
			return err
		}
	}
	for _, agent := range cs.Agents {
		if err := put(batch, idKey(agentPrefix, agent.ID), fromAgent(agent)); err != nil {
			return err
		}
	}
	for _, id := range cs.DeletedAgents {
		batch.Delete(idKey(agentPrefix, id))
		batch.Delete(idKey(agentQueuePrefix, id))
	}
	for _, crt := range cs.Reservations {
		if err := put(batch, idKey(reservationPrefix, crt.ID), fromReservation(crt)); err != nil {
			return err
		}
	}
	for _, req := range cs.Redemptions {
		if err := put(batch, idKey(redemptionPrefix, req.ID), fromRedemption(req)); err != nil {
			return err
		}
	}
	for _, ticket := range cs.Tickets {
		if err := put(batch, idKey(ticketPrefix, ticket.ID), ticket); err != nil {
			return err
		}
	}
	for _, id := range cs.DeletedTickets {
		batch.Delete(idKey(ticketPrefix, id))
	}
	if cs.QueuePointers != nil {
		if err := put(batch, queuePointersKey, fromPointers(*cs.QueuePointers)); err != nil {
			return err
		}
	}
	for id, ptrs := range cs.AgentQueuePointers {
		if err := put(batch, idKey(agentQueuePrefix, id), fromPointers(ptrs)); err != nil {
			return err
		}
	}
	for _, entry := range cs.Balances {
		amount := entry.Amount
		if amount == nil {
			amount = new(big.Int)
		}
		if amount.Sign() < 0 {
			return fmt.Errorf("store: negative balance of %s for %x", entry.Token, entry.Holder)
		}
		key := balanceKey(entry.Token, entry.Holder)
		if amount.Sign() == 0 {
			batch.Delete(key)
			continue
		}
		if err := put(batch, key, amount); err != nil {
			return err
		}
	}
	for _, txID := range cs.ConfirmedPayments {
		batch.Put(confirmedKey(txID), []byte{1})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := batch.Write(); err != nil {
		return err
	}
	for _, agent := range cs.Agents {
		s.agents.Add(agent.ID, agent.Clone())
	}
	for _, id := range cs.DeletedAgents {
		s.agents.Remove(id)
	}
	return nil
}
