package prices

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	ErrUnknownSymbol = errors.New("prices: unknown symbol")
	ErrStalePrice    = errors.New("prices: stale price")
	ErrInvalidPrice  = errors.New("prices: invalid price")
)

// Quote is a price published for a symbol, expressed as an integer Value with
// Decimals decimal places, in USD.
type Quote struct {
	Value     *big.Int
	Decimals  uint8
	Timestamp time.Time
	Source    string
}

// Clone returns a deep copy of the quote.
func (q Quote) Clone() Quote {
	clone := Quote{Decimals: q.Decimals, Timestamp: q.Timestamp, Source: q.Source}
	if q.Value != nil {
		clone.Value = new(big.Int).Set(q.Value)
	}
	return clone
}

// Reader resolves the current price for a symbol. TrustedPrice returns the
// price published by trusted providers, when one exists.
type Reader interface {
	Price(symbol string) (Quote, error)
	TrustedPrice(symbol string) (Quote, bool)
}

// Store is an in-process price table. Quotes older than the configured
// maximum age are rejected by Price.
type Store struct {
	mu      sync.RWMutex
	quotes  map[string]Quote
	trusted map[string]Quote
	maxAge  time.Duration
	clock   clockwork.Clock
}

// NewStore constructs a store. A zero maxAge disables the freshness check.
func NewStore(maxAge time.Duration) *Store {
	return &Store{
		quotes:  make(map[string]Quote),
		trusted: make(map[string]Quote),
		maxAge:  maxAge,
		clock:   clockwork.NewRealClock(),
	}
}

// SetClock overrides the time source used for freshness checks.
func (s *Store) SetClock(clock clockwork.Clock) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s.clock = clock
}

// SetMaxAge updates the freshness window.
func (s *Store) SetMaxAge(maxAge time.Duration) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.maxAge = maxAge
	s.mu.Unlock()
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// SetPrice publishes a price for the symbol at the current clock time.
func (s *Store) SetPrice(symbol string, value *big.Int, decimals uint8) error {
	return s.set(s.quotes, symbol, value, decimals, "ftso")
}

// SetTrustedPrice publishes a trusted-provider price for the symbol.
func (s *Store) SetTrustedPrice(symbol string, value *big.Int, decimals uint8) error {
	return s.set(s.trusted, symbol, value, decimals, "trusted")
}

func (s *Store) set(target map[string]Quote, symbol string, value *big.Int, decimals uint8, source string) error {
	if s == nil {
		return ErrUnknownSymbol
	}
	key := normalizeSymbol(symbol)
	if key == "" {
		return ErrUnknownSymbol
	}
	if value == nil || value.Sign() <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	target[key] = Quote{
		Value:     new(big.Int).Set(value),
		Decimals:  decimals,
		Timestamp: s.clock.Now(),
		Source:    source,
	}
	return nil
}

// Price returns the latest quote for the symbol.
func (s *Store) Price(symbol string) (Quote, error) {
	if s == nil {
		return Quote{}, ErrUnknownSymbol
	}
	key := normalizeSymbol(symbol)
	s.mu.RLock()
	defer s.mu.RUnlock()
	quote, ok := s.quotes[key]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, key)
	}
	if s.maxAge > 0 && s.clock.Since(quote.Timestamp) > s.maxAge {
		return Quote{}, fmt.Errorf("%w: %s published %s", ErrStalePrice, key, quote.Timestamp.UTC().Format(time.RFC3339))
	}
	return quote.Clone(), nil
}

// TrustedPrice returns the latest trusted quote for the symbol. Stale trusted
// quotes are ignored.
func (s *Store) TrustedPrice(symbol string) (Quote, bool) {
	if s == nil {
		return Quote{}, false
	}
	key := normalizeSymbol(symbol)
	s.mu.RLock()
	defer s.mu.RUnlock()
	quote, ok := s.trusted[key]
	if !ok {
		return Quote{}, false
	}
	if s.maxAge > 0 && s.clock.Since(quote.Timestamp) > s.maxAge {
		return Quote{}, false
	}
	return quote.Clone(), true
}
