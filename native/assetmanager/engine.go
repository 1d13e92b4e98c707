package assetmanager

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/jonboulle/clockwork"

	"fassetbridge/core/events"
	"fassetbridge/core/types"
	"fassetbridge/native/attestation"
	"fassetbridge/native/common"
	"fassetbridge/native/prices"
	"fassetbridge/observability"
)

// Engine is the f-asset asset manager. It keeps the agent, minting and
// redemption records of a single underlying asset and moves collateral and
// f-asset balances in the token ledger held by its State.
//
// Every public operation runs inside its own transaction overlay: nothing is
// written and no event is emitted unless the whole operation succeeds.
type Engine struct {
	settings Settings
	state    State
	prices   prices.Reader
	verifier attestation.Verifier
	emitter  events.Emitter
	pauses   common.PauseView
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.AssetManagerMetrics

	locksMu    sync.Mutex
	agentLocks map[uint64]*sync.Mutex
	queueMu    sync.Mutex
	commitMu   sync.Mutex
}

// NewEngine creates an engine for the supplied settings with a no-op emitter
// and the real clock.
func NewEngine(settings Settings) (*Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		settings:   settings.Clone(),
		emitter:    events.NoopEmitter{},
		clock:      clockwork.NewRealClock(),
		logger:     slog.Default(),
		metrics:    observability.FAssetMetrics(),
		agentLocks: make(map[uint64]*sync.Mutex),
	}, nil
}

// Settings returns a copy of the engine settings.
func (e *Engine) Settings() Settings { return e.settings.Clone() }

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state State) { e.state = state }

// SetPriceReader configures the price source.
func (e *Engine) SetPriceReader(reader prices.Reader) { e.prices = reader }

// SetVerifier configures the attestation verifier used for every proof.
func (e *Engine) SetVerifier(verifier attestation.Verifier) { e.verifier = verifier }

// SetPauses wires the pause view consulted by entry points.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetClock overrides the time source. Tests use a fake clock.
func (e *Engine) SetClock(clock clockwork.Clock) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	e.clock = clock
}

// SetLogger overrides the structured logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(assetEvent{evt: event})
}

func (e *Engine) now() uint64 {
	return uint64(e.clock.Now().Unix())
}

func (e *Engine) ready() error {
	switch {
	case e == nil || e.state == nil:
		return errNilState
	case e.prices == nil:
		return errNilPrices
	case e.verifier == nil:
		return errNilVerifier
	}
	return nil
}

func (e *Engine) guard() error {
	if err := common.Guard(e.pauses, PauseModule); err != nil {
		if errors.Is(err, common.ErrModulePaused) {
			return ErrEmergencyPauseActive
		}
		return err
	}
	return nil
}

func (e *Engine) agentLock(id uint64) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	mu, ok := e.agentLocks[id]
	if !ok {
		mu = &sync.Mutex{}
		e.agentLocks[id] = mu
	}
	return mu
}

// opts select the locks and guards an operation needs.
type opts struct {
	queue  bool
	paused bool
}

// run executes fn inside a fresh transaction and commits it on success.
// Operations touching the redemption queue take the queue lock first; agent
// locks are taken lazily by the transaction and always after it.
func (e *Engine) run(operation string, o opts, fn func(tx *txn) error) (err error) {
	started := e.clock.Now()
	defer func() {
		e.metrics.RecordOperation(operation, err, e.clock.Since(started))
		if err != nil {
			e.logger.Debug("asset manager operation rejected",
				slog.String("operation", operation),
				slog.String("error", err.Error()))
		}
	}()
	if err := e.ready(); err != nil {
		return err
	}
	if o.paused {
		if err := e.guard(); err != nil {
			return err
		}
	}
	if o.queue {
		e.queueMu.Lock()
		defer e.queueMu.Unlock()
	}
	tx, err := e.begin()
	if err != nil {
		return err
	}
	defer tx.release()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", operation, err)
	}
	for _, evt := range tx.events {
		e.emit(evt)
	}
	tx.publishMetrics()
	e.logger.Debug("asset manager operation committed",
		slog.String("operation", operation),
		slog.Int("events", len(tx.events)))
	return nil
}

// view executes a read-only fn against a transaction that is never committed.
func (e *Engine) view(fn func(tx *txn) error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	tx, err := e.begin()
	if err != nil {
		return err
	}
	defer tx.release()
	return fn(tx)
}

// allocateID reserves the next value of one of the global counters and
// persists it immediately. Identifiers of aborted operations are skipped.
func (e *Engine) allocateID(counter func(*Globals) *uint64) (uint64, error) {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	g, err := e.state.Globals()
	if err != nil {
		return 0, err
	}
	next := counter(g)
	if *next == 0 {
		*next = 1
	}
	id := *next
	*next++
	if err := e.state.Apply(&ChangeSet{Globals: g}); err != nil {
		return 0, err
	}
	return id, nil
}

func nextAgentID(g *Globals) *uint64       { return &g.NextAgentID }
func nextReservationID(g *Globals) *uint64 { return &g.NextReservationID }
func nextRedemptionID(g *Globals) *uint64  { return &g.NextRedemptionID }
func nextWithdrawalID(g *Globals) *uint64  { return &g.NextWithdrawalID }

// redemptionRequestID derives a request id from a counter value; pool
// self-close requests are odd.
func redemptionRequestID(counter uint64, poolSelfClose bool) uint64 {
	if poolSelfClose {
		return 2*counter + 1
	}
	return 2 * counter
}

// Globals returns the current engine counters.
func (e *Engine) Globals() (*Globals, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	g, err := e.state.Globals()
	if err != nil {
		return nil, err
	}
	if g.LotSizeAMG == 0 {
		g.LotSizeAMG = e.settings.LotSizeAMG
	}
	return g, nil
}

// Balance reports a token balance from the ledger.
func (e *Engine) Balance(token string, holder [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.Balance(token, holder)
}

func (e *Engine) logTransition(msg string, agentID uint64, attrs ...any) {
	e.logger.Info(msg, append([]any{slog.Uint64("agentId", agentID)}, attrs...)...)
}
