// Package fassets assembles an asset manager engine from its configuration.
package fassets

import (
	"errors"
	"fmt"
	"log/slog"

	"fassetbridge/config"
	"fassetbridge/core/events"
	"fassetbridge/native/assetmanager"
	"fassetbridge/native/assetmanager/store"
	"fassetbridge/native/attestation"
	"fassetbridge/native/common"
	"fassetbridge/native/prices"
	"fassetbridge/observability/logging"
	"fassetbridge/storage"
)

// Service owns an engine together with its state database and price table.
type Service struct {
	Engine *assetmanager.Engine
	Prices *prices.Store
	Pauses *common.Pauses
	Logger *slog.Logger
	// Addresses is the underlying address format the provers should apply.
	Addresses attestation.AddressValidator

	db storage.Database
}

// Option customizes Open.
type Option func(*Service)

// WithDatabase overrides the database selected by DataDir.
func WithDatabase(db storage.Database) Option {
	return func(s *Service) { s.db = db }
}

// WithLogger skips the default JSON logger setup.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.Logger = logger }
}

// Open builds a ready engine. Proof verification is external, so the caller
// supplies the verifier.
func Open(cfg *config.Config, verifier attestation.Verifier, emitter events.Emitter, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("fassets: config required")
	}
	if verifier == nil {
		return nil, errors.New("fassets: verifier required")
	}
	settings, err := cfg.Settings()
	if err != nil {
		return nil, err
	}
	svc := &Service{Pauses: &common.Pauses{}, Addresses: cfg.AddressValidator()}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.Logger == nil {
		svc.Logger = logging.Setup(cfg.Service, cfg.Environment, cfg.LogLevel)
	}
	if svc.db == nil {
		if cfg.DataDir == "" {
			svc.db = storage.NewMemDB()
		} else {
			ldb, err := storage.NewLevelDB(cfg.DataDir)
			if err != nil {
				return nil, fmt.Errorf("fassets: open state %s: %w", cfg.DataDir, err)
			}
			svc.db = ldb
		}
	}
	state, err := store.New(svc.db, cfg.StateCacheSize)
	if err != nil {
		svc.db.Close()
		return nil, err
	}
	engine, err := assetmanager.NewEngine(settings)
	if err != nil {
		svc.db.Close()
		return nil, err
	}
	svc.Prices = prices.NewStore(cfg.PriceMaxAge())
	engine.SetState(state)
	engine.SetPriceReader(svc.Prices)
	engine.SetVerifier(verifier)
	engine.SetPauses(svc.Pauses)
	engine.SetEmitter(emitter)
	engine.SetLogger(svc.Logger.With(slog.String("component", "assetmanager"), slog.String("chain", settings.ChainID)))
	svc.Engine = engine
	svc.Logger.Info("asset manager ready",
		slog.String("asset", settings.AssetSymbol),
		slog.Int("priceFeeds", len(cfg.PriceSymbols())),
		slog.Bool("persistent", cfg.DataDir != ""))
	return svc, nil
}

// Close releases the state database.
func (s *Service) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
	s.db = nil
}
