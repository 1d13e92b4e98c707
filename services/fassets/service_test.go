package fassets

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/stretchr/testify/require"

	"fassetbridge/config"
	"fassetbridge/core/events"
	"fassetbridge/native/assetmanager"
	"fassetbridge/native/attestation"
	"fassetbridge/native/attestation/mockchain"
	"fassetbridge/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenRequiresConfigAndVerifier(t *testing.T) {
	_, err := Open(nil, attestation.NewHub(), events.NoopEmitter{})
	require.Error(t, err)
	_, err = Open(config.Default(), nil, events.NoopEmitter{})
	require.Error(t, err)

	cfg := config.Default()
	cfg.AssetManager.LiquidationCollateralFactorBIPS = nil
	_, err = Open(cfg, attestation.NewHub(), events.NoopEmitter{}, WithLogger(quietLogger()))
	require.Error(t, err)
}

func TestOpenPersistsAgents(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	hub := attestation.NewHub()
	chain := mockchain.New(1_700_000_000, 4)
	prover := mockchain.NewProver(cfg.AssetManager.ChainID, chain, hub)

	recorder := &events.Recorder{}
	svc, err := Open(cfg, hub, recorder, WithLogger(quietLogger()))
	require.NoError(t, err)
	proof, err := prover.ProveAddressValidity("rAgentOne")
	require.NoError(t, err)
	owner := [20]byte{1}
	agent, err := svc.Engine.CreateAgent(owner, proof, assetmanager.AgentParams{
		FeeBIPS:                         100,
		PoolFeeShareBIPS:                2_000,
		MintingVaultCollateralRatioBIPS: 15_000,
		MintingPoolCollateralRatioBIPS:  21_000,
	})
	require.NoError(t, err)
	require.Len(t, recorder.OfType(assetmanager.EventTypeAgentCreated), 1)
	require.NotEmpty(t, recorder.Events())
	svc.Close()
	svc.Close()

	reopened, err := Open(cfg, hub, events.NoopEmitter{}, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer reopened.Close()
	ids, err := reopened.Engine.AgentIDs()
	require.NoError(t, err)
	require.Equal(t, []uint64{agent.ID}, ids)
	info, err := reopened.Engine.AgentInfo(agent.ID)
	require.NoError(t, err)
	require.Equal(t, "rAgentOne", info.UnderlyingAddress)
	require.Equal(t, owner, info.Owner)
}

func TestPausesGuardEngine(t *testing.T) {
	svc, err := Open(config.Default(), attestation.NewHub(), events.NoopEmitter{},
		WithLogger(quietLogger()), WithDatabase(storage.NewMemDB()))
	require.NoError(t, err)
	defer svc.Close()
	require.NoError(t, svc.Prices.SetPrice("TESTXRP", big.NewInt(50_000), 5))
	require.NoError(t, svc.Prices.SetPrice("USDC", big.NewInt(100_000), 5))
	require.NoError(t, svc.Prices.SetPrice("NAT", big.NewInt(2_000), 5))

	require.False(t, svc.Pauses.IsPaused(assetmanager.PauseModule))
	svc.Pauses.Set(assetmanager.PauseModule, true)
	_, err = svc.Engine.ReserveCollateral([20]byte{9}, 1, 1, 10_000, [20]byte{}, big.NewInt(1))
	require.ErrorIs(t, err, assetmanager.ErrEmergencyPauseActive)

	svc.Pauses.Set(assetmanager.PauseModule, false)
	_, err = svc.Engine.ReserveCollateral([20]byte{9}, 1, 1, 10_000, [20]byte{}, big.NewInt(1))
	require.ErrorIs(t, err, assetmanager.ErrAgentNotFound)
}

func TestOpenAppliesAddressFormat(t *testing.T) {
	cfg := config.Default()
	cfg.AssetManager.UnderlyingAddresses.Bech32HRPs = []string{"tb"}
	hub := attestation.NewHub()
	prover := mockchain.NewProver(cfg.AssetManager.ChainID, mockchain.New(1_700_000_000, 4), hub)

	svc, err := Open(cfg, hub, events.NoopEmitter{}, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer svc.Close()
	prover.SetAddressValidator(svc.Addresses)

	params := assetmanager.AgentParams{
		FeeBIPS:                         100,
		PoolFeeShareBIPS:                2_000,
		MintingVaultCollateralRatioBIPS: 15_000,
		MintingPoolCollateralRatioBIPS:  21_000,
	}
	proof, err := prover.ProveAddressValidity("rAgentOne")
	require.NoError(t, err)
	_, err = svc.Engine.CreateAgent([20]byte{1}, proof, params)
	require.ErrorIs(t, err, assetmanager.ErrAddressInvalid)

	converted, err := bech32.ConvertBits(make([]byte, 20), 8, 5, true)
	require.NoError(t, err)
	segwit, err := bech32.Encode("tb", append([]byte{0}, converted...))
	require.NoError(t, err)
	proof, err = prover.ProveAddressValidity(segwit)
	require.NoError(t, err)
	agent, err := svc.Engine.CreateAgent([20]byte{1}, proof, params)
	require.NoError(t, err)
	require.Equal(t, segwit, agent.UnderlyingAddress)
}
