package assetmanager

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"fassetbridge/native/attestation"
	"fassetbridge/observability/logging"
)

var (
	// ModuleAddress holds fees in flight: reservation and executor fees wait
	// here until the minting or redemption they pay for is settled.
	ModuleAddress = deriveAddress("fasset.module", 0)
)

func deriveAddress(domain string, id uint64) [20]byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	var out [20]byte
	copy(out[:], ethcrypto.Keccak256([]byte(domain), buf[:])[12:])
	return out
}

// VaultAddress is the ledger address holding the vault collateral and pool
// tokens of agent id.
func VaultAddress(id uint64) [20]byte { return deriveAddress("fasset.vault", id) }

// PoolAddress is the ledger address of the collateral pool of agent id.
func PoolAddress(id uint64) [20]byte { return deriveAddress("fasset.pool", id) }

// PoolTokenSymbol is the ledger token of the collateral pool of agent id.
func PoolTokenSymbol(id uint64) string { return fmt.Sprintf("POOL:%d", id) }

// AgentParams are the operator chosen settings of a new agent.
type AgentParams struct {
	FeeBIPS                         uint64
	PoolFeeShareBIPS                uint64
	MintingVaultCollateralRatioBIPS uint64
	MintingPoolCollateralRatioBIPS  uint64
}

// CreateAgent registers a new agent vault for owner. The underlying address
// is taken from an AddressValidity proof.
func (e *Engine) CreateAgent(owner [20]byte, addressProof attestation.Proof, params AgentParams) (*Agent, error) {
	var created *Agent
	err := e.run("create_agent", opts{paused: true}, func(tx *txn) error {
		av, err := tx.verifyAddressValidity(addressProof)
		if err != nil {
			return err
		}
		if !av.IsValid {
			return ErrAddressInvalid
		}
		if len(av.StandardAddress) > attestation.MaxUnderlyingAddressLength {
			return ErrUnderlyingAddressTooLong
		}
		if params.FeeBIPS > maxBIPS || params.PoolFeeShareBIPS > maxBIPS {
			return ErrInvalidFeeBIPS
		}
		s := tx.settings()
		if params.MintingVaultCollateralRatioBIPS < s.VaultCollateral.MinCollateralRatioBIPS ||
			params.MintingPoolCollateralRatioBIPS < s.PoolCollateral.MinCollateralRatioBIPS {
			return ErrMintingRatioTooLow
		}
		id, err := tx.e.allocateID(nextAgentID)
		if err != nil {
			return err
		}
		agent := &Agent{
			ID:                              id,
			Owner:                           owner,
			Vault:                           VaultAddress(id),
			Pool:                            PoolAddress(id),
			UnderlyingAddress:               av.StandardAddress,
			UnderlyingAddressHash:           av.StandardAddressHash,
			CreationBlock:                   tx.globals.CurrentUnderlyingBlock,
			Status:                          AgentStatusNormal,
			UnderlyingBalanceUBA:            big.NewInt(0),
			FeeBIPS:                         params.FeeBIPS,
			PoolFeeShareBIPS:                params.PoolFeeShareBIPS,
			MintingVaultCollateralRatioBIPS: params.MintingVaultCollateralRatioBIPS,
			MintingPoolCollateralRatioBIPS:  params.MintingPoolCollateralRatioBIPS,
			PoolTokenSupply:                 big.NewInt(0),
		}
		tx.putNewAgent(agent)
		tx.emit(newAgentCreatedEvent(agent))
		tx.e.logger.Info("agent created",
			slog.Uint64("agentId", id),
			logging.MaskField("underlyingAddress", agent.UnderlyingAddress))
		created = agent.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// DepositVaultCollateral moves vault collateral from the owner into the
// agent vault.
func (e *Engine) DepositVaultCollateral(agentID uint64, caller [20]byte, amountWei *big.Int) error {
	return e.run("deposit_vault_collateral", opts{}, func(tx *txn) error {
		agent, err := tx.ownedAgent(agentID, caller)
		if err != nil {
			return err
		}
		if amountWei == nil || amountWei.Sign() <= 0 {
			return ErrZeroAmount
		}
		token := tx.settings().VaultCollateral.Token
		if err := tx.transfer(token, caller, agent.Vault, amountWei); err != nil {
			return err
		}
		tx.emit(newCollateralEvent(EventTypeCollateralDeposited, agent.ID, token, amountWei))
		_, err = tx.endLiquidationIfHealthy(agent)
		return err
	})
}

// WithdrawVaultCollateral returns vault collateral to the owner as long as
// the vault ratio stays at the agent's minting ratio.
func (e *Engine) WithdrawVaultCollateral(agentID uint64, caller [20]byte, amountWei *big.Int) error {
	return e.run("withdraw_vault_collateral", opts{}, func(tx *txn) error {
		agent, err := tx.ownedAgent(agentID, caller)
		if err != nil {
			return err
		}
		if amountWei == nil || amountWei.Sign() <= 0 {
			return ErrZeroAmount
		}
		if agent.Status == AgentStatusFullLiquidation && backingFor(agent, vaultClass) > 0 {
			return ErrInvalidAgentStatus
		}
		token := tx.settings().VaultCollateral.Token
		if err := tx.transfer(token, agent.Vault, caller, amountWei); err != nil {
			return err
		}
		ratio, err := tx.collateralRatio(agent, vaultClass)
		if err != nil {
			return err
		}
		if ratio < tx.mintingRatio(agent, vaultClass) {
			return ErrWithdrawalCRTooLow
		}
		tx.emit(newCollateralEvent(EventTypeCollateralWithdrawn, agent.ID, token, amountWei))
		return nil
	})
}

// MakeAgentAvailable publishes the agent for public minting.
func (e *Engine) MakeAgentAvailable(agentID uint64, caller [20]byte) error {
	return e.run("make_agent_available", opts{paused: true}, func(tx *txn) error {
		agent, err := tx.ownedAgent(agentID, caller)
		if err != nil {
			return err
		}
		if agent.Status != AgentStatusNormal {
			return ErrInvalidAgentStatus
		}
		if agent.PubliclyAvailable {
			return ErrAgentAlreadyAvailable
		}
		agent.PubliclyAvailable = true
		tx.emit(newAgentEvent(EventTypeAgentAvailable, agent.ID))
		return nil
	})
}

// ExitAvailableAgentList withdraws the agent from public minting.
func (e *Engine) ExitAvailableAgentList(agentID uint64, caller [20]byte) error {
	return e.run("exit_available_agent_list", opts{}, func(tx *txn) error {
		agent, err := tx.ownedAgent(agentID, caller)
		if err != nil {
			return err
		}
		if !agent.PubliclyAvailable {
			return ErrAgentNotAvailable
		}
		agent.PubliclyAvailable = false
		tx.emit(newAgentEvent(EventTypeAvailableAgentExited, agent.ID))
		return nil
	})
}

// AnnounceDestroy starts the destroy delay of an agent that is no longer
// publicly available.
func (e *Engine) AnnounceDestroy(agentID uint64, caller [20]byte) (uint64, error) {
	var allowedAt uint64
	err := e.run("announce_destroy", opts{}, func(tx *txn) error {
		agent, err := tx.ownedAgent(agentID, caller)
		if err != nil {
			return err
		}
		if agent.PubliclyAvailable {
			return ErrAgentStillActive
		}
		if agent.DestroyAllowedAt != 0 {
			allowedAt = agent.DestroyAllowedAt
			return nil
		}
		switch agent.Status {
		case AgentStatusNormal:
			agent.Status = AgentStatusDestroying
		case AgentStatusFullLiquidation:
		default:
			return ErrInvalidAgentStatus
		}
		agent.DestroyAllowedAt = tx.now + tx.settings().AgentDestroyDelaySeconds
		allowedAt = agent.DestroyAllowedAt
		tx.emit(newAgentDestroyAnnouncedEvent(agent.ID, allowedAt))
		return nil
	})
	return allowedAt, err
}

// DestroyAgent removes an agent without backing after the destroy delay and
// returns its remaining collateral to the owner.
func (e *Engine) DestroyAgent(agentID uint64, caller [20]byte) error {
	return e.run("destroy_agent", opts{}, func(tx *txn) error {
		agent, err := tx.ownedAgent(agentID, caller)
		if err != nil {
			return err
		}
		if agent.DestroyAllowedAt == 0 {
			return ErrDestroyNotAnnounced
		}
		if tx.now < agent.DestroyAllowedAt {
			return ErrDestroyTooEarly
		}
		if agent.ReservedAMG != 0 || agent.MintedAMG != 0 || agent.RedeemingAMG != 0 || agent.PoolRedeemingAMG != 0 {
			return ErrAgentStillActive
		}
		if _, ok, err := tx.queue().FirstForAgent(agent.ID); err != nil {
			return err
		} else if ok {
			return ErrAgentStillActive
		}
		s := tx.settings()
		poolToken := PoolTokenSymbol(agent.ID)
		agentTokens, err := tx.balance(poolToken, agent.Vault)
		if err != nil {
			return err
		}
		if agentTokens.Cmp(agent.PoolTokenSupply) != 0 {
			return ErrAgentStillActive
		}
		if err := tx.burn(poolToken, agent.Vault, agentTokens); err != nil {
			return err
		}
		agent.PoolTokenSupply = big.NewInt(0)
		for _, move := range []struct {
			token string
			from  [20]byte
		}{
			{s.VaultCollateral.Token, agent.Vault},
			{s.PoolCollateral.Token, agent.Vault},
			{s.PoolCollateral.Token, agent.Pool},
			{s.AssetSymbol, agent.Pool},
		} {
			amount, err := tx.balance(move.token, move.from)
			if err != nil {
				return err
			}
			if err := tx.transfer(move.token, move.from, agent.Owner, amount); err != nil {
				return err
			}
		}
		tx.deleteAgent(agent.ID)
		tx.emit(newAgentEvent(EventTypeAgentDestroyed, agent.ID))
		tx.e.logTransition("agent destroyed", agent.ID)
		return nil
	})
}

// AgentInfo is a read model of one agent in UBA and wei.
type AgentInfo struct {
	ID                    uint64
	Status                AgentStatus
	PubliclyAvailable     bool
	Owner                 [20]byte
	Vault                 [20]byte
	Pool                  [20]byte
	UnderlyingAddress     string
	FeeBIPS               uint64
	PoolFeeShareBIPS      uint64
	LiquidationStartedAt  uint64
	AnnouncedWithdrawalID uint64
	DestroyAllowedAt      uint64

	MintedUBA        uint64
	ReservedUBA      uint64
	RedeemingUBA     uint64
	PoolRedeemingUBA uint64
	DustUBA          uint64
	TicketsUBA       uint64

	UnderlyingBalanceUBA     *big.Int
	FreeUnderlyingBalanceUBA *big.Int

	VaultCollateralWei *big.Int
	PoolCollateralWei  *big.Int
	PoolTokenSupply    *big.Int
	AgentPoolTokens    *big.Int
	PoolFeesUBA        *big.Int

	VaultCollateralRatioBIPS uint64
	PoolCollateralRatioBIPS  uint64
	FreeCollateralLots       uint64

	VaultLiquidationFactorBIPS uint64
	PoolLiquidationFactorBIPS  uint64
	MaxLiquidationAmountUBA    uint64
}

// AgentInfo returns the current read model of an agent.
func (e *Engine) AgentInfo(agentID uint64) (*AgentInfo, error) {
	var info *AgentInfo
	err := e.view(func(tx *txn) error {
		agent, err := tx.agent(agentID)
		if err != nil {
			return err
		}
		s := tx.settings()
		info = &AgentInfo{
			ID:                    agent.ID,
			Status:                agent.Status,
			PubliclyAvailable:     agent.PubliclyAvailable,
			Owner:                 agent.Owner,
			Vault:                 agent.Vault,
			Pool:                  agent.Pool,
			UnderlyingAddress:     agent.UnderlyingAddress,
			FeeBIPS:               agent.FeeBIPS,
			PoolFeeShareBIPS:      agent.PoolFeeShareBIPS,
			LiquidationStartedAt:  agent.LiquidationStartedAt,
			AnnouncedWithdrawalID: agent.AnnouncedWithdrawalID,
			DestroyAllowedAt:      agent.DestroyAllowedAt,
			MintedUBA:             s.amgToUBA(agent.MintedAMG),
			ReservedUBA:           s.amgToUBA(agent.ReservedAMG),
			RedeemingUBA:          s.amgToUBA(agent.RedeemingAMG),
			PoolRedeemingUBA:      s.amgToUBA(agent.PoolRedeemingAMG),
			DustUBA:               s.amgToUBA(agent.DustAMG),
			UnderlyingBalanceUBA:  cloneBigInt(agent.UnderlyingBalanceUBA),
			PoolTokenSupply:       cloneBigInt(agent.PoolTokenSupply),
		}
		info.FreeUnderlyingBalanceUBA = tx.freeUnderlyingUBA(agent)
		tickets, err := tx.queue().AgentValue(agent.ID)
		if err != nil {
			return err
		}
		info.TicketsUBA = s.amgToUBA(tickets)
		if info.VaultCollateralWei, err = tx.collateralBalance(agent, vaultClass); err != nil {
			return err
		}
		if info.PoolCollateralWei, err = tx.collateralBalance(agent, poolClass); err != nil {
			return err
		}
		if info.AgentPoolTokens, err = tx.balance(PoolTokenSymbol(agent.ID), agent.Vault); err != nil {
			return err
		}
		if info.PoolFeesUBA, err = tx.balance(s.AssetSymbol, agent.Pool); err != nil {
			return err
		}
		if info.VaultCollateralRatioBIPS, err = tx.collateralRatio(agent, vaultClass); err != nil {
			return err
		}
		if info.PoolCollateralRatioBIPS, err = tx.collateralRatio(agent, poolClass); err != nil {
			return err
		}
		if agent.Status == AgentStatusNormal && agent.PubliclyAvailable {
			if info.FreeCollateralLots, err = tx.freeCollateralLots(agent); err != nil {
				return err
			}
		}
		if agent.Status == AgentStatusLiquidation || agent.Status == AgentStatusFullLiquidation {
			vaultFactor, poolFactor, err := tx.liquidationFactors(agent)
			if err != nil {
				return err
			}
			info.VaultLiquidationFactorBIPS = vaultFactor
			info.PoolLiquidationFactorBIPS = poolFactor
			maxAMG, err := tx.maxLiquidationAMG(agent, vaultFactor, poolFactor)
			if err != nil {
				return err
			}
			info.MaxLiquidationAmountUBA = s.amgToUBA(maxAMG)
		}
		return nil
	})
	return info, err
}

// AgentIDs lists the registered agents.
func (e *Engine) AgentIDs() ([]uint64, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.AgentIDs()
}
