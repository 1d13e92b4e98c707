package assetmanager

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AgentStatus enumerates the lifecycle states of an agent vault.
type AgentStatus uint8

const (
	AgentStatusNormal AgentStatus = iota
	AgentStatusLiquidation
	AgentStatusFullLiquidation
	AgentStatusDestroying
)

// Valid reports whether the status is a known value.
func (s AgentStatus) Valid() bool {
	return s <= AgentStatusDestroying
}

// String renders the status name.
func (s AgentStatus) String() string {
	switch s {
	case AgentStatusNormal:
		return "NORMAL"
	case AgentStatusLiquidation:
		return "LIQUIDATION"
	case AgentStatusFullLiquidation:
		return "FULL_LIQUIDATION"
	case AgentStatusDestroying:
		return "DESTROYING"
	default:
		return "UNKNOWN"
	}
}

// Agent is the accounting record of one vault operator. Backing amounts are
// kept in AMG; the underlying balance is in UBA.
type Agent struct {
	ID                    uint64
	Owner                 [20]byte
	Vault                 [20]byte
	Pool                  [20]byte
	UnderlyingAddress     string
	UnderlyingAddressHash common.Hash
	CreationBlock         uint64
	Status                AgentStatus
	PubliclyAvailable     bool

	ReservedAMG      uint64
	MintedAMG        uint64
	RedeemingAMG     uint64
	PoolRedeemingAMG uint64
	DustAMG          uint64

	// UnderlyingBalanceUBA may become negative after unannounced spends.
	UnderlyingBalanceUBA *big.Int

	FeeBIPS                         uint64
	PoolFeeShareBIPS                uint64
	MintingVaultCollateralRatioBIPS uint64
	MintingPoolCollateralRatioBIPS  uint64

	LiquidationStartedAt uint64

	AnnouncedWithdrawalID uint64
	AnnouncedWithdrawalAt uint64

	DestroyAllowedAt uint64
	PoolTokenSupply  *big.Int
}

// Clone returns a deep copy of the agent.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	clone := *a
	clone.UnderlyingBalanceUBA = cloneBigInt(a.UnderlyingBalanceUBA)
	clone.PoolTokenSupply = cloneBigInt(a.PoolTokenSupply)
	return &clone
}

func (a *Agent) backingAMG() uint64 {
	return a.ReservedAMG + a.MintedAMG + a.RedeemingAMG
}

// ReservationStatus enumerates collateral reservation states.
type ReservationStatus uint8

const (
	ReservationActive ReservationStatus = iota
	ReservationSuccessful
	ReservationDefaulted
	ReservationExpired
)

// String renders the reservation status name.
func (s ReservationStatus) String() string {
	switch s {
	case ReservationActive:
		return "ACTIVE"
	case ReservationSuccessful:
		return "SUCCESSFUL"
	case ReservationDefaulted:
		return "DEFAULTED"
	case ReservationExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// CollateralReservation is one pending or finished mint.
type CollateralReservation struct {
	ID                      uint64
	AgentID                 uint64
	Minter                  [20]byte
	PaymentAddress          string
	ValueAMG                uint64
	UnderlyingValueUBA      uint64
	UnderlyingFeeUBA        uint64
	PoolFeeShareBIPS        uint64
	PaymentReference        common.Hash
	FirstUnderlyingBlock    uint64
	LastUnderlyingBlock     uint64
	LastUnderlyingTimestamp uint64
	ReservationFeeWei       *big.Int
	Executor                [20]byte
	ExecutorFeeWei          *big.Int
	Status                  ReservationStatus
	Timestamp               uint64
}

// Clone returns a deep copy of the reservation.
func (c *CollateralReservation) Clone() *CollateralReservation {
	if c == nil {
		return nil
	}
	clone := *c
	clone.ReservationFeeWei = cloneBigInt(c.ReservationFeeWei)
	clone.ExecutorFeeWei = cloneBigInt(c.ExecutorFeeWei)
	return &clone
}

// RedemptionStatus enumerates redemption request states.
type RedemptionStatus uint8

const (
	RedemptionActive RedemptionStatus = iota
	RedemptionSuccessful
	RedemptionDefaultedUnconfirmed
	RedemptionDefaultedFailed
	RedemptionRejected
)

// String renders the redemption status name.
func (s RedemptionStatus) String() string {
	switch s {
	case RedemptionActive:
		return "ACTIVE"
	case RedemptionSuccessful:
		return "SUCCESSFUL"
	case RedemptionDefaultedUnconfirmed:
		return "DEFAULTED_UNCONFIRMED"
	case RedemptionDefaultedFailed:
		return "DEFAULTED_FAILED"
	case RedemptionRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// RedemptionRequest is one redemption obligation of one agent.
type RedemptionRequest struct {
	ID                      uint64
	AgentID                 uint64
	Redeemer                [20]byte
	PaymentAddress          string
	ValueAMG                uint64
	UnderlyingValueUBA      uint64
	UnderlyingFeeUBA        uint64
	PaymentReference        common.Hash
	FirstUnderlyingBlock    uint64
	LastUnderlyingBlock     uint64
	LastUnderlyingTimestamp uint64
	Executor                [20]byte
	ExecutorFeeWei          *big.Int
	Status                  RedemptionStatus
	Timestamp               uint64
	PoolSelfClose           bool
}

// Clone returns a deep copy of the request.
func (r *RedemptionRequest) Clone() *RedemptionRequest {
	if r == nil {
		return nil
	}
	clone := *r
	clone.ExecutorFeeWei = cloneBigInt(r.ExecutorFeeWei)
	return &clone
}

func (r *RedemptionRequest) open() bool {
	return r.Status == RedemptionActive || r.Status == RedemptionDefaultedUnconfirmed
}

// Globals holds engine-wide counters and the tracked underlying chain time.
type Globals struct {
	NextAgentID       uint64
	NextReservationID uint64
	NextRedemptionID  uint64
	NextWithdrawalID  uint64

	TotalMintedAMG   uint64
	TotalReservedAMG uint64

	LotSizeAMG uint64

	CurrentUnderlyingBlock          uint64
	CurrentUnderlyingBlockTimestamp uint64
	CurrentUnderlyingBlockUpdatedAt uint64
}

// Clone returns a copy of the globals.
func (g *Globals) Clone() *Globals {
	if g == nil {
		return &Globals{}
	}
	clone := *g
	return &clone
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
