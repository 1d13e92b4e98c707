package store

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"fassetbridge/native/assetmanager"
	"fassetbridge/native/redemptionqueue"
)

// Big integers are persisted as decimal strings so that negative balances
// survive the RLP round trip.

type storedGlobals struct {
	NextAgentID                     uint64
	NextReservationID               uint64
	NextRedemptionID                uint64
	NextWithdrawalID                uint64
	TotalMintedAMG                  uint64
	TotalReservedAMG                uint64
	LotSizeAMG                      uint64
	CurrentUnderlyingBlock          uint64
	CurrentUnderlyingBlockTimestamp uint64
	CurrentUnderlyingBlockUpdatedAt uint64
}

type storedAgent struct {
	ID                              uint64
	Owner                           [20]byte
	Vault                           [20]byte
	Pool                            [20]byte
	UnderlyingAddress               string
	UnderlyingAddressHash           common.Hash
	CreationBlock                   uint64
	Status                          uint8
	PubliclyAvailable               bool
	ReservedAMG                     uint64
	MintedAMG                       uint64
	RedeemingAMG                    uint64
	PoolRedeemingAMG                uint64
	DustAMG                         uint64
	UnderlyingBalanceUBA            string
	FeeBIPS                         uint64
	PoolFeeShareBIPS                uint64
	MintingVaultCollateralRatioBIPS uint64
	MintingPoolCollateralRatioBIPS  uint64
	LiquidationStartedAt            uint64
	AnnouncedWithdrawalID           uint64
	AnnouncedWithdrawalAt           uint64
	DestroyAllowedAt                uint64
	PoolTokenSupply                 string
}

type storedReservation struct {
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
	ReservationFeeWei       string
	Executor                [20]byte
	ExecutorFeeWei          string
	Status                  uint8
	Timestamp               uint64
}

type storedRedemption struct {
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
	ExecutorFeeWei          string
	Status                  uint8
	Timestamp               uint64
	PoolSelfClose           bool
}

type storedPointers struct {
	First  uint64
	Last   uint64
	NextID uint64
}

func formatBig(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseBig(field, value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	out, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("store: invalid %s %q", field, value)
	}
	return out, nil
}

func fromGlobals(g *assetmanager.Globals) storedGlobals {
	return storedGlobals{
		NextAgentID:                     g.NextAgentID,
		NextReservationID:               g.NextReservationID,
		NextRedemptionID:                g.NextRedemptionID,
		NextWithdrawalID:                g.NextWithdrawalID,
		TotalMintedAMG:                  g.TotalMintedAMG,
		TotalReservedAMG:                g.TotalReservedAMG,
		LotSizeAMG:                      g.LotSizeAMG,
		CurrentUnderlyingBlock:          g.CurrentUnderlyingBlock,
		CurrentUnderlyingBlockTimestamp: g.CurrentUnderlyingBlockTimestamp,
		CurrentUnderlyingBlockUpdatedAt: g.CurrentUnderlyingBlockUpdatedAt,
	}
}

func (s *storedGlobals) toGlobals() *assetmanager.Globals {
	return &assetmanager.Globals{
		NextAgentID:                     s.NextAgentID,
		NextReservationID:               s.NextReservationID,
		NextRedemptionID:                s.NextRedemptionID,
		NextWithdrawalID:                s.NextWithdrawalID,
		TotalMintedAMG:                  s.TotalMintedAMG,
		TotalReservedAMG:                s.TotalReservedAMG,
		LotSizeAMG:                      s.LotSizeAMG,
		CurrentUnderlyingBlock:          s.CurrentUnderlyingBlock,
		CurrentUnderlyingBlockTimestamp: s.CurrentUnderlyingBlockTimestamp,
		CurrentUnderlyingBlockUpdatedAt: s.CurrentUnderlyingBlockUpdatedAt,
	}
}

func fromAgent(a *assetmanager.Agent) storedAgent {
	return storedAgent{
		ID:                              a.ID,
		Owner:                           a.Owner,
		Vault:                           a.Vault,
		Pool:                            a.Pool,
		UnderlyingAddress:               a.UnderlyingAddress,
		UnderlyingAddressHash:           a.UnderlyingAddressHash,
		CreationBlock:                   a.CreationBlock,
		Status:                          uint8(a.Status),
		PubliclyAvailable:               a.PubliclyAvailable,
		ReservedAMG:                     a.ReservedAMG,
		MintedAMG:                       a.MintedAMG,
		RedeemingAMG:                    a.RedeemingAMG,
		PoolRedeemingAMG:                a.PoolRedeemingAMG,
		DustAMG:                         a.DustAMG,
		UnderlyingBalanceUBA:            formatBig(a.UnderlyingBalanceUBA),
		FeeBIPS:                         a.FeeBIPS,
		PoolFeeShareBIPS:                a.PoolFeeShareBIPS,
		MintingVaultCollateralRatioBIPS: a.MintingVaultCollateralRatioBIPS,
		MintingPoolCollateralRatioBIPS:  a.MintingPoolCollateralRatioBIPS,
		LiquidationStartedAt:            a.LiquidationStartedAt,
		AnnouncedWithdrawalID:           a.AnnouncedWithdrawalID,
		AnnouncedWithdrawalAt:           a.AnnouncedWithdrawalAt,
		DestroyAllowedAt:                a.DestroyAllowedAt,
		PoolTokenSupply:                 formatBig(a.PoolTokenSupply),
	}
}

func (s *storedAgent) toAgent() (*assetmanager.Agent, error) {
	status := assetmanager.AgentStatus(s.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("store: agent %d has invalid status %d", s.ID, s.Status)
	}
	balance, err := parseBig("underlying balance", s.UnderlyingBalanceUBA)
	if err != nil {
		return nil, err
	}
	supply, err := parseBig("pool token supply", s.PoolTokenSupply)
	if err != nil {
		return nil, err
	}
	return &assetmanager.Agent{
		ID:                              s.ID,
		Owner:                           s.Owner,
		Vault:                           s.Vault,
		Pool:                            s.Pool,
		UnderlyingAddress:               s.UnderlyingAddress,
		UnderlyingAddressHash:           s.UnderlyingAddressHash,
		CreationBlock:                   s.CreationBlock,
		Status:                          status,
		PubliclyAvailable:               s.PubliclyAvailable,
		ReservedAMG:                     s.ReservedAMG,
		MintedAMG:                       s.MintedAMG,
		RedeemingAMG:                    s.RedeemingAMG,
		PoolRedeemingAMG:                s.PoolRedeemingAMG,
		DustAMG:                         s.DustAMG,
		UnderlyingBalanceUBA:            balance,
		FeeBIPS:                         s.FeeBIPS,
		PoolFeeShareBIPS:                s.PoolFeeShareBIPS,
		MintingVaultCollateralRatioBIPS: s.MintingVaultCollateralRatioBIPS,
		MintingPoolCollateralRatioBIPS:  s.MintingPoolCollateralRatioBIPS,
		LiquidationStartedAt:            s.LiquidationStartedAt,
		AnnouncedWithdrawalID:           s.AnnouncedWithdrawalID,
		AnnouncedWithdrawalAt:           s.AnnouncedWithdrawalAt,
		DestroyAllowedAt:                s.DestroyAllowedAt,
		PoolTokenSupply:                 supply,
	}, nil
}

func fromReservation(c *assetmanager.CollateralReservation) storedReservation {
	return storedReservation{
		ID:                      c.ID,
		AgentID:                 c.AgentID,
		Minter:                  c.Minter,
		PaymentAddress:          c.PaymentAddress,
		ValueAMG:                c.ValueAMG,
		UnderlyingValueUBA:      c.UnderlyingValueUBA,
		UnderlyingFeeUBA:        c.UnderlyingFeeUBA,
		PoolFeeShareBIPS:        c.PoolFeeShareBIPS,
		PaymentReference:        c.PaymentReference,
		FirstUnderlyingBlock:    c.FirstUnderlyingBlock,
		LastUnderlyingBlock:     c.LastUnderlyingBlock,
		LastUnderlyingTimestamp: c.LastUnderlyingTimestamp,
		ReservationFeeWei:       formatBig(c.ReservationFeeWei),
		Executor:                c.Executor,
		ExecutorFeeWei:          formatBig(c.ExecutorFeeWei),
		Status:                  uint8(c.Status),
		Timestamp:               c.Timestamp,
	}
}

func (s *storedReservation) toReservation() (*assetmanager.CollateralReservation, error) {
	fee, err := parseBig("reservation fee", s.ReservationFeeWei)
	if err != nil {
		return nil, err
	}
	executorFee, err := parseBig("executor fee", s.ExecutorFeeWei)
	if err != nil {
		return nil, err
	}
	return &assetmanager.CollateralReservation{
		ID:                      s.ID,
		AgentID:                 s.AgentID,
		Minter:                  s.Minter,
		PaymentAddress:          s.PaymentAddress,
		ValueAMG:                s.ValueAMG,
		UnderlyingValueUBA:      s.UnderlyingValueUBA,
		UnderlyingFeeUBA:        s.UnderlyingFeeUBA,
		PoolFeeShareBIPS:        s.PoolFeeShareBIPS,
		PaymentReference:        s.PaymentReference,
		FirstUnderlyingBlock:    s.FirstUnderlyingBlock,
		LastUnderlyingBlock:     s.LastUnderlyingBlock,
		LastUnderlyingTimestamp: s.LastUnderlyingTimestamp,
		ReservationFeeWei:       fee,
		Executor:                s.Executor,
		ExecutorFeeWei:          executorFee,
		Status:                  assetmanager.ReservationStatus(s.Status),
		Timestamp:               s.Timestamp,
	}, nil
}

func fromRedemption(r *assetmanager.RedemptionRequest) storedRedemption {
	return storedRedemption{
		ID:                      r.ID,
		AgentID:                 r.AgentID,
		Redeemer:                r.Redeemer,
		PaymentAddress:          r.PaymentAddress,
		ValueAMG:                r.ValueAMG,
		UnderlyingValueUBA:      r.UnderlyingValueUBA,
		UnderlyingFeeUBA:        r.UnderlyingFeeUBA,
		PaymentReference:        r.PaymentReference,
		FirstUnderlyingBlock:    r.FirstUnderlyingBlock,
		LastUnderlyingBlock:     r.LastUnderlyingBlock,
		LastUnderlyingTimestamp: r.LastUnderlyingTimestamp,
		Executor:                r.Executor,
		ExecutorFeeWei:          formatBig(r.ExecutorFeeWei),
		Status:                  uint8(r.Status),
		Timestamp:               r.Timestamp,
		PoolSelfClose:           r.PoolSelfClose,
	}
}

func (s *storedRedemption) toRedemption() (*assetmanager.RedemptionRequest, error) {
	executorFee, err := parseBig("executor fee", s.ExecutorFeeWei)
	if err != nil {
		return nil, err
	}
	return &assetmanager.RedemptionRequest{
		ID:                      s.ID,
		AgentID:                 s.AgentID,
		Redeemer:                s.Redeemer,
		PaymentAddress:          s.PaymentAddress,
		ValueAMG:                s.ValueAMG,
		UnderlyingValueUBA:      s.UnderlyingValueUBA,
		UnderlyingFeeUBA:        s.UnderlyingFeeUBA,
		PaymentReference:        s.PaymentReference,
		FirstUnderlyingBlock:    s.FirstUnderlyingBlock,
		LastUnderlyingBlock:     s.LastUnderlyingBlock,
		LastUnderlyingTimestamp: s.LastUnderlyingTimestamp,
		Executor:                s.Executor,
		ExecutorFeeWei:          executorFee,
		Status:                  assetmanager.RedemptionStatus(s.Status),
		Timestamp:               s.Timestamp,
		PoolSelfClose:           s.PoolSelfClose,
	}, nil
}

func fromPointers(p redemptionqueue.Pointers) storedPointers {
	return storedPointers{First: p.First, Last: p.Last, NextID: p.NextID}
}

func (s storedPointers) toPointers() redemptionqueue.Pointers {
	return redemptionqueue.Pointers{First: s.First, Last: s.Last, NextID: s.NextID}
}
