package assetmanager

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"fassetbridge/native/attestation"
	"fassetbridge/native/conversion"
)

func (tx *txn) challengedAgent(agentID uint64) (*Agent, error) {
	agent, err := tx.agent(agentID)
	if err != nil {
		return nil, err
	}
	if agent.Status == AgentStatusFullLiquidation {
		return nil, ErrChallengeAlreadyLiquidating
	}
	return agent, nil
}

func (tx *txn) agentSpend(agent *Agent, proof attestation.Proof) (*attestation.BalanceDecreasingTransaction, error) {
	spend, err := tx.verifyBalanceDecreasing(proof)
	if err != nil {
		return nil, err
	}
	if spend.SourceAddressHash != agent.UnderlyingAddressHash {
		return nil, ErrChallengeNotAgentsAddress
	}
	return spend, nil
}

// openRedemptionOf returns the unfinished redemption request of this agent
// that ref points to, if any. Requests of other agents are never locked.
func (tx *txn) openRedemptionOf(agent *Agent, ref common.Hash) (*RedemptionRequest, error) {
	id, ok := attestation.IsReferenceOf(ref, attestation.ReferenceRedemption)
	if !ok {
		return nil, nil
	}
	if cached, ok := tx.redemptions[id]; ok {
		if cached.AgentID == agent.ID && cached.open() {
			return cached, nil
		}
		return nil, nil
	}
	peek, found, err := tx.e.state.Redemption(id)
	if err != nil || !found || peek.AgentID != agent.ID {
		return nil, err
	}
	req, _, err := tx.redemption(id)
	if err != nil {
		return nil, err
	}
	if !req.open() {
		return nil, nil
	}
	return req, nil
}

// payChallengeReward pays the challenger a share of the minted value in
// vault collateral. A non-positive cap leaves the reward uncapped.
func (tx *txn) payChallengeReward(agent *Agent, challenger [20]byte) (*big.Int, error) {
	s := tx.settings()
	price, err := tx.price(vaultClass)
	if err != nil {
		return nil, err
	}
	reward := mulBIPS(conversion.AMGToTokenWei(agent.MintedAMG, price.ftso), s.PaymentChallengeRewardBIPS)
	if limit := s.PaymentChallengeRewardCapWei; limit != nil && limit.Sign() > 0 {
		reward = minBig(reward, limit)
	}
	balance, err := tx.collateralBalance(agent, vaultClass)
	if err != nil {
		return nil, err
	}
	reward = minBig(reward, balance)
	if err := tx.transfer(s.VaultCollateral.Token, agent.Vault, challenger, reward); err != nil {
		return nil, err
	}
	return reward, nil
}

func (tx *txn) challengeSucceeded(agent *Agent, challenger [20]byte) (*big.Int, error) {
	reward, err := tx.payChallengeReward(agent, challenger)
	if err != nil {
		return nil, err
	}
	tx.startFullLiquidation(agent)
	return reward, nil
}

// IllegalPaymentChallenge proves a spend from the agent's underlying address
// that no open redemption or announced withdrawal explains. It returns the
// challenger's reward.
func (e *Engine) IllegalPaymentChallenge(proof attestation.Proof, agentID uint64, challenger [20]byte) (*big.Int, error) {
	var reward *big.Int
	err := e.run("illegal_payment_challenge", opts{}, func(tx *txn) error {
		agent, err := tx.challengedAgent(agentID)
		if err != nil {
			return err
		}
		spend, err := tx.agentSpend(agent, proof)
		if err != nil {
			return err
		}
		confirmed, err := tx.paymentConfirmed(spend.TransactionID)
		if err != nil {
			return err
		}
		if confirmed {
			return ErrChallengeTransactionAlreadyConfirmed
		}
		req, err := tx.openRedemptionOf(agent, spend.StandardPaymentReference)
		if err != nil {
			return err
		}
		if req != nil {
			return ErrMatchingRedemptionActive
		}
		if id, ok := attestation.IsReferenceOf(spend.StandardPaymentReference, attestation.ReferenceAnnouncedWithdrawal); ok &&
			id != 0 && id == agent.AnnouncedWithdrawalID {
			return ErrMatchingAnnouncedPaymentActive
		}
		tx.emit(newIllegalPaymentConfirmedEvent(agent.ID, spend.TransactionID))
		reward, err = tx.challengeSucceeded(agent, challenger)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reward, nil
}

// DoublePaymentChallenge proves two different spends carrying the same
// payment reference.
func (e *Engine) DoublePaymentChallenge(first, second attestation.Proof, agentID uint64, challenger [20]byte) (*big.Int, error) {
	var reward *big.Int
	err := e.run("double_payment_challenge", opts{}, func(tx *txn) error {
		agent, err := tx.challengedAgent(agentID)
		if err != nil {
			return err
		}
		spend1, err := tx.verifyBalanceDecreasing(first)
		if err != nil {
			return err
		}
		spend2, err := tx.verifyBalanceDecreasing(second)
		if err != nil {
			return err
		}
		if spend1.TransactionID == spend2.TransactionID {
			return ErrChallengeSameTransactionRepeated
		}
		if spend1.SourceAddressHash != agent.UnderlyingAddressHash || spend2.SourceAddressHash != agent.UnderlyingAddressHash {
			return ErrChallengeNotAgentsAddress
		}
		if spend1.StandardPaymentReference != spend2.StandardPaymentReference || spend1.StandardPaymentReference == (common.Hash{}) {
			return ErrChallengeNotDuplicate
		}
		tx.emit(newDuplicatePaymentConfirmedEvent(agent.ID, spend1.TransactionID, spend2.TransactionID))
		reward, err = tx.challengeSucceeded(agent, challenger)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reward, nil
}

// FreeBalanceNegativeChallenge proves a set of unconfirmed spends that
// leave the agent's underlying balance below its backing.
func (e *Engine) FreeBalanceNegativeChallenge(proofs []attestation.Proof, agentID uint64, challenger [20]byte) (*big.Int, error) {
	var reward *big.Int
	err := e.run("free_balance_negative_challenge", opts{}, func(tx *txn) error {
		agent, err := tx.challengedAgent(agentID)
		if err != nil {
			return err
		}
		if len(proofs) == 0 {
			return ErrChallengeEmptyEvidence
		}
		seen := make(map[common.Hash]struct{}, len(proofs))
		total := big.NewInt(0)
		for _, proof := range proofs {
			spend, err := tx.agentSpend(agent, proof)
			if err != nil {
				return err
			}
			if _, dup := seen[spend.TransactionID]; dup {
				return ErrChallengeSameTransactionRepeated
			}
			seen[spend.TransactionID] = struct{}{}
			confirmed, err := tx.paymentConfirmed(spend.TransactionID)
			if err != nil {
				return err
			}
			if confirmed {
				continue
			}
			req, err := tx.openRedemptionOf(agent, spend.StandardPaymentReference)
			if err != nil {
				return err
			}
			total.Add(total, spend.SpentAmount)
			if req != nil {
				total.Sub(total, bigU64(req.UnderlyingValueUBA))
			}
		}
		remaining := new(big.Int).Sub(agent.UnderlyingBalanceUBA, total)
		required := tx.requiredUnderlyingUBA(agent)
		if remaining.Cmp(required) >= 0 {
			return ErrMultiplePaymentsChallengeEnoughBalance
		}
		tx.emit(newUnderlyingBalanceTooLowEvent(agent.ID, remaining, required))
		reward, err = tx.challengeSucceeded(agent, challenger)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reward, nil
}
