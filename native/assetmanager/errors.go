package assetmanager

import (
	"errors"
	"fmt"
)

var (
	errNilState    = errors.New("asset manager: state not configured")
	errNilPrices   = errors.New("asset manager: price reader not configured")
	errNilVerifier = errors.New("asset manager: verifier not configured")

	ErrInvariantViolation  = errors.New("asset manager: invariant violation")
	ErrInsufficientBalance = errors.New("asset manager: insufficient balance")

	ErrEmergencyPauseActive     = errors.New("asset manager: emergency pause active")
	ErrAgentNotFound            = errors.New("asset manager: invalid agent vault address")
	ErrOnlyAgentVaultOwner      = errors.New("asset manager: only agent vault owner")
	ErrOnlyCollateralPool       = errors.New("asset manager: only collateral pool")
	ErrAgentNotAvailable        = errors.New("asset manager: agent not in mint queue")
	ErrAgentAlreadyAvailable    = errors.New("asset manager: agent already available")
	ErrInvalidAgentStatus       = errors.New("asset manager: invalid agent status")
	ErrAgentStillActive         = errors.New("asset manager: agent still active")
	ErrDestroyNotAnnounced      = errors.New("asset manager: destroy not announced")
	ErrDestroyTooEarly          = errors.New("asset manager: destroy: not allowed yet")
	ErrAddressInvalid           = errors.New("asset manager: address invalid")
	ErrAddressValidityNotProven = errors.New("asset manager: address validity not proven")
	ErrUnderlyingAddressTooLong = errors.New("asset manager: underlying address too long")
	ErrInvalidFeeBIPS           = errors.New("asset manager: fee bips out of range")
	ErrMintingRatioTooLow       = errors.New("asset manager: minting collateral ratio too low")
	ErrWithdrawalCRTooLow       = errors.New("asset manager: withdrawal: CR too low")
	ErrZeroAmount               = errors.New("asset manager: zero amount")

	ErrInvalidChain                = errors.New("asset manager: invalid chain")
	ErrLegalPaymentNotProven       = errors.New("asset manager: legal payment not proven")
	ErrTransactionNotProven        = errors.New("asset manager: transaction not proven")
	ErrNonPaymentNotProven         = errors.New("asset manager: non-payment not proven")
	ErrBlockHeightNotProven        = errors.New("asset manager: block height not proven")
	ErrPaymentAlreadyConfirmed     = errors.New("asset manager: payment already confirmed")
	ErrSourceAddressesNotSupported = errors.New("asset manager: source addresses not supported")

	ErrMintingCapExceeded                   = errors.New("asset manager: minting cap exceeded")
	ErrNotEnoughFreeCollateral              = errors.New("asset manager: not enough free collateral")
	ErrAgentsFeeTooHigh                     = errors.New("asset manager: agent's fee too high")
	ErrInappropriateFeeAmount               = errors.New("asset manager: inappropriate fee amount")
	ErrExecutorFeeWithoutExecutor           = errors.New("asset manager: executor fee without executor")
	ErrCannotMintZeroLots                   = errors.New("asset manager: cannot mint 0 lots")
	ErrInvalidCrtID                         = errors.New("asset manager: invalid crt id")
	ErrOnlyMinterExecutorOrAgent            = errors.New("asset manager: only minter, executor or agent")
	ErrInvalidMintingReference              = errors.New("asset manager: invalid minting reference")
	ErrMintingPaymentFailed                 = errors.New("asset manager: payment failed")
	ErrNotMintingAgentsAddress              = errors.New("asset manager: not minting agent's address")
	ErrMintingPaymentTooSmall               = errors.New("asset manager: minting payment too small")
	ErrMintingPaymentTooOld                 = errors.New("asset manager: minting payment too old")
	ErrMintingNonPaymentMismatch            = errors.New("asset manager: minting non-payment mismatch")
	ErrMintingDefaultTooEarly               = errors.New("asset manager: minting default too early")
	ErrMintingNonPaymentProofWindowTooShort = errors.New("asset manager: minting non-payment proof window too short")
	ErrCannotUnstickMintingYet              = errors.New("asset manager: cannot unstick minting yet")
	ErrSelfMintInvalidReference             = errors.New("asset manager: invalid self-mint reference")
	ErrSelfMintPaymentTooOld                = errors.New("asset manager: self-mint payment too old")
	ErrSelfMintPaymentTooSmall              = errors.New("asset manager: self-mint payment too small")
	ErrSelfMintInvalidAgentStatus           = errors.New("asset manager: self-mint invalid agent status")

	ErrRedeemZeroLots                          = errors.New("asset manager: redeem 0 lots")
	ErrRedemptionOfZero                        = errors.New("asset manager: redemption of 0")
	ErrSelfCloseOfZero                         = errors.New("asset manager: self close of 0")
	ErrInvalidRequestID                        = errors.New("asset manager: invalid request id")
	ErrInvalidRedemptionStatus                 = errors.New("asset manager: invalid redemption status")
	ErrInvalidRedemptionReference              = errors.New("asset manager: invalid redemption reference")
	ErrSourceNotAgentsUnderlyingAddress        = errors.New("asset manager: source not agent's underlying address")
	ErrRedemptionPaymentTooOld                 = errors.New("asset manager: redemption payment too old")
	ErrOnlyRedeemerExecutorOrAgent             = errors.New("asset manager: only redeemer, executor or agent")
	ErrRedemptionNonPaymentMismatch            = errors.New("asset manager: redemption non-payment mismatch")
	ErrRedemptionDefaultTooEarly               = errors.New("asset manager: redemption default too early")
	ErrRedemptionNonPaymentProofWindowTooShort = errors.New("asset manager: redemption non-payment proof window too short")
	ErrAddressValid                            = errors.New("asset manager: address valid")
	ErrWrongAddress                            = errors.New("asset manager: wrong address")

	ErrChallengeAlreadyLiquidating            = errors.New("asset manager: chlg: already liquidating")
	ErrChallengeNotAgentsAddress              = errors.New("asset manager: chlg: not agent's address")
	ErrChallengeTransactionAlreadyConfirmed   = errors.New("asset manager: chlg: transaction confirmed")
	ErrMatchingRedemptionActive               = errors.New("asset manager: matching redemption active")
	ErrMatchingAnnouncedPaymentActive         = errors.New("asset manager: matching ongoing announced pmt")
	ErrChallengeSameTransactionRepeated       = errors.New("asset manager: chlg dbl: same transaction")
	ErrChallengeNotDuplicate                  = errors.New("asset manager: challenge: not duplicate")
	ErrMultiplePaymentsChallengeEnoughBalance = errors.New("asset manager: mult chlg: enough balance")
	ErrChallengeEmptyEvidence                 = errors.New("asset manager: mult chlg: no transactions")

	ErrNotInLiquidation       = errors.New("asset manager: not in liquidation")
	ErrLiquidationNotStarted  = errors.New("asset manager: liquidation not started")
	ErrCannotStopLiquidation  = errors.New("asset manager: cannot stop liquidation")
	ErrLiquidationNotPossible = errors.New("asset manager: liquidation not possible")

	ErrWithdrawalAlreadyActive = errors.New("asset manager: announced underlying withdrawal active")
	ErrNoActiveWithdrawal      = errors.New("asset manager: no active announcement")
	ErrWrongAnnouncedReference = errors.New("asset manager: wrong announced pmt reference")
	ErrWrongAnnouncedSource    = errors.New("asset manager: wrong announced pmt source")
	ErrConfirmationTooEarly    = errors.New("asset manager: only agent vault owner before timeout")
	ErrInvalidTopupReference   = errors.New("asset manager: not a topup payment")
	ErrTopupNotToAgentsAddress = errors.New("asset manager: not underlying address")
	ErrTopupBeforeAgentCreated = errors.New("asset manager: topup before agent created")
	ErrBlockHeightNotIncreased = errors.New("asset manager: block height not increased")

	ErrPoolTokensTooLow    = errors.New("asset manager: pool: insufficient pool tokens")
	ErrPoolCRTooLowForExit = errors.New("asset manager: pool: collateral ratio falls below exit CR")
	ErrPoolDepositTooSmall = errors.New("asset manager: pool: deposit too small")
	ErrInvalidLotSize      = errors.New("asset manager: invalid lot size")
)

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
}
