package settlement

import "errors"

var (
	ErrStatusMismatch             = errors.New("order status does not allow this operation")
	ErrInvalidDeadlines           = errors.New("deadlines must satisfy fill <= challenge <= proof")
	ErrWrongOriginChain           = errors.New("order originates on another chain")
	ErrOrderExpired               = errors.New("order expired")
	ErrChallengeDeadlinePassed    = errors.New("challenge deadline passed")
	ErrChallengeDeadlineNotPassed = errors.New("challenge deadline not passed")
	ErrProofDeadlineNotPassed     = errors.New("proof deadline not passed")
	ErrCannotProve                = errors.New("order outputs not proven")
	ErrUnknownOracle              = errors.New("no oracle registered for order")
	ErrReentrantCall              = errors.New("order is already being processed")
	ErrArithmeticOverflow         = errors.New("arithmetic overflow")

	ErrAlreadyDeposited = errors.New("order already deposited")
	ErrNotDeposited     = errors.New("order not deposited")
	ErrNotOrderOwner    = errors.New("caller is not the order owner")

	ErrPurchaseMismatch         = errors.New("purchase does not reference this order")
	ErrPurchaseDeadlinePassed   = errors.New("purchase deadline passed")
	ErrPurchaseExpired          = errors.New("purchase authorization expired")
	ErrDiscountTooLow           = errors.New("discount below purchaser minimum")
	ErrInvalidDiscount          = errors.New("discount exceeds 100%")
	ErrInvalidPurchaseSignature = errors.New("purchase not signed by current filler")
	ErrPurchaseUsed             = errors.New("purchase authorization already used")
	ErrNotFiller                = errors.New("caller is not the current filler")

	ErrNotGovernor       = errors.New("caller is not the governor")
	ErrFeeTooHigh        = errors.New("governance fee exceeds maximum")
	ErrNoPendingFee      = errors.New("no governance fee change pending")
	ErrFeeChangeTooEarly = errors.New("governance fee change still timelocked")
)
