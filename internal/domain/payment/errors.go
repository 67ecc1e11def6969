package payment

import "errors"

var (
	ErrPaymentNotVerified = errors.New("payment not verified by gateway")
	ErrPlanRequired       = errors.New("bundle purchase requires a plan id")
	ErrAmountMismatch     = errors.New("amount does not match plan price")
	ErrInvalidPurpose     = errors.New("invalid payment purpose")
)
