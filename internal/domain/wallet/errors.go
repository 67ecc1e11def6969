package wallet

import "errors"

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
	ErrReferenceConflict = errors.New("reference conflicts with an existing transaction")
)
