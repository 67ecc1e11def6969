package usage

import "errors"

var (
	ErrInvalidUsage       = errors.New("invalid usage amount")
	ErrUsageDenied        = errors.New("usage denied: insufficient wallet balance")
	ErrAllowanceExhausted = errors.New("data allowance exhausted")
)
