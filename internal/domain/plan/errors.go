package plan

import "errors"

var (
	ErrPlanNotFound     = errors.New("plan not found")
	ErrUserPlanNotFound = errors.New("user plan not found")
	ErrPlanSwitchDenied = errors.New("plan switch denied")
	ErrPurchaseRequired = errors.New("bundle purchase required")
	ErrInvalidPlanType  = errors.New("invalid plan type")
)
