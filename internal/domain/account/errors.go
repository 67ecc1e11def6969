package account

import "errors"

var (
	ErrProfileNotFound     = errors.New("profile not found")
	ErrInvalidReferralCode = errors.New("referral code not recognized")
)
