package account

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the account row behind every wallet, plan, and referral record.
// PendingEarnings belongs to the referral domain but lives here because the
// profile row is its locking anchor.
type Profile struct {
	ID              uuid.UUID     `db:"id" json:"id"`
	Email           string        `db:"email" json:"email"`
	FullName        string        `db:"full_name" json:"full_name"`
	ReferralCode    string        `db:"referral_code" json:"referral_code"`
	ReferredBy      uuid.NullUUID `db:"referred_by" json:"-"`
	PendingEarnings int64         `db:"pending_earnings" json:"pending_earnings"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// BootstrapRequest is the optional payload for account initialization. The
// referral code, when present, attributes this account to its referrer.
type BootstrapRequest struct {
	FullName     string `json:"full_name" validate:"omitempty,max=120"`
	ReferralCode string `json:"referral_code" validate:"omitempty,min=4,max=20"`
}
