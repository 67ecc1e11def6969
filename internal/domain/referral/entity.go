package referral

import (
	"time"

	"github.com/google/uuid"
)

// Referral is one referrer -> referred edge. EarningsTotal accumulates every
// accrual ever made on this edge, claimed or not, in kobo.
type Referral struct {
	ID            uuid.UUID `db:"id" json:"id"`
	ReferrerID    uuid.UUID `db:"referrer_id" json:"referrer_id"`
	ReferredID    uuid.UUID `db:"referred_id" json:"referred_id"`
	EarningsTotal int64     `db:"earnings_total" json:"earnings_total"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Stats is a referrer's dashboard view
type Stats struct {
	TotalReferrals  int   `db:"total_referrals" json:"total_referrals"`
	TotalEarnings   int64 `db:"total_earnings" json:"total_earnings"`
	PendingEarnings int64 `db:"pending_earnings" json:"pending_earnings"`
}
