package plan

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// PlanType represents a billing mode
type PlanType string

const (
	PlanFree   PlanType = "free"
	PlanPayg   PlanType = "payg"
	PlanBundle PlanType = "bundle"
)

// Valid reports whether the plan type is one of the known billing modes
func (t PlanType) Valid() bool {
	return t == PlanFree || t == PlanPayg || t == PlanBundle
}

// DataPlan is a catalog row. Read-only reference data; Price is in kobo,
// DataAmountMB in megabytes.
type DataPlan struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Type         PlanType  `db:"type" json:"type"`
	DataAmountMB float64   `db:"data_amount" json:"data_amount"`
	Price        int64     `db:"price" json:"price"`
	ValidityDays int       `db:"validity_days" json:"validity_days"`
	Description  string    `db:"description" json:"description"`
	IsPopular    bool      `db:"is_popular" json:"is_popular"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// UserPlan is a user's current billing mode and allowance state.
// PausedDataMB is non-zero only while PlanType is payg, holding a bundle
// allowance frozen at switch time.
type UserPlan struct {
	ID            uuid.UUID     `db:"id" json:"id"`
	UserID        uuid.UUID     `db:"user_id" json:"user_id"`
	PlanType      PlanType      `db:"plan_type" json:"plan_type"`
	CurrentPlanID uuid.NullUUID `db:"current_plan_id" json:"current_plan_id,omitempty"`
	DataBalanceMB float64       `db:"data_balance" json:"data_balance"`
	PausedDataMB  float64       `db:"paused_data" json:"paused_data"`
	ExpiryDate    sql.NullTime  `db:"expiry_date" json:"expiry_date,omitempty"`
	LeftFreeAt    sql.NullTime  `db:"left_free_at" json:"-"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// IsExpired checks whether the active allowance has lapsed
func (p *UserPlan) IsExpired() bool {
	if !p.ExpiryDate.Valid {
		return false
	}
	return time.Now().After(p.ExpiryDate.Time)
}
