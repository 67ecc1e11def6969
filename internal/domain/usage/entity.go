package usage

import (
	"time"

	"github.com/google/uuid"
)

// Record is an append-only usage row. AmountMB is the metered consumption,
// Cost the kobo charged for it (zero under free/bundle allowances).
type Record struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	AmountMB  float64   `db:"amount" json:"amount"`
	Activity  string    `db:"activity" json:"activity"`
	Cost      int64     `db:"cost" json:"cost"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}

// Stats aggregates a user's metered history
type Stats struct {
	TotalDataMB float64 `db:"total_data" json:"total_data_mb"`
	TotalSpent  int64   `db:"total_spent" json:"total_spent"`
	Sessions    int     `db:"sessions" json:"sessions"`
}

// Event is a single usage increment pushed by the connectivity reporter
type Event struct {
	AmountMB float64 `json:"amount_mb" validate:"required,gt=0"`
	Activity string  `json:"activity" validate:"required,max=120"`
}
