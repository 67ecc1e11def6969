package usage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gooddeeds/gooddeeds-api/internal/domain/plan"
)

// Repository defines usage data access. Consume serializes against plan
// switches by locking the same user_plans row they lock.
type Repository interface {
	// Consume locks the user's plan row, runs the metering decision, writes
	// back the (possibly decremented) data balance, and appends the returned
	// usage record — all in one transaction. An error from decide aborts with
	// nothing written.
	Consume(ctx context.Context, userID uuid.UUID, decide func(tx *sqlx.Tx, p *plan.UserPlan) (*Record, error)) (*Record, error)

	ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Record, error)
	StatsByUserID(ctx context.Context, userID uuid.UUID) (*Stats, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates usage repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Consume(ctx context.Context, userID uuid.UUID, decide func(tx *sqlx.Tx, p *plan.UserPlan) (*Record, error)) (*Record, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var p plan.UserPlan
	err = tx.GetContext(ctx, &p, `
		SELECT id, user_id, plan_type, current_plan_id, data_balance, paused_data, expiry_date, left_free_at, created_at, updated_at
		FROM user_plans
		WHERE user_id = $1
		FOR UPDATE
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, plan.ErrUserPlanNotFound
	}
	if err != nil {
		return nil, err
	}

	before := p.DataBalanceMB
	record, err := decide(tx, &p)
	if err != nil {
		return nil, err
	}

	if p.DataBalanceMB != before {
		if _, err := tx.ExecContext(ctx, `
			UPDATE user_plans SET data_balance = $1, updated_at = now() WHERE user_id = $2
		`, p.DataBalanceMB, userID); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO usage_records (id, user_id, amount, activity, cost, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, record.ID, record.UserID, record.AmountMB, record.Activity, record.Cost, record.Timestamp); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return record, nil
}

func (r *repository) ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Record, error) {
	var records []Record
	err := r.db.SelectContext(ctx, &records, `
		SELECT id, user_id, amount, activity, cost, timestamp
		FROM usage_records
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return records, err
}

func (r *repository) StatsByUserID(ctx context.Context, userID uuid.UUID) (*Stats, error) {
	var stats Stats
	err := r.db.GetContext(ctx, &stats, `
		SELECT COALESCE(SUM(amount), 0) AS total_data,
		       COALESCE(SUM(cost), 0) AS total_spent,
		       COUNT(*) AS sessions
		FROM usage_records
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
