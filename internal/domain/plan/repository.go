package plan

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository defines plan data access. Transition runs its mutation callback
// under a per-user row lock, so concurrent switches and metering calls are
// serialized on the same user_plans row.
type Repository interface {
	// Catalog
	GetPlanByID(ctx context.Context, id uuid.UUID) (*DataPlan, error)
	ListPlans(ctx context.Context) ([]*DataPlan, error)

	// User plans
	GetByUserID(ctx context.Context, userID uuid.UUID) (*UserPlan, error)
	Create(ctx context.Context, p *UserPlan) error
	Transition(ctx context.Context, userID uuid.UUID, mutate func(p *UserPlan) error) (*UserPlan, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates plan repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const dataPlanColumns = `id, name, type, data_amount, price, validity_days, description, is_popular, is_active, created_at`

func (r *repository) GetPlanByID(ctx context.Context, id uuid.UUID) (*DataPlan, error) {
	var dp DataPlan
	err := r.db.GetContext(ctx, &dp, `
		SELECT `+dataPlanColumns+`
		FROM data_plans
		WHERE id = $1 AND is_active = true
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dp, nil
}

func (r *repository) ListPlans(ctx context.Context) ([]*DataPlan, error) {
	var plans []*DataPlan
	err := r.db.SelectContext(ctx, &plans, `
		SELECT `+dataPlanColumns+`
		FROM data_plans
		WHERE is_active = true
		ORDER BY price
	`)
	return plans, err
}

const userPlanColumns = `id, user_id, plan_type, current_plan_id, data_balance, paused_data, expiry_date, left_free_at, created_at, updated_at`

func (r *repository) GetByUserID(ctx context.Context, userID uuid.UUID) (*UserPlan, error) {
	var p UserPlan
	err := r.db.GetContext(ctx, &p, `
		SELECT `+userPlanColumns+`
		FROM user_plans
		WHERE user_id = $1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a user plan if none exists yet. Safe to call repeatedly.
func (r *repository) Create(ctx context.Context, p *UserPlan) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_plans (id, user_id, plan_type, current_plan_id, data_balance, paused_data, expiry_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO NOTHING
	`, p.ID, p.UserID, string(p.PlanType), p.CurrentPlanID, p.DataBalanceMB, p.PausedDataMB, p.ExpiryDate, p.CreatedAt, p.UpdatedAt)
	return err
}

// Transition locks the user's plan row, applies the mutation, and writes all
// mutable fields back in one UPDATE. An error from mutate aborts with no
// change; the row is never observable mid-transition.
func (r *repository) Transition(ctx context.Context, userID uuid.UUID, mutate func(p *UserPlan) error) (*UserPlan, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var p UserPlan
	err = tx.GetContext(ctx, &p, `
		SELECT `+userPlanColumns+`
		FROM user_plans
		WHERE user_id = $1
		FOR UPDATE
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserPlanNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := mutate(&p); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE user_plans
		SET plan_type = $1, current_plan_id = $2, data_balance = $3, paused_data = $4,
		    expiry_date = $5, left_free_at = $6, updated_at = now()
		WHERE user_id = $7
	`, string(p.PlanType), p.CurrentPlanID, p.DataBalanceMB, p.PausedDataMB, p.ExpiryDate, p.LeftFreeAt, userID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &p, nil
}
