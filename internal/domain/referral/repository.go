package referral

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository defines referral data access. Accrue and Claim both serialize on
// the referrer's profile row so concurrent top-ups and claims cannot lose
// earnings.
type Repository interface {
	// ReferrerOf returns profiles.referred_by for the given user
	ReferrerOf(ctx context.Context, userID uuid.UUID) (uuid.NullUUID, error)

	// Accrue adds amount to the referrer's pending earnings and to the
	// per-edge total, in one transaction. The payment reference is the
	// idempotency key: a reference that already accrued returns false with
	// nothing written, so confirms can retry accrual safely.
	Accrue(ctx context.Context, referrerID, referredID uuid.UUID, amount int64, reference string) (bool, error)

	// Claim locks the referrer's profile, hands the pending amount to settle,
	// and zeroes it on success. settle runs inside the same transaction.
	// Nothing pending is a no-op returning 0.
	Claim(ctx context.Context, referrerID uuid.UUID, settle func(tx *sqlx.Tx, pending int64) error) (int64, error)

	StatsByUserID(ctx context.Context, userID uuid.UUID) (*Stats, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates referral repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ReferrerOf(ctx context.Context, userID uuid.UUID) (uuid.NullUUID, error) {
	var referrer uuid.NullUUID
	err := r.db.GetContext(ctx, &referrer, `
		SELECT referred_by FROM profiles WHERE id = $1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.NullUUID{}, nil
	}
	return referrer, err
}

func (r *repository) Accrue(ctx context.Context, referrerID, referredID uuid.UUID, amount int64, reference string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	// The accrual row commits with the pending/edge updates, so a reference
	// either accrued fully or not at all
	res, err := tx.ExecContext(ctx, `
		INSERT INTO referral_accruals (id, reference, referrer_id, referred_id, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (reference) DO NOTHING
	`, uuid.New(), reference, referrerID, referredID, amount)
	if err != nil {
		return false, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if inserted == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		SELECT id FROM profiles WHERE id = $1 FOR UPDATE
	`, referrerID); err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE profiles SET pending_earnings = pending_earnings + $1, updated_at = now() WHERE id = $2
	`, amount, referrerID); err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO referrals (id, referrer_id, referred_id, earnings_total, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (referrer_id, referred_id)
		DO UPDATE SET earnings_total = referrals.earnings_total + EXCLUDED.earnings_total
	`, uuid.New(), referrerID, referredID, amount); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *repository) Claim(ctx context.Context, referrerID uuid.UUID, settle func(tx *sqlx.Tx, pending int64) error) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var pending int64
	err = tx.GetContext(ctx, &pending, `
		SELECT pending_earnings FROM profiles WHERE id = $1 FOR UPDATE
	`, referrerID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if pending <= 0 {
		return 0, nil
	}

	if err := settle(tx, pending); err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE profiles SET pending_earnings = 0, updated_at = now() WHERE id = $1
	`, referrerID); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return pending, nil
}

func (r *repository) StatsByUserID(ctx context.Context, userID uuid.UUID) (*Stats, error) {
	var stats Stats
	err := r.db.GetContext(ctx, &stats, `
		SELECT COUNT(r.id) AS total_referrals,
		       COALESCE(SUM(r.earnings_total), 0) AS total_earnings,
		       p.pending_earnings
		FROM profiles p
		LEFT JOIN referrals r ON r.referrer_id = p.id
		WHERE p.id = $1
		GROUP BY p.pending_earnings
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return &Stats{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
