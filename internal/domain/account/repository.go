package account

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Repository defines profile data access
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	GetByReferralCode(ctx context.Context, code string) (*Profile, error)
	// Create inserts the profile unless one already exists for the id.
	// ErrCodeTaken signals a referral-code collision so the caller can retry
	// with a fresh code.
	Create(ctx context.Context, p *Profile) error
}

// ErrCodeTaken is internal to profile creation retries
var ErrCodeTaken = errors.New("referral code already taken")

const profileColumns = `id, email, full_name, referral_code, referred_by, pending_earnings, created_at, updated_at`

type repository struct {
	db *sqlx.DB
}

// NewRepository creates account repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	var p Profile
	err := r.db.GetContext(ctx, &p, `
		SELECT `+profileColumns+` FROM profiles WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) GetByReferralCode(ctx context.Context, code string) (*Profile, error) {
	var p Profile
	err := r.db.GetContext(ctx, &p, `
		SELECT `+profileColumns+` FROM profiles WHERE referral_code = $1
	`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) Create(ctx context.Context, p *Profile) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, full_name, referral_code, referred_by, pending_earnings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, now(), now())
		ON CONFLICT (id) DO NOTHING
	`, p.ID, p.Email, p.FullName, p.ReferralCode, p.ReferredBy)
	if err != nil {
		var pqErr *pq.Error
		// 23505 on the referral_code unique index, not the primary key
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrCodeTaken
		}
		return err
	}
	return nil
}
