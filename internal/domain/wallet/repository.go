package wallet

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) EnsureWallet(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_wallets (user_id, balance)
		VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	return err
}

func (r *Repository) BalanceOf(ctx context.Context, userID uuid.UUID) (int64, error) {
	if err := r.EnsureWallet(ctx, userID); err != nil {
		return 0, err
	}

	var balance int64
	err := r.db.GetContext(ctx, &balance, `SELECT balance FROM user_wallets WHERE user_id = $1`, userID)
	return balance, err
}

// ReconcileBalance recomputes the balance from completed ledger rows,
// bypassing the cached wallet row
func (r *Repository) ReconcileBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	err := r.db.GetContext(ctx, &balance, `
		SELECT COALESCE(SUM(CASE WHEN type = 'credit' THEN amount ELSE -amount END), 0)
		FROM wallet_transactions
		WHERE user_id = $1 AND status = 'completed'
	`, userID)
	return balance, err
}

func (r *Repository) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Transaction, error) {
	var txs []Transaction
	err := r.db.SelectContext(ctx, &txs, `
		SELECT id, user_id, type, amount, description, reference, status, created_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return txs, err
}

func (r *Repository) CountTransactions(ctx context.Context, userID uuid.UUID) (int, error) {
	var total int
	err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM wallet_transactions WHERE user_id = $1`, userID)
	return total, err
}

// Record applies a ledger entry in its own transaction. The returned bool is
// true when a new row was created, false on an idempotent replay.
func (r *Repository) Record(ctx context.Context, userID uuid.UUID, txType TransactionType, amount int64, description string, reference *string) (*Transaction, bool, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	entry, created, err := r.RecordTx(ctx, tx, userID, txType, amount, description, reference)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return entry, created, nil
}

// RecordTx applies a ledger entry within an external transaction so callers
// can compose it atomically with their own writes (metering, referral claims).
// The wallet row is locked FOR UPDATE, serializing concurrent entries per user.
func (r *Repository) RecordTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, txType TransactionType, amount int64, description string, reference *string) (*Transaction, bool, error) {
	balance, err := r.lockWallet(ctx, tx, userID)
	if err != nil {
		return nil, false, err
	}

	if existing, err := r.findByReference(ctx, tx, userID, reference); err != nil {
		return nil, false, err
	} else if existing != nil {
		if existing.Amount != amount || existing.Type != txType {
			return nil, false, ErrReferenceConflict
		}
		return existing, false, nil
	}

	entry := &Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        txType,
		Amount:      amount,
		Description: description,
		Reference:   reference,
		Status:      StatusCompleted,
		CreatedAt:   time.Now(),
	}

	nextBalance := balance + entry.Delta()
	if nextBalance < 0 {
		return nil, false, ErrInsufficientFunds
	}

	if err := r.updateBalance(ctx, tx, userID, nextBalance); err != nil {
		return nil, false, err
	}

	if err := r.insertTransaction(ctx, tx, entry); err != nil {
		if errors.Is(err, errDuplicateReference) {
			// Lost a race on the unique index; resolve as replay or conflict
			existing, checkErr := r.findByReference(ctx, tx, userID, reference)
			if checkErr != nil {
				return nil, false, checkErr
			}
			if existing == nil || existing.Amount != amount || existing.Type != txType {
				return nil, false, ErrReferenceConflict
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	return entry, true, nil
}

var errDuplicateReference = errors.New("duplicate reference")

func (r *Repository) lockWallet(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (int64, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_wallets (user_id, balance)
		VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return 0, err
	}

	var balance int64
	err := tx.GetContext(ctx, &balance, `SELECT balance FROM user_wallets WHERE user_id = $1 FOR UPDATE`, userID)
	return balance, err
}

func (r *Repository) findByReference(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, reference *string) (*Transaction, error) {
	if reference == nil || *reference == "" {
		return nil, nil
	}

	var existing Transaction
	err := tx.GetContext(ctx, &existing, `
		SELECT id, user_id, type, amount, description, reference, status, created_at
		FROM wallet_transactions
		WHERE user_id = $1 AND reference = $2 AND status = 'completed'
		LIMIT 1
	`, userID, *reference)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

func (r *Repository) updateBalance(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, balance int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE user_wallets SET balance = $1, updated_at = now() WHERE user_id = $2`, balance, userID)
	return err
}

func (r *Repository) insertTransaction(ctx context.Context, tx *sqlx.Tx, entry *Transaction) error {
	var ref interface{}
	if entry.Reference == nil || *entry.Reference == "" {
		ref = nil
	} else {
		ref = *entry.Reference
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions (id, user_id, type, amount, description, reference, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.UserID, string(entry.Type), entry.Amount, entry.Description, ref, string(entry.Status), entry.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return errDuplicateReference
		}
		return err
	}
	return nil
}
