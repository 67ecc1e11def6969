package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) BalanceOf(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.BalanceOf(ctx, userID)
}

// Credit records a completed credit. Returns the ledger row and whether it was
// freshly created (false means an idempotent replay by reference).
func (s *Service) Credit(ctx context.Context, userID uuid.UUID, amount int64, description string, reference *string) (*Transaction, bool, error) {
	return s.record(ctx, userID, TransactionTypeCredit, amount, description, reference)
}

// Debit records a completed debit, failing with ErrInsufficientFunds when the
// balance would go negative
func (s *Service) Debit(ctx context.Context, userID uuid.UUID, amount int64, description string, reference *string) (*Transaction, bool, error) {
	return s.record(ctx, userID, TransactionTypeDebit, amount, description, reference)
}

func (s *Service) record(ctx context.Context, userID uuid.UUID, txType TransactionType, amount int64, description string, reference *string) (*Transaction, bool, error) {
	if amount <= 0 {
		return nil, false, ErrInvalidAmount
	}

	entry, created, err := s.repo.Record(ctx, userID, txType, amount, description, reference)
	if err != nil {
		return nil, false, err
	}

	event := log.Info().
		Str("user_id", userID.String()).
		Str("type", string(txType)).
		Int64("amount", amount).
		Bool("created", created)
	if reference != nil {
		event = event.Str("reference", *reference)
	}
	event.Msg("wallet entry applied")

	return entry, created, nil
}

// DebitTx records a debit inside an external transaction (see Repository.RecordTx)
func (s *Service) DebitTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, description string, reference *string) (*Transaction, bool, error) {
	if amount <= 0 {
		return nil, false, ErrInvalidAmount
	}
	return s.repo.RecordTx(ctx, tx, userID, TransactionTypeDebit, amount, description, reference)
}

// CreditTx records a credit inside an external transaction
func (s *Service) CreditTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, description string, reference *string) (*Transaction, bool, error) {
	if amount <= 0 {
		return nil, false, ErrInvalidAmount
	}
	return s.repo.RecordTx(ctx, tx, userID, TransactionTypeCredit, amount, description, reference)
}

func (s *Service) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Transaction, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	txs, err := s.repo.ListTransactions(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountTransactions(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}
