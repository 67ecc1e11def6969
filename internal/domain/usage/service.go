package usage

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/gooddeeds/gooddeeds-api/internal/domain/plan"
	"github.com/gooddeeds/gooddeeds-api/internal/domain/wallet"
)

const usageDebitDescription = "Data usage charges"

// Ledger is the slice of the wallet service metering needs: a debit that
// participates in the metering transaction
type Ledger interface {
	DebitTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, description string, reference *string) (*wallet.Transaction, bool, error)
}

// Config carries the payg tariff
type Config struct {
	PerMBRateKobo int64
}

type Service struct {
	repo   Repository
	ledger Ledger
	cfg    Config
}

func NewService(repo Repository, ledger Ledger, cfg Config) *Service {
	return &Service{repo: repo, ledger: ledger, cfg: cfg}
}

// Cost returns the payg charge for a metered amount, in kobo
func (s *Service) Cost(amountMB float64) int64 {
	return int64(math.Round(amountMB * float64(s.cfg.PerMBRateKobo)))
}

// Consume settles one usage event: a wallet debit under payg, an allowance
// decrement under free/bundle. Denials leave no trace — no partial charge, no
// usage record. Exhaustion never switches the plan; the caller decides what
// to offer the user.
func (s *Service) Consume(ctx context.Context, userID uuid.UUID, amountMB float64, activity string) (*Record, error) {
	if amountMB <= 0 {
		return nil, ErrInvalidUsage
	}
	if activity == "" {
		activity = "browsing"
	}

	record, err := s.repo.Consume(ctx, userID, func(tx *sqlx.Tx, p *plan.UserPlan) (*Record, error) {
		rec := &Record{
			ID:        uuid.New(),
			UserID:    userID,
			AmountMB:  amountMB,
			Activity:  activity,
			Timestamp: time.Now(),
		}

		if p.PlanType == plan.PlanPayg {
			// Sub-kobo costs round to zero; there is nothing to debit and the
			// ledger rejects zero amounts
			cost := s.Cost(amountMB)
			if cost > 0 {
				if _, _, err := s.ledger.DebitTx(ctx, tx, userID, cost, usageDebitDescription, nil); err != nil {
					if errors.Is(err, wallet.ErrInsufficientFunds) {
						return nil, ErrUsageDenied
					}
					return nil, err
				}
			}
			rec.Cost = cost
			return rec, nil
		}

		// free and bundle meter against the active allowance; paused data is
		// never read here
		newBalance := p.DataBalanceMB - amountMB
		if newBalance < 0 {
			return nil, ErrAllowanceExhausted
		}
		p.DataBalanceMB = newBalance
		return rec, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Float64("amount_mb", amountMB).
		Str("activity", activity).
		Int64("cost", record.Cost).
		Msg("usage recorded")

	return record, nil
}

func (s *Service) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Record, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByUserID(ctx, userID, limit, offset)
}

func (s *Service) Stats(ctx context.Context, userID uuid.UUID) (*Stats, error) {
	return s.repo.StatsByUserID(ctx, userID)
}
