package referral

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/gooddeeds/gooddeeds-api/internal/domain/wallet"
)

const claimDescription = "Referral earnings"

// Ledger is the slice of the wallet service claims need: a credit that
// participates in the claim transaction
type Ledger interface {
	CreditTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, description string, reference *string) (*wallet.Transaction, bool, error)
}

// Config carries the commission rate in basis points (200 = 2%)
type Config struct {
	RateBP int64
}

type Service struct {
	repo   Repository
	ledger Ledger
	cfg    Config
}

func NewService(repo Repository, ledger Ledger, cfg Config) *Service {
	return &Service{repo: repo, ledger: ledger, cfg: cfg}
}

// Commission returns the referrer's cut of a top-up, in kobo, rounded down
func (s *Service) Commission(amount int64) int64 {
	return amount * s.cfg.RateBP / 10000
}

// OnTopUp accrues the referrer's commission for a confirmed top-up. A no-op
// when the user was not referred or the commission rounds to zero. The
// payment reference makes the accrual idempotent: the caller retries it on
// every confirmation of the same payment and exactly one accrual lands.
// Accrual goes to pending earnings, not the wallet; the referrer claims it
// later.
func (s *Service) OnTopUp(ctx context.Context, referredID uuid.UUID, amount int64, reference string) error {
	commission := s.Commission(amount)
	if commission <= 0 {
		return nil
	}

	referrer, err := s.repo.ReferrerOf(ctx, referredID)
	if err != nil {
		return err
	}
	if !referrer.Valid || referrer.UUID == referredID {
		return nil
	}

	applied, err := s.repo.Accrue(ctx, referrer.UUID, referredID, commission, reference)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	log.Info().
		Str("referrer_id", referrer.UUID.String()).
		Str("referred_id", referredID.String()).
		Str("reference", reference).
		Int64("commission", commission).
		Msg("referral commission accrued")

	return nil
}

// Claim moves all pending earnings into the referrer's wallet. The credit and
// the pending reset commit together or not at all. Nothing pending claims 0.
func (s *Service) Claim(ctx context.Context, userID uuid.UUID) (int64, error) {
	claimed, err := s.repo.Claim(ctx, userID, func(tx *sqlx.Tx, pending int64) error {
		_, _, err := s.ledger.CreditTx(ctx, tx, userID, pending, claimDescription, nil)
		return err
	})
	if err != nil {
		return 0, err
	}

	if claimed > 0 {
		log.Info().
			Str("user_id", userID.String()).
			Int64("amount", claimed).
			Msg("referral earnings claimed")
	}

	return claimed, nil
}

func (s *Service) Stats(ctx context.Context, userID uuid.UUID) (*Stats, error) {
	return s.repo.StatsByUserID(ctx, userID)
}
