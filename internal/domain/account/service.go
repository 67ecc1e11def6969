package account

import (
	"context"
	"errors"
	"math/rand"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gooddeeds/gooddeeds-api/internal/domain/plan"
)

const (
	codePrefix  = "GDD-"
	codeCharset = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	codeLength  = 6
	codeRetries = 5
)

// Plans initializes the free starter plan during bootstrap
type Plans interface {
	EnsureInitialized(ctx context.Context, userID uuid.UUID) (*plan.UserPlan, error)
}

// Wallets ensures the cached balance row exists
type Wallets interface {
	EnsureWallet(ctx context.Context, userID uuid.UUID) error
}

type Service struct {
	repo    Repository
	plans   Plans
	wallets Wallets
}

func NewService(repo Repository, plans Plans, wallets Wallets) *Service {
	return &Service{repo: repo, plans: plans, wallets: wallets}
}

// EnsureInitialized bootstraps everything a first session needs: the profile
// with its referral code, the wallet row, and the free starter plan.
// Idempotent; called once per session start, never from read paths.
func (s *Service) EnsureInitialized(ctx context.Context, userID uuid.UUID, email string, req BootstrapRequest) (*Profile, error) {
	existing, err := s.repo.GetByID(ctx, userID)
	if err != nil && !errors.Is(err, ErrProfileNotFound) {
		return nil, err
	}

	if existing == nil {
		referredBy, err := s.resolveReferrer(ctx, userID, req.ReferralCode)
		if err != nil {
			return nil, err
		}
		if err := s.createProfile(ctx, userID, email, req.FullName, referredBy); err != nil {
			return nil, err
		}
		log.Info().
			Str("user_id", userID.String()).
			Bool("referred", referredBy.Valid).
			Msg("profile created")
	}

	if err := s.wallets.EnsureWallet(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := s.plans.EnsureInitialized(ctx, userID); err != nil {
		return nil, err
	}

	return s.repo.GetByID(ctx, userID)
}

func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	return s.repo.GetByID(ctx, userID)
}

// resolveReferrer turns a submitted referral code into the referrer's id.
// An unknown code is rejected so the client can correct it; a user's own code
// never counts.
func (s *Service) resolveReferrer(ctx context.Context, userID uuid.UUID, code string) (uuid.NullUUID, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return uuid.NullUUID{}, nil
	}

	referrer, err := s.repo.GetByReferralCode(ctx, code)
	if errors.Is(err, ErrProfileNotFound) {
		return uuid.NullUUID{}, ErrInvalidReferralCode
	}
	if err != nil {
		return uuid.NullUUID{}, err
	}
	if referrer.ID == userID {
		return uuid.NullUUID{}, nil
	}
	return uuid.NullUUID{UUID: referrer.ID, Valid: true}, nil
}

func (s *Service) createProfile(ctx context.Context, userID uuid.UUID, email, fullName string, referredBy uuid.NullUUID) error {
	for attempt := 0; attempt < codeRetries; attempt++ {
		p := &Profile{
			ID:           userID,
			Email:        email,
			FullName:     fullName,
			ReferralCode: generateReferralCode(),
			ReferredBy:   referredBy,
		}
		err := s.repo.Create(ctx, p)
		if errors.Is(err, ErrCodeTaken) {
			continue
		}
		return err
	}
	return ErrCodeTaken
}

func generateReferralCode() string {
	var b strings.Builder
	b.WriteString(codePrefix)
	for i := 0; i < codeLength; i++ {
		b.WriteByte(codeCharset[rand.Intn(len(codeCharset))])
	}
	return b.String()
}
