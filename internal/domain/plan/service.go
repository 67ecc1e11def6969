package plan

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Config carries the onboarding allowance constants
type Config struct {
	FreeStarterMB    float64
	FreeValidityDays int
}

const (
	catalogCacheKey = "data_plans:active"
	catalogCacheTTL = 5 * time.Minute
)

// errNoChange marks a same-state switch so Transition leaves the row untouched
var errNoChange = errors.New("no change")

type Service struct {
	repo  Repository
	cache *redis.Client // optional
	cfg   Config
}

func NewService(repo Repository, cache *redis.Client, cfg Config) *Service {
	return &Service{repo: repo, cache: cache, cfg: cfg}
}

// ListPlans returns the active catalog, served from redis when possible.
// The catalog is read-only reference data, so a short TTL is enough.
func (s *Service) ListPlans(ctx context.Context) ([]*DataPlan, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, catalogCacheKey).Bytes(); err == nil {
			var plans []*DataPlan
			if err := json.Unmarshal(cached, &plans); err == nil {
				return plans, nil
			}
		}
	}

	plans, err := s.repo.ListPlans(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(plans); err == nil {
			if err := s.cache.Set(ctx, catalogCacheKey, data, catalogCacheTTL).Err(); err != nil {
				log.Warn().Err(err).Msg("failed to cache plan catalog")
			}
		}
	}

	return plans, nil
}

func (s *Service) GetPlan(ctx context.Context, planID uuid.UUID) (*DataPlan, error) {
	dp, err := s.repo.GetPlanByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if dp == nil {
		return nil, ErrPlanNotFound
	}
	return dp, nil
}

func (s *Service) GetUserPlan(ctx context.Context, userID uuid.UUID) (*UserPlan, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// EnsureInitialized lazily creates the user's plan record: free mode with the
// starter allowance and a fixed expiry. Idempotent.
func (s *Service) EnsureInitialized(ctx context.Context, userID uuid.UUID) (*UserPlan, error) {
	if existing, err := s.repo.GetByUserID(ctx, userID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrUserPlanNotFound) {
		return nil, err
	}

	now := time.Now()
	p := &UserPlan{
		ID:            uuid.New(),
		UserID:        userID,
		PlanType:      PlanFree,
		DataBalanceMB: s.cfg.FreeStarterMB,
		ExpiryDate:    nullTime(now.AddDate(0, 0, s.cfg.FreeValidityDays)),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Float64("starter_mb", s.cfg.FreeStarterMB).
		Msg("user plan initialized")

	// Re-read in case a concurrent init won the insert
	return s.repo.GetByUserID(ctx, userID)
}

// Switch moves the user to the target billing mode, subject to the guards:
// free is a one-time onboarding state, and payg -> bundle without paused data
// requires a purchase. Switching to the current mode is a no-op.
func (s *Service) Switch(ctx context.Context, userID uuid.UUID, target PlanType) (*UserPlan, error) {
	if !target.Valid() {
		return nil, ErrInvalidPlanType
	}

	updated, err := s.repo.Transition(ctx, userID, func(p *UserPlan) error {
		return s.applySwitch(p, target)
	})
	if errors.Is(err, errNoChange) {
		return s.repo.GetByUserID(ctx, userID)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("plan_type", string(updated.PlanType)).
		Float64("data_balance", updated.DataBalanceMB).
		Float64("paused_data", updated.PausedDataMB).
		Msg("plan switched")

	return updated, nil
}

func (s *Service) applySwitch(p *UserPlan, target PlanType) error {
	if p.PlanType == target {
		return errNoChange
	}

	switch target {
	case PlanFree:
		// Free is only reselectable inside the original onboarding window by
		// a user who has never left it
		window := time.Duration(s.cfg.FreeValidityDays) * 24 * time.Hour
		if p.LeftFreeAt.Valid || time.Since(p.CreatedAt) > window {
			return ErrPlanSwitchDenied
		}
		p.PlanType = PlanFree

	case PlanPayg:
		if p.PlanType == PlanBundle && p.DataBalanceMB > 0 {
			p.PausedDataMB = p.DataBalanceMB
		}
		if p.PlanType == PlanFree {
			// The starter allowance is forfeited, not paused
			s.markLeftFree(p)
		}
		p.DataBalanceMB = 0
		p.PlanType = PlanPayg

	case PlanBundle:
		if p.PausedDataMB > 0 {
			// Frozen bundle allowance restores without repurchase
			p.DataBalanceMB = p.PausedDataMB
			p.PausedDataMB = 0
			p.PlanType = PlanBundle
			return nil
		}
		return ErrPurchaseRequired
	}

	return nil
}

// ApplyBundlePurchase installs a freshly purchased bundle. Only the payment
// confirmation flow calls this, and only for a newly created ledger debit.
func (s *Service) ApplyBundlePurchase(ctx context.Context, userID uuid.UUID, dp *DataPlan) (*UserPlan, error) {
	updated, err := s.repo.Transition(ctx, userID, func(p *UserPlan) error {
		if p.PlanType == PlanFree {
			s.markLeftFree(p)
		}
		p.PlanType = PlanBundle
		p.CurrentPlanID = uuid.NullUUID{UUID: dp.ID, Valid: true}
		p.DataBalanceMB = dp.DataAmountMB
		p.PausedDataMB = 0
		p.ExpiryDate = nullTime(time.Now().AddDate(0, 0, dp.ValidityDays))
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("plan_id", dp.ID.String()).
		Float64("data_mb", dp.DataAmountMB).
		Msg("bundle purchase applied")

	return updated, nil
}

func (s *Service) markLeftFree(p *UserPlan) {
	if !p.LeftFreeAt.Valid {
		p.LeftFreeAt = nullTime(time.Now())
	}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: true}
}
