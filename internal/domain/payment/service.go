package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gooddeeds/gooddeeds-api/internal/domain/plan"
	"github.com/gooddeeds/gooddeeds-api/internal/domain/wallet"
	"github.com/gooddeeds/gooddeeds-api/internal/pkg/paystack"
)

const topUpDescription = "Wallet top-up"

// Gateway is the slice of the Paystack client the confirmation flow needs.
// *paystack.Client satisfies it.
type Gateway interface {
	InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeResponse, error)
	VerifyTransaction(ctx context.Context, reference string) (*paystack.Verification, error)
}

// Ledger records completed wallet entries keyed by reference
type Ledger interface {
	Credit(ctx context.Context, userID uuid.UUID, amount int64, description string, reference *string) (*wallet.Transaction, bool, error)
	Debit(ctx context.Context, userID uuid.UUID, amount int64, description string, reference *string) (*wallet.Transaction, bool, error)
}

// Plans resolves catalog entries and installs purchased bundles
type Plans interface {
	GetPlan(ctx context.Context, planID uuid.UUID) (*plan.DataPlan, error)
	ApplyBundlePurchase(ctx context.Context, userID uuid.UUID, dp *plan.DataPlan) (*plan.UserPlan, error)
}

// Referrals accrues the referrer's commission for a confirmed top-up,
// idempotently per payment reference
type Referrals interface {
	OnTopUp(ctx context.Context, referredID uuid.UUID, amount int64, reference string) error
}

// Config carries gateway presentation options
type Config struct {
	CallbackURL string
	Channels    []string
}

type Service struct {
	gateway   Gateway
	ledger    Ledger
	plans     Plans
	referrals Referrals
	cfg       Config
}

func NewService(gateway Gateway, ledger Ledger, plans Plans, referrals Referrals, cfg Config) *Service {
	return &Service{gateway: gateway, ledger: ledger, plans: plans, referrals: referrals, cfg: cfg}
}

// Initialize asks the gateway to set up a charge and returns the checkout the
// client presents to the user. Bundle purchases are priced from the catalog;
// the client-supplied amount must match.
func (s *Service) Initialize(ctx context.Context, userID uuid.UUID, email string, req InitializeRequest) (*Checkout, error) {
	amount := req.Amount

	switch req.Purpose {
	case PurposeTopUp:
	case PurposeBundlePurchase:
		dp, err := s.resolvePlan(ctx, req.PlanID)
		if err != nil {
			return nil, err
		}
		if req.Amount != dp.Price {
			return nil, fmt.Errorf("%w: got %d, plan costs %d", ErrAmountMismatch, req.Amount, dp.Price)
		}
		amount = dp.Price
	default:
		return nil, ErrInvalidPurpose
	}

	reference := paystack.GenerateReference()
	resp, err := s.gateway.InitializeTransaction(ctx, paystack.InitializeRequest{
		Email:       email,
		Amount:      amount,
		Reference:   reference,
		CallbackURL: s.cfg.CallbackURL,
		Channels:    s.cfg.Channels,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("reference", reference).
		Str("purpose", string(req.Purpose)).
		Int64("amount", amount).
		Msg("payment initialized")

	return &Checkout{
		AuthorizationURL: resp.AuthorizationURL,
		AccessCode:       resp.AccessCode,
		Reference:        resp.Reference,
	}, nil
}

// Confirm reconciles a gateway success with the ledger, exactly once per
// reference. Verification failure of any kind leaves everything untouched.
// Replays return the original ledger row and skip the plan mutation and the
// referral accrual.
func (s *Service) Confirm(ctx context.Context, userID uuid.UUID, req ConfirmRequest) (*Outcome, error) {
	verification, err := s.gateway.VerifyTransaction(ctx, req.Reference)
	if err != nil {
		log.Warn().Err(err).Str("reference", req.Reference).Msg("gateway verification failed")
		return nil, ErrPaymentNotVerified
	}
	if !verification.Success() {
		log.Warn().
			Str("reference", req.Reference).
			Str("status", verification.Status).
			Msg("payment not settled")
		return nil, ErrPaymentNotVerified
	}
	if verification.Amount != req.Amount {
		log.Warn().
			Str("reference", req.Reference).
			Int64("expected", req.Amount).
			Int64("settled", verification.Amount).
			Msg("payment amount mismatch")
		return nil, ErrPaymentNotVerified
	}

	switch req.Purpose {
	case PurposeTopUp:
		return s.confirmTopUp(ctx, userID, req)
	case PurposeBundlePurchase:
		return s.confirmBundlePurchase(ctx, userID, req)
	default:
		return nil, ErrInvalidPurpose
	}
}

func (s *Service) confirmTopUp(ctx context.Context, userID uuid.UUID, req ConfirmRequest) (*Outcome, error) {
	entry, created, err := s.ledger.Credit(ctx, userID, req.Amount, topUpDescription, &req.Reference)
	if err != nil {
		return nil, err
	}

	// The accrual is retried on every confirmation, replays included; it is
	// keyed by the payment reference, so a crash or failure after the credit
	// committed heals on the next confirm without double-accruing
	if err := s.referrals.OnTopUp(ctx, userID, req.Amount, req.Reference); err != nil {
		log.Error().Err(err).
			Str("user_id", userID.String()).
			Str("reference", req.Reference).
			Msg("referral accrual failed")
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("reference", req.Reference).
		Int64("amount", req.Amount).
		Bool("replayed", !created).
		Msg("top-up confirmed")

	return &Outcome{
		Reference:   req.Reference,
		Purpose:     PurposeTopUp,
		Replayed:    !created,
		Transaction: entry,
	}, nil
}

func (s *Service) confirmBundlePurchase(ctx context.Context, userID uuid.UUID, req ConfirmRequest) (*Outcome, error) {
	dp, err := s.resolvePlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if req.Amount != dp.Price {
		log.Warn().
			Str("reference", req.Reference).
			Int64("amount", req.Amount).
			Int64("price", dp.Price).
			Msg("bundle purchase price mismatch")
		return nil, ErrPaymentNotVerified
	}

	entry, created, err := s.ledger.Debit(ctx, userID, dp.Price, dp.Name+" purchase", &req.Reference)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		Reference:   req.Reference,
		Purpose:     PurposeBundlePurchase,
		Replayed:    !created,
		Transaction: entry,
	}

	// The plan mutation is gated on a fresh debit so a replayed reference
	// cannot re-install the bundle
	if created {
		installed, err := s.plans.ApplyBundlePurchase(ctx, userID, dp)
		if err != nil {
			return nil, err
		}
		outcome.Plan = installed
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("reference", req.Reference).
		Str("plan_id", dp.ID.String()).
		Bool("replayed", !created).
		Msg("bundle purchase confirmed")

	return outcome, nil
}

func (s *Service) resolvePlan(ctx context.Context, planID string) (*plan.DataPlan, error) {
	if planID == "" {
		return nil, ErrPlanRequired
	}
	id, err := uuid.Parse(planID)
	if err != nil {
		return nil, ErrPlanRequired
	}
	return s.plans.GetPlan(ctx, id)
}
