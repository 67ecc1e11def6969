package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/gooddeeds/gooddeeds-api/internal/domain/plan"
	"github.com/gooddeeds/gooddeeds-api/internal/domain/wallet"
	"github.com/gooddeeds/gooddeeds-api/internal/pkg/paystack"
)

type gatewayStub struct {
	verifications map[string]*paystack.Verification
	verifyErr     error
	initialized   []paystack.InitializeRequest
}

func (g *gatewayStub) InitializeTransaction(_ context.Context, req paystack.InitializeRequest) (*paystack.InitializeResponse, error) {
	g.initialized = append(g.initialized, req)
	return &paystack.InitializeResponse{
		AuthorizationURL: "https://checkout.paystack.com/abc",
		AccessCode:       "abc",
		Reference:        req.Reference,
	}, nil
}

func (g *gatewayStub) VerifyTransaction(_ context.Context, reference string) (*paystack.Verification, error) {
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	v, ok := g.verifications[reference]
	if !ok {
		return &paystack.Verification{Status: "abandoned", Reference: reference}, nil
	}
	return v, nil
}

type ledgerStub struct {
	balance int64
	byRef   map[string]*wallet.Transaction
}

func newLedgerStub(balance int64) *ledgerStub {
	return &ledgerStub{balance: balance, byRef: map[string]*wallet.Transaction{}}
}

func (l *ledgerStub) record(userID uuid.UUID, txType wallet.TransactionType, amount int64, description string, reference *string) (*wallet.Transaction, bool, error) {
	if reference != nil {
		if existing, ok := l.byRef[*reference]; ok {
			return existing, false, nil
		}
	}
	if txType == wallet.TransactionTypeDebit && l.balance-amount < 0 {
		return nil, false, wallet.ErrInsufficientFunds
	}
	entry := &wallet.Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        txType,
		Amount:      amount,
		Description: description,
		Reference:   reference,
		Status:      wallet.StatusCompleted,
	}
	if txType == wallet.TransactionTypeDebit {
		l.balance -= amount
	} else {
		l.balance += amount
	}
	if reference != nil {
		l.byRef[*reference] = entry
	}
	return entry, true, nil
}

func (l *ledgerStub) Credit(_ context.Context, userID uuid.UUID, amount int64, description string, reference *string) (*wallet.Transaction, bool, error) {
	return l.record(userID, wallet.TransactionTypeCredit, amount, description, reference)
}

func (l *ledgerStub) Debit(_ context.Context, userID uuid.UUID, amount int64, description string, reference *string) (*wallet.Transaction, bool, error) {
	return l.record(userID, wallet.TransactionTypeDebit, amount, description, reference)
}

type plansStub struct {
	catalog   map[uuid.UUID]*plan.DataPlan
	installed []uuid.UUID
}

func (p *plansStub) GetPlan(_ context.Context, planID uuid.UUID) (*plan.DataPlan, error) {
	dp, ok := p.catalog[planID]
	if !ok {
		return nil, plan.ErrPlanNotFound
	}
	return dp, nil
}

func (p *plansStub) ApplyBundlePurchase(_ context.Context, userID uuid.UUID, dp *plan.DataPlan) (*plan.UserPlan, error) {
	p.installed = append(p.installed, dp.ID)
	return &plan.UserPlan{
		UserID:        userID,
		PlanType:      plan.PlanBundle,
		CurrentPlanID: uuid.NullUUID{UUID: dp.ID, Valid: true},
		DataBalanceMB: dp.DataAmountMB,
	}, nil
}

type referralsStub struct {
	accruals []int64
	byRef    map[string]bool
	failNext error
}

func (r *referralsStub) OnTopUp(_ context.Context, _ uuid.UUID, amount int64, reference string) error {
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	if r.byRef == nil {
		r.byRef = map[string]bool{}
	}
	if r.byRef[reference] {
		return nil
	}
	r.byRef[reference] = true
	r.accruals = append(r.accruals, amount)
	return nil
}

func testPayment(balance int64) (*Service, *gatewayStub, *ledgerStub, *plansStub, *referralsStub) {
	gateway := &gatewayStub{verifications: map[string]*paystack.Verification{}}
	ledger := newLedgerStub(balance)
	plans := &plansStub{catalog: map[uuid.UUID]*plan.DataPlan{}}
	referrals := &referralsStub{}
	svc := NewService(gateway, ledger, plans, referrals, Config{
		CallbackURL: "https://app.gooddeeds.ng/payment/callback",
		Channels:    []string{"card", "bank", "ussd"},
	})
	return svc, gateway, ledger, plans, referrals
}

func settle(g *gatewayStub, reference string, amount int64) {
	g.verifications[reference] = &paystack.Verification{
		Status:    "success",
		Reference: reference,
		Amount:    amount,
	}
}

func TestConfirmTopUpCreditsAndAccrues(t *testing.T) {
	svc, gateway, ledger, _, referrals := testPayment(0)
	settle(gateway, "gdd_1_1", 10000)

	out, err := svc.Confirm(context.Background(), uuid.New(), ConfirmRequest{
		Reference: "gdd_1_1", Amount: 10000, Purpose: PurposeTopUp,
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Replayed {
		t.Fatal("first confirmation must not be a replay")
	}
	if out.Transaction.Description != "Wallet top-up" {
		t.Fatalf("unexpected description %q", out.Transaction.Description)
	}
	if ledger.balance != 10000 {
		t.Fatalf("expected balance 10000, got %d", ledger.balance)
	}
	if len(referrals.accruals) != 1 || referrals.accruals[0] != 10000 {
		t.Fatalf("expected one accrual of 10000, got %v", referrals.accruals)
	}
}

func TestConfirmTopUpReplayIsIdempotent(t *testing.T) {
	svc, gateway, ledger, _, referrals := testPayment(0)
	settle(gateway, "gdd_1_2", 10000)
	userID := uuid.New()
	req := ConfirmRequest{Reference: "gdd_1_2", Amount: 10000, Purpose: PurposeTopUp}

	first, err := svc.Confirm(context.Background(), userID, req)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	second, err := svc.Confirm(context.Background(), userID, req)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !second.Replayed {
		t.Fatal("second confirmation must be a replay")
	}
	if second.Transaction.ID != first.Transaction.ID {
		t.Fatal("replay must return the original ledger row")
	}
	if ledger.balance != 10000 {
		t.Fatalf("replay must not double-credit, balance %d", ledger.balance)
	}
	if len(referrals.accruals) != 1 {
		t.Fatalf("replay must not re-accrue, got %d accruals", len(referrals.accruals))
	}
}

func TestConfirmTopUpReplayHealsLostAccrual(t *testing.T) {
	svc, gateway, ledger, _, referrals := testPayment(0)
	settle(gateway, "gdd_1_6", 10000)
	userID := uuid.New()
	req := ConfirmRequest{Reference: "gdd_1_6", Amount: 10000, Purpose: PurposeTopUp}

	// Accrual dies after the credit committed; the confirmation still succeeds
	referrals.failNext = errors.New("db unavailable")
	first, err := svc.Confirm(context.Background(), userID, req)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if first.Replayed {
		t.Fatal("first confirmation must not be a replay")
	}
	if len(referrals.accruals) != 0 {
		t.Fatal("failed accrual must not land")
	}

	// Re-confirming the same reference replays the credit and retries the
	// accrual, landing it exactly once
	second, err := svc.Confirm(context.Background(), userID, req)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !second.Replayed {
		t.Fatal("second confirmation must be a replay")
	}
	if len(referrals.accruals) != 1 || referrals.accruals[0] != 10000 {
		t.Fatalf("expected the retry to land one accrual of 10000, got %v", referrals.accruals)
	}
	if ledger.balance != 10000 {
		t.Fatalf("replay must not double-credit, balance %d", ledger.balance)
	}
}

func TestConfirmFailsWhenNotSettled(t *testing.T) {
	svc, _, ledger, _, _ := testPayment(0)

	_, err := svc.Confirm(context.Background(), uuid.New(), ConfirmRequest{
		Reference: "gdd_1_3", Amount: 10000, Purpose: PurposeTopUp,
	})
	if !errors.Is(err, ErrPaymentNotVerified) {
		t.Fatalf("expected ErrPaymentNotVerified, got %v", err)
	}
	if ledger.balance != 0 {
		t.Fatal("unverified payment must not touch the ledger")
	}
}

func TestConfirmFailsOnGatewayError(t *testing.T) {
	svc, gateway, _, _, _ := testPayment(0)
	gateway.verifyErr = errors.New("gateway timeout")

	_, err := svc.Confirm(context.Background(), uuid.New(), ConfirmRequest{
		Reference: "gdd_1_4", Amount: 10000, Purpose: PurposeTopUp,
	})
	if !errors.Is(err, ErrPaymentNotVerified) {
		t.Fatalf("expected ErrPaymentNotVerified, got %v", err)
	}
}

func TestConfirmFailsOnAmountMismatch(t *testing.T) {
	svc, gateway, ledger, _, _ := testPayment(0)
	settle(gateway, "gdd_1_5", 5000)

	_, err := svc.Confirm(context.Background(), uuid.New(), ConfirmRequest{
		Reference: "gdd_1_5", Amount: 10000, Purpose: PurposeTopUp,
	})
	if !errors.Is(err, ErrPaymentNotVerified) {
		t.Fatalf("expected ErrPaymentNotVerified, got %v", err)
	}
	if ledger.balance != 0 {
		t.Fatal("mismatched payment must not touch the ledger")
	}
}

func TestConfirmBundlePurchaseInstallsPlanOnce(t *testing.T) {
	svc, gateway, ledger, plans, _ := testPayment(20000)
	dp := &plan.DataPlan{ID: uuid.New(), Name: "1GB Bundle", Type: plan.PlanBundle, DataAmountMB: 1024, Price: 15000, ValidityDays: 7}
	plans.catalog[dp.ID] = dp
	settle(gateway, "gdd_2_1", 15000)
	userID := uuid.New()
	req := ConfirmRequest{Reference: "gdd_2_1", Amount: 15000, Purpose: PurposeBundlePurchase, PlanID: dp.ID.String()}

	out, err := svc.Confirm(context.Background(), userID, req)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Plan == nil || out.Plan.PlanType != plan.PlanBundle {
		t.Fatal("fresh purchase must install the bundle")
	}
	if out.Transaction.Description != "1GB Bundle purchase" {
		t.Fatalf("unexpected description %q", out.Transaction.Description)
	}
	if ledger.balance != 5000 {
		t.Fatalf("expected balance 5000 after debit, got %d", ledger.balance)
	}

	// Replay: same reference, no second install
	again, err := svc.Confirm(context.Background(), userID, req)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !again.Replayed || again.Plan != nil {
		t.Fatal("replay must skip the plan mutation")
	}
	if len(plans.installed) != 1 {
		t.Fatalf("expected exactly one install, got %d", len(plans.installed))
	}
	if ledger.balance != 5000 {
		t.Fatalf("replay must not double-debit, balance %d", ledger.balance)
	}
}

func TestConfirmBundlePurchaseRequiresPlan(t *testing.T) {
	svc, gateway, _, _, _ := testPayment(20000)
	settle(gateway, "gdd_2_2", 15000)

	_, err := svc.Confirm(context.Background(), uuid.New(), ConfirmRequest{
		Reference: "gdd_2_2", Amount: 15000, Purpose: PurposeBundlePurchase,
	})
	if !errors.Is(err, ErrPlanRequired) {
		t.Fatalf("expected ErrPlanRequired, got %v", err)
	}
}

func TestConfirmBundlePurchasePriceMismatch(t *testing.T) {
	svc, gateway, ledger, plans, _ := testPayment(20000)
	dp := &plan.DataPlan{ID: uuid.New(), Name: "1GB Bundle", Price: 15000}
	plans.catalog[dp.ID] = dp
	settle(gateway, "gdd_2_3", 10000)

	_, err := svc.Confirm(context.Background(), uuid.New(), ConfirmRequest{
		Reference: "gdd_2_3", Amount: 10000, Purpose: PurposeBundlePurchase, PlanID: dp.ID.String(),
	})
	if !errors.Is(err, ErrPaymentNotVerified) {
		t.Fatalf("expected ErrPaymentNotVerified, got %v", err)
	}
	if ledger.balance != 20000 || len(plans.installed) != 0 {
		t.Fatal("price mismatch must leave everything untouched")
	}
}

func TestConfirmBundlePurchaseAbortsOnInsufficientFunds(t *testing.T) {
	svc, gateway, _, plans, _ := testPayment(1000)
	dp := &plan.DataPlan{ID: uuid.New(), Name: "1GB Bundle", Price: 15000}
	plans.catalog[dp.ID] = dp
	settle(gateway, "gdd_2_4", 15000)

	_, err := svc.Confirm(context.Background(), uuid.New(), ConfirmRequest{
		Reference: "gdd_2_4", Amount: 15000, Purpose: PurposeBundlePurchase, PlanID: dp.ID.String(),
	})
	if !errors.Is(err, wallet.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if len(plans.installed) != 0 {
		t.Fatal("aborted purchase must not install the bundle")
	}
}

func TestInitializeTopUp(t *testing.T) {
	svc, gateway, _, _, _ := testPayment(0)

	checkout, err := svc.Initialize(context.Background(), uuid.New(), "ada@example.com", InitializeRequest{
		Amount: 10000, Purpose: PurposeTopUp,
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if checkout.AuthorizationURL == "" || checkout.Reference == "" {
		t.Fatal("checkout must carry the gateway URL and reference")
	}
	if len(gateway.initialized) != 1 {
		t.Fatal("expected one gateway call")
	}
	got := gateway.initialized[0]
	if got.Email != "ada@example.com" || got.Amount != 10000 {
		t.Fatalf("unexpected gateway request: %+v", got)
	}
	if len(got.Channels) == 0 {
		t.Fatal("channels must be forwarded")
	}
}

func TestInitializeBundleRejectsWrongAmount(t *testing.T) {
	svc, _, _, plans, _ := testPayment(0)
	dp := &plan.DataPlan{ID: uuid.New(), Name: "5GB Bundle", Price: 65000}
	plans.catalog[dp.ID] = dp

	_, err := svc.Initialize(context.Background(), uuid.New(), "ada@example.com", InitializeRequest{
		Amount: 10000, Purpose: PurposeBundlePurchase, PlanID: dp.ID.String(),
	})
	if !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}
}
