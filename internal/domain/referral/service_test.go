package referral

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gooddeeds/gooddeeds-api/internal/domain/wallet"
)

type repoStub struct {
	referrers map[uuid.UUID]uuid.NullUUID
	pending   map[uuid.UUID]int64
	edges     map[[2]uuid.UUID]int64
	accrued   map[string]bool
	accrueErr error
}

func newRepoStub() *repoStub {
	return &repoStub{
		referrers: map[uuid.UUID]uuid.NullUUID{},
		pending:   map[uuid.UUID]int64{},
		edges:     map[[2]uuid.UUID]int64{},
		accrued:   map[string]bool{},
	}
}

func (r *repoStub) ReferrerOf(_ context.Context, userID uuid.UUID) (uuid.NullUUID, error) {
	return r.referrers[userID], nil
}

func (r *repoStub) Accrue(_ context.Context, referrerID, referredID uuid.UUID, amount int64, reference string) (bool, error) {
	if r.accrueErr != nil {
		err := r.accrueErr
		r.accrueErr = nil
		return false, err
	}
	if r.accrued[reference] {
		return false, nil
	}
	r.accrued[reference] = true
	r.pending[referrerID] += amount
	r.edges[[2]uuid.UUID{referrerID, referredID}] += amount
	return true, nil
}

func (r *repoStub) Claim(_ context.Context, referrerID uuid.UUID, settle func(tx *sqlx.Tx, pending int64) error) (int64, error) {
	pending := r.pending[referrerID]
	if pending <= 0 {
		return 0, nil
	}
	if err := settle(nil, pending); err != nil {
		return 0, err
	}
	r.pending[referrerID] = 0
	return pending, nil
}

func (r *repoStub) StatsByUserID(_ context.Context, userID uuid.UUID) (*Stats, error) {
	stats := &Stats{PendingEarnings: r.pending[userID]}
	for edge, total := range r.edges {
		if edge[0] == userID {
			stats.TotalReferrals++
			stats.TotalEarnings += total
		}
	}
	return stats, nil
}

type creditStub struct {
	credits []int64
	fail    error
}

func (l *creditStub) CreditTx(_ context.Context, _ *sqlx.Tx, userID uuid.UUID, amount int64, description string, _ *string) (*wallet.Transaction, bool, error) {
	if l.fail != nil {
		return nil, false, l.fail
	}
	l.credits = append(l.credits, amount)
	return &wallet.Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        wallet.TransactionTypeCredit,
		Amount:      amount,
		Status:      wallet.StatusCompleted,
		Description: description,
	}, true, nil
}

func testReferral() (*Service, *repoStub, *creditStub) {
	repo := newRepoStub()
	ledger := &creditStub{}
	return NewService(repo, ledger, Config{RateBP: 200}), repo, ledger
}

func TestOnTopUpAccruesCommission(t *testing.T) {
	svc, repo, _ := testReferral()
	referrer, referred := uuid.New(), uuid.New()
	repo.referrers[referred] = uuid.NullUUID{UUID: referrer, Valid: true}

	// 2% of 10000 kobo
	if err := svc.OnTopUp(context.Background(), referred, 10000, "gdd_1_1"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if repo.pending[referrer] != 200 {
		t.Fatalf("expected pending 200, got %d", repo.pending[referrer])
	}

	// Accruals stack across top-ups
	if err := svc.OnTopUp(context.Background(), referred, 50000, "gdd_1_2"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if repo.pending[referrer] != 1200 {
		t.Fatalf("expected pending 1200, got %d", repo.pending[referrer])
	}
	if repo.edges[[2]uuid.UUID{referrer, referred}] != 1200 {
		t.Fatal("edge total must track accruals")
	}
}

func TestOnTopUpIdempotentPerReference(t *testing.T) {
	svc, repo, _ := testReferral()
	referrer, referred := uuid.New(), uuid.New()
	repo.referrers[referred] = uuid.NullUUID{UUID: referrer, Valid: true}

	// Same payment confirmed twice accrues exactly once
	for i := 0; i < 2; i++ {
		if err := svc.OnTopUp(context.Background(), referred, 10000, "gdd_2_1"); err != nil {
			t.Fatalf("attempt %d: unexpected err: %v", i, err)
		}
	}
	if repo.pending[referrer] != 200 {
		t.Fatalf("expected a single accrual of 200, got %d", repo.pending[referrer])
	}
}

func TestOnTopUpRetryAfterFailure(t *testing.T) {
	svc, repo, _ := testReferral()
	referrer, referred := uuid.New(), uuid.New()
	repo.referrers[referred] = uuid.NullUUID{UUID: referrer, Valid: true}
	repo.accrueErr = errors.New("db unavailable")

	if err := svc.OnTopUp(context.Background(), referred, 10000, "gdd_2_2"); err == nil {
		t.Fatal("expected first accrual to fail")
	}
	if repo.pending[referrer] != 0 {
		t.Fatal("failed accrual must write nothing")
	}

	// The retry with the same reference lands the commission
	if err := svc.OnTopUp(context.Background(), referred, 10000, "gdd_2_2"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if repo.pending[referrer] != 200 {
		t.Fatalf("expected pending 200 after retry, got %d", repo.pending[referrer])
	}
}

func TestOnTopUpWithoutReferrerIsNoop(t *testing.T) {
	svc, repo, _ := testReferral()

	if err := svc.OnTopUp(context.Background(), uuid.New(), 10000, "gdd_3_1"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(repo.pending) != 0 {
		t.Fatal("unreferred top-up must not accrue")
	}
}

func TestOnTopUpSkipsZeroCommission(t *testing.T) {
	svc, repo, _ := testReferral()
	referrer, referred := uuid.New(), uuid.New()
	repo.referrers[referred] = uuid.NullUUID{UUID: referrer, Valid: true}

	// 2% of 49 kobo rounds down to zero
	if err := svc.OnTopUp(context.Background(), referred, 49, "gdd_3_2"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if repo.pending[referrer] != 0 {
		t.Fatal("sub-kobo commission must not accrue")
	}
}

func TestOnTopUpIgnoresSelfReferral(t *testing.T) {
	svc, repo, _ := testReferral()
	userID := uuid.New()
	repo.referrers[userID] = uuid.NullUUID{UUID: userID, Valid: true}

	if err := svc.OnTopUp(context.Background(), userID, 10000, "gdd_3_3"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if repo.pending[userID] != 0 {
		t.Fatal("self-referral must not accrue")
	}
}

func TestClaimCreditsWalletAndResetsPending(t *testing.T) {
	svc, repo, ledger := testReferral()
	referrer := uuid.New()
	repo.pending[referrer] = 1500

	claimed, err := svc.Claim(context.Background(), referrer)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if claimed != 1500 {
		t.Fatalf("expected claim of 1500, got %d", claimed)
	}
	if repo.pending[referrer] != 0 {
		t.Fatal("claim must reset pending earnings")
	}
	if len(ledger.credits) != 1 || ledger.credits[0] != 1500 {
		t.Fatalf("expected a single wallet credit of 1500, got %v", ledger.credits)
	}
}

func TestClaimWithNothingPendingIsNoop(t *testing.T) {
	svc, _, ledger := testReferral()

	claimed, err := svc.Claim(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("empty claim must succeed, got %v", err)
	}
	if claimed != 0 {
		t.Fatalf("expected claim of 0, got %d", claimed)
	}
	if len(ledger.credits) != 0 {
		t.Fatal("empty claim must not touch the wallet")
	}
}

func TestClaimAbortsWhenCreditFails(t *testing.T) {
	svc, repo, ledger := testReferral()
	referrer := uuid.New()
	repo.pending[referrer] = 800
	ledger.fail = errors.New("wallet unavailable")

	if _, err := svc.Claim(context.Background(), referrer); err == nil {
		t.Fatal("expected claim to fail")
	}
	if repo.pending[referrer] != 800 {
		t.Fatal("failed claim must keep pending earnings intact")
	}
}

func TestStats(t *testing.T) {
	svc, repo, _ := testReferral()
	referrer := uuid.New()
	a, b := uuid.New(), uuid.New()
	repo.referrers[a] = uuid.NullUUID{UUID: referrer, Valid: true}
	repo.referrers[b] = uuid.NullUUID{UUID: referrer, Valid: true}

	svc.OnTopUp(context.Background(), a, 10000, "gdd_4_1")
	svc.OnTopUp(context.Background(), b, 20000, "gdd_4_2")

	stats, err := svc.Stats(context.Background(), referrer)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if stats.TotalReferrals != 2 {
		t.Fatalf("expected 2 referrals, got %d", stats.TotalReferrals)
	}
	if stats.TotalEarnings != 600 {
		t.Fatalf("expected total earnings 600, got %d", stats.TotalEarnings)
	}
	if stats.PendingEarnings != 600 {
		t.Fatalf("expected pending 600, got %d", stats.PendingEarnings)
	}
}
