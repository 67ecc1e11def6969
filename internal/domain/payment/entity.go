package payment

import (
	"github.com/gooddeeds/gooddeeds-api/internal/domain/plan"
	"github.com/gooddeeds/gooddeeds-api/internal/domain/wallet"
)

// Purpose says what a confirmed payment pays for
type Purpose string

const (
	PurposeTopUp          Purpose = "topup"
	PurposeBundlePurchase Purpose = "bundle_purchase"
)

// InitializeRequest starts a gateway charge. Amount is in kobo; PlanID is
// required for bundle purchases and must price-match the catalog.
type InitializeRequest struct {
	Amount  int64   `json:"amount" validate:"required,gt=0"`
	Purpose Purpose `json:"purpose" validate:"required,purpose"`
	PlanID  string  `json:"plan_id,omitempty" validate:"omitempty,uuid"`
}

// ConfirmRequest reconciles a gateway callback with the ledger
type ConfirmRequest struct {
	Reference string  `json:"reference" validate:"required,max=100"`
	Amount    int64   `json:"amount" validate:"required,gt=0"`
	Purpose   Purpose `json:"purpose" validate:"required,purpose"`
	PlanID    string  `json:"plan_id,omitempty" validate:"omitempty,uuid"`
}

// Checkout is what the client needs to present the gateway's payment page
type Checkout struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Outcome reports a settled confirmation. Replayed means the reference had
// already been confirmed; the ledger row is the original and no plan mutation
// or referral accrual happened this time.
type Outcome struct {
	Reference   string              `json:"reference"`
	Purpose     Purpose             `json:"purpose"`
	Replayed    bool                `json:"replayed"`
	Transaction *wallet.Transaction `json:"transaction"`
	Plan        *plan.UserPlan      `json:"plan,omitempty"`
}
