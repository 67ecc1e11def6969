package wallet

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType signs a ledger entry
type TransactionType string

const (
	TransactionTypeCredit TransactionType = "credit"
	TransactionTypeDebit  TransactionType = "debit"
)

// TransactionStatus tracks settlement state. All entries are written completed
// in the current design; pending exists for gateways that settle later and is
// excluded from the balance.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// Wallet is the cached balance row. The ledger is authoritative: the cache is
// kept in lockstep with completed transactions and reconcilable against them.
type Wallet struct {
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Balance   int64     `db:"balance" json:"balance"` // kobo
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Transaction is an immutable ledger row. Amount is always positive, in kobo;
// Type carries the sign. Reference, when present, is the idempotency key for
// gateway-originated entries.
type Transaction struct {
	ID          uuid.UUID         `db:"id" json:"id"`
	UserID      uuid.UUID         `db:"user_id" json:"user_id"`
	Type        TransactionType   `db:"type" json:"type"`
	Amount      int64             `db:"amount" json:"amount"`
	Description string            `db:"description" json:"description"`
	Reference   *string           `db:"reference" json:"reference,omitempty"`
	Status      TransactionStatus `db:"status" json:"status"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
}

// Delta returns the signed balance contribution of the transaction
func (t *Transaction) Delta() int64 {
	if t.Type == TransactionTypeDebit {
		return -t.Amount
	}
	return t.Amount
}
