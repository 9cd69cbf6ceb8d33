package domain

import "time"

// ─── Ledger Types ───────────────────────────────────────────────────────────
// Points are whole integers. Transaction amounts are always a positive
// magnitude; the sign comes from the transaction type.

// TxType represents the business reason for a ledger entry.
type TxType string

const (
	TxEarned     TxType = "EARNED"
	TxSpent      TxType = "SPENT"
	TxAdminGiven TxType = "ADMIN_GIVEN"
	TxRefund     TxType = "REFUND"
)

// Valid reports whether t is one of the known transaction types.
func (t TxType) Valid() bool {
	switch t {
	case TxEarned, TxSpent, TxAdminGiven, TxRefund:
		return true
	}
	return false
}

// IsCredit reports whether the type increases the balance.
func (t TxType) IsCredit() bool { return t.Valid() && t != TxSpent }

// Sign is -1 for SPENT and +1 for every credit type.
func (t TxType) Sign() int64 {
	if t == TxSpent {
		return -1
	}
	return 1
}

// LogsActivity reports whether a credit of this type shows up in the
// user's activity history.
func (t TxType) LogsActivity() bool {
	return t == TxEarned || t == TxAdminGiven
}

// Account is a user's cached point balance. Version increases by one on
// every balance write and is the optimistic-concurrency token.
type Account struct {
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transaction is a single immutable row in the points ledger.
type Transaction struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Type        TxType            `json:"type"`
	Amount      int64             `json:"amount"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Reference   string            `json:"reference,omitempty"` // idempotency key, unique per user
	CreatedAt   time.Time         `json:"created_at"`
}

// Signed returns the amount with the direction applied.
func (t Transaction) Signed() int64 { return t.Type.Sign() * t.Amount }

// CreditRequest describes a balance increase.
type CreditRequest struct {
	UserID      string
	Amount      int64
	Type        TxType
	Description string
	Metadata    map[string]string
	// Reference makes the credit idempotent: a second credit with the same
	// non-empty reference for the same user is a no-op.
	Reference string
}

// DebitRequest describes a balance decrease. Debits are always SPENT.
type DebitRequest struct {
	UserID      string
	Amount      int64
	Description string
	Metadata    map[string]string
}

// Reconciliation compares the cached balance with the ledger sum.
type Reconciliation struct {
	UserID   string `json:"user_id"`
	Cached   int64  `json:"cached"`
	Computed int64  `json:"computed"`
	OK       bool   `json:"ok"`
}
