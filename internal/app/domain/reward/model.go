// Package reward defines the append-only loyalty points ledger.
package reward

import "time"

// Kind classifies a ledger entry.
type Kind string

const (
	KindEarned   Kind = "earned"
	KindRedeemed Kind = "redeemed"
)

// Transaction is one row of the points audit trail. Entries are never
// mutated or deleted. Points are signed: positive for earned, negative for
// redeemed.
type Transaction struct {
	ID          string
	UserID      string
	OrderID     string
	Points      int64
	Kind        Kind
	Description string
	CreatedAt   time.Time
}
