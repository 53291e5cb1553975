// Package settlement defines the order-settlement signals that drive the
// reward pipeline.
package settlement

import "time"

// Status tracks a queued settlement signal through processing.
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// Order is one settled-order signal. OrderID is unique across the queue so a
// replayed signal is rejected at enqueue time.
type Order struct {
	ID         string
	OrderID    string
	UserID     string
	TotalCents int64
	SettledAt  time.Time
	Status     Status
	Attempts   int
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
