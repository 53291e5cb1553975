// Package referral defines the referrer/referee relationship and its
// lifecycle.
package referral

import "time"

// Status is the referral lifecycle state. A referral is created pending and
// completes at most once; completed is terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Referral links a referrer to the account that signed up with their code.
// At most one referral ever exists per referee.
type Referral struct {
	ID          string
	ReferrerID  string
	RefereeID   string
	Status      Status
	RewardCents int64
	CreatedAt   time.Time
	CompletedAt time.Time
}

// Completed reports whether the referral reached its terminal state.
func (r Referral) Completed() bool { return r.Status == StatusCompleted }
