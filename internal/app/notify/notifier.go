// Package notify dispatches best-effort customer notifications. Dispatch is
// outside the transactional contract: a failed notification is logged and
// never propagated to the caller.
package notify

import "context"

// Notifier delivers reward-related notifications. Implementations must not
// block longer than their own timeout and must swallow delivery failures.
type Notifier interface {
	// TierChanged announces a membership tier upgrade, carrying the
	// tier's static benefit list for the in-app and email templates.
	TierChanged(ctx context.Context, userID, tierDisplayName string, benefits []string)

	// ReferralRewardEarned tells a referrer their reward was credited.
	ReferralRewardEarned(ctx context.Context, referrerID string, rewardCents int64)
}
