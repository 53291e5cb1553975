package notify

import (
	"context"

	"github.com/cartloom/rewards/pkg/logger"
)

// LogNotifier writes notifications to the log. It is the default when no
// delivery endpoint is configured.
type LogNotifier struct {
	log *logger.Logger
}

var _ Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.NewDefault("notify")
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) TierChanged(_ context.Context, userID, tierDisplayName string, benefits []string) {
	n.log.WithField("user_id", userID).
		WithField("tier", tierDisplayName).
		WithField("benefits", len(benefits)).
		Info("tier change notification")
}

func (n *LogNotifier) ReferralRewardEarned(_ context.Context, referrerID string, rewardCents int64) {
	n.log.WithField("user_id", referrerID).
		WithField("reward_cents", rewardCents).
		Info("referral reward notification")
}
