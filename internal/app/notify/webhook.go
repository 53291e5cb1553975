package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cartloom/rewards/pkg/logger"
)

// WebhookNotifier posts notification events as JSON to an external delivery
// service (in-app inbox and email templating live behind that endpoint).
// Delivery failures are logged and dropped.
type WebhookNotifier struct {
	client   *http.Client
	endpoint string
	apiKey   string
	log      *logger.Logger
}

var _ Notifier = (*WebhookNotifier)(nil)

// NewWebhookNotifier validates the endpoint and returns a notifier posting
// to it.
func NewWebhookNotifier(client *http.Client, endpoint, apiKey string, log *logger.Logger) (*WebhookNotifier, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = logger.NewDefault("notify")
	}
	endpoint = strings.TrimSpace(endpoint)
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid notification endpoint %q", endpoint)
	}
	return &WebhookNotifier{client: client, endpoint: endpoint, apiKey: apiKey, log: log}, nil
}

type event struct {
	Type        string   `json:"type"`
	UserID      string   `json:"user_id"`
	Tier        string   `json:"tier,omitempty"`
	Benefits    []string `json:"benefits,omitempty"`
	RewardCents int64    `json:"reward_cents,omitempty"`
	Channels    []string `json:"channels"`
}

func (n *WebhookNotifier) TierChanged(ctx context.Context, userID, tierDisplayName string, benefits []string) {
	n.post(ctx, event{
		Type:     "tier_changed",
		UserID:   userID,
		Tier:     tierDisplayName,
		Benefits: benefits,
		Channels: []string{"in_app", "email"},
	})
}

func (n *WebhookNotifier) ReferralRewardEarned(ctx context.Context, referrerID string, rewardCents int64) {
	n.post(ctx, event{
		Type:        "referral_reward",
		UserID:      referrerID,
		RewardCents: rewardCents,
		Channels:    []string{"email"},
	})
}

func (n *WebhookNotifier) post(ctx context.Context, ev event) {
	body, err := json.Marshal(ev)
	if err != nil {
		n.log.WithError(err).Warn("encode notification")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		n.log.WithError(err).Warn("build notification request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if n.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.apiKey)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.WithError(err).WithField("type", ev.Type).Warn("notification delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.log.WithField("type", ev.Type).
			WithField("status", resp.StatusCode).
			Warn("notification endpoint rejected event")
	}
}
