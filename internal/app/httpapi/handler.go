// Package httpapi exposes the reward engine as a JSON REST surface.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	app "github.com/cartloom/rewards/internal/app"
	"github.com/cartloom/rewards/internal/app/domain/tier"
	"github.com/cartloom/rewards/internal/app/services/loyalty"
	"github.com/cartloom/rewards/internal/app/services/referrals"
	"github.com/cartloom/rewards/internal/app/storage"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a mux exposing the core REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts", h.accounts)
	mux.HandleFunc("/accounts/", h.accountResources)
	mux.HandleFunc("/referrals/apply", h.applyReferral)
	mux.HandleFunc("/loyalty/redeem", h.redeem)
	mux.HandleFunc("/orders/settlements", h.enqueueSettlement)
	mux.HandleFunc("/tiers", h.tiers)
	mux.HandleFunc("/healthz", h.health)
	return mux
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) accounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		Owner string `json:"owner"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	acct, err := h.app.Accounts.Create(r.Context(), payload.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (h *handler) accountResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/accounts"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	accountID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		acct, err := h.app.Accounts.Get(r.Context(), accountID)
		if err != nil {
			writeStorageError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, acct)
		return
	}

	switch parts[1] {
	case "referral-code":
		h.referralCode(w, r, accountID)
	case "referrals":
		h.accountReferrals(w, r, accountID)
	case "loyalty":
		h.accountLoyalty(w, r, accountID, parts[2:])
	case "tier":
		h.accountTier(w, r, accountID, parts[2:])
	case "wallet":
		h.accountWallet(w, r, accountID, parts[2:])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) referralCode(w http.ResponseWriter, r *http.Request, accountID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	code, err := h.app.Referrals.GetOrCreateCode(r.Context(), accountID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"referral_code": code})
}

func (h *handler) accountReferrals(w http.ResponseWriter, r *http.Request, accountID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	list, err := h.app.Referrals.ListByReferrer(r.Context(), accountID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) accountLoyalty(w http.ResponseWriter, r *http.Request, accountID string, rest []string) {
	if r.Method != http.MethodGet || len(rest) == 0 {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	switch rest[0] {
	case "summary":
		summary, err := h.app.Loyalty.Summary(r.Context(), accountID)
		if err != nil {
			writeStorageError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	case "transactions":
		entries, err := h.app.Loyalty.Transactions(r.Context(), accountID)
		if err != nil {
			writeStorageError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) accountTier(w http.ResponseWriter, r *http.Request, accountID string, rest []string) {
	if len(rest) == 0 || rest[0] != "sync" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	result, err := h.app.Tiers.Sync(r.Context(), accountID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Changed            bool       `json:"changed"`
		CurrentTier        *tier.Tier `json:"current_tier,omitempty"`
		LifetimeSpentCents int64      `json:"lifetime_spent_cents"`
	}{
		Changed:            result.Changed,
		CurrentTier:        result.CurrentTier,
		LifetimeSpentCents: result.LifetimeSpentCents,
	})
}

func (h *handler) accountWallet(w http.ResponseWriter, r *http.Request, accountID string, rest []string) {
	if len(rest) == 0 || rest[0] != "credit" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		AmountCents int64 `json:"amount_cents"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	acct, err := h.app.Wallet.Credit(r.Context(), accountID, payload.AmountCents)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *handler) applyReferral(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		UserID string `json:"user_id"`
		Code   string `json:"code"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(payload.UserID) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("user_id is required"))
		return
	}

	result, err := h.app.Referrals.Apply(r.Context(), payload.UserID, payload.Code)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	status := http.StatusOK
	switch result.Outcome {
	case referrals.OutcomeCodeNotFound:
		status = http.StatusNotFound
	case referrals.OutcomeSelfReferral, referrals.OutcomeAlreadyReferred:
		status = http.StatusConflict
	}
	body := struct {
		Outcome string `json:"outcome"`
		Message string `json:"message"`
	}{Outcome: string(result.Outcome), Message: result.Message}
	writeJSON(w, status, body)
}

func (h *handler) redeem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		UserID          string `json:"user_id"`
		Points          int64  `json:"points"`
		OrderTotalCents int64  `json:"order_total_cents"`
		OrderID         string `json:"order_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(payload.UserID) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("user_id is required"))
		return
	}
	if strings.TrimSpace(payload.OrderID) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("order_id is required"))
		return
	}

	result, err := h.app.Loyalty.Redeem(r.Context(), payload.UserID, payload.Points, payload.OrderTotalCents, payload.OrderID)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	status := http.StatusOK
	if result.Outcome != loyalty.OutcomeRedeemed {
		status = http.StatusConflict
	}
	body := struct {
		Outcome       string `json:"outcome"`
		Message       string `json:"message"`
		DiscountCents int64  `json:"discount_cents"`
		PointsUsed    int64  `json:"points_used"`
	}{
		Outcome:       string(result.Outcome),
		Message:       result.Message,
		DiscountCents: result.DiscountCents,
		PointsUsed:    result.PointsUsed,
	}
	writeJSON(w, status, body)
}

func (h *handler) enqueueSettlement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		OrderID    string    `json:"order_id"`
		UserID     string    `json:"user_id"`
		TotalCents int64     `json:"total_cents"`
		SettledAt  time.Time `json:"settled_at"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ord, err := h.app.Settlements.Enqueue(r.Context(), payload.OrderID, payload.UserID, payload.TotalCents, payload.SettledAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": ord.ID, "status": string(ord.Status)})
}

func (h *handler) tiers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := h.app.Tiers.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, list)

	case http.MethodPut:
		var payload struct {
			Tiers []struct {
				Name          string `json:"name"`
				DisplayName   string `json:"display_name"`
				MinSpendCents int64  `json:"min_spend_cents"`
			} `json:"tiers"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		tiers := make([]tier.Tier, 0, len(payload.Tiers))
		for _, t := range payload.Tiers {
			tiers = append(tiers, tier.Tier{
				Name:          t.Name,
				DisplayName:   t.DisplayName,
				MinSpendCents: t.MinSpendCents,
			})
		}
		replaced, err := h.app.Tiers.Replace(r.Context(), tiers)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, replaced)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeStorageError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
