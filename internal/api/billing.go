package api

import (
	"net/http"
	"strings"

	"github.com/dmitrymomot/billsync/pkg/auth"
)

type checkoutRequest struct {
	PriceRef   string `json:"price_ref"`
	SuccessURL string `json:"success_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
}

type switchRequest struct {
	PriceRef string `json:"price_ref"`
}

type consumeRequest struct {
	Amount int64 `json:"amount"`
}

func (h *handler) getSubscription(w http.ResponseWriter, r *http.Request) {
	user, err := auth.MustIdentity(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	rec, err := h.engine.GetSubscription(r.Context(), user.ID)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, rec, nil)
}

func (h *handler) getEntitlements(w http.ResponseWriter, r *http.Request) {
	user, err := auth.MustIdentity(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	ent, err := h.engine.Entitlements(r.Context(), user.ID)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, ent, nil)
}

func (h *handler) checkout(w http.ResponseWriter, r *http.Request) {
	user, err := auth.MustIdentity(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	success := firstNonEmpty(req.SuccessURL, h.opts.successURL)
	cancel := firstNonEmpty(req.CancelURL, h.opts.cancelURL)
	if success == "" || cancel == "" {
		respondError(w, r, h.log, HTTPError{Code: http.StatusBadRequest, Key: "missing_redirect_url"})
		return
	}

	session, err := h.engine.CreateCheckout(r.Context(), user, strings.TrimSpace(req.PriceRef), success, cancel)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respond(w, http.StatusCreated, session, nil)
}

func (h *handler) switchPlan(w http.ResponseWriter, r *http.Request) {
	user, err := auth.MustIdentity(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	var req switchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	rec, err := h.engine.SwitchPlan(r.Context(), user.ID, strings.TrimSpace(req.PriceRef))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, rec, nil)
}

func (h *handler) cancel(w http.ResponseWriter, r *http.Request) {
	user, err := auth.MustIdentity(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	ps, err := h.engine.Cancel(r.Context(), user.ID)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, ps, nil)
}

func (h *handler) cancelNow(w http.ResponseWriter, r *http.Request) {
	user, err := auth.MustIdentity(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	rec, err := h.engine.CancelImmediately(r.Context(), user.ID)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, rec, nil)
}

func (h *handler) reactivate(w http.ResponseWriter, r *http.Request) {
	user, err := auth.MustIdentity(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	ps, err := h.engine.Reactivate(r.Context(), user.ID)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, ps, nil)
}

func (h *handler) consumeCredits(w http.ResponseWriter, r *http.Request) {
	user, err := auth.MustIdentity(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	var req consumeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	rec, err := h.engine.ConsumeCredits(r.Context(), user.ID, req.Amount)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, rec, map[string]any{"credits_remaining": rec.CreditsRemaining()})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
