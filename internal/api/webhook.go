package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/billsync/pkg/billing"
	"github.com/dmitrymomot/billsync/pkg/logger"
)

type webhookResponse struct {
	Received  bool `json:"received"`
	Processed bool `json:"processed"`
	Duplicate bool `json:"duplicate"`
}

// webhook verifies and applies a provider notification. The body is read
// raw because signature verification covers the exact bytes received.
func (h *handler) webhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if !strings.EqualFold(provider, h.engine.Provider()) {
		respondError(w, r, h.log, ErrNotFound)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.maxWebhookBytes))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	res, err := h.engine.HandleWebhook(r.Context(), payload, r.Header.Get(h.engine.SignatureHeader()))
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) || errors.Is(err, billing.ErrMalformedEvent) {
			h.log.WarnContext(r.Context(), "Rejected webhook",
				logger.Provider(provider),
				logger.Error(err),
			)
			respondError(w, r, h.log, err)
			return
		}
		respondError(w, r, h.log, errors.Join(ErrInternalServerError, err))
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{
		Received:  true,
		Processed: res.Processed,
		Duplicate: res.Duplicate,
	})
}
