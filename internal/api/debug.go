package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/billsync/pkg/auth"
	"github.com/dmitrymomot/billsync/pkg/billing"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

func (h *handler) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := billing.LedgerFilter{EventType: q.Get("type"), Limit: defaultEventLimit}

	if v := q.Get("processed"); v != "" {
		processed, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, r, h.log, HTTPError{Code: http.StatusBadRequest, Key: "invalid_processed"})
			return
		}
		filter.Processed = &processed
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			respondError(w, r, h.log, HTTPError{Code: http.StatusBadRequest, Key: "invalid_limit"})
			return
		}
		filter.Limit = min(limit, maxEventLimit)
	}

	events, err := h.engine.Events(r.Context(), filter)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, events, map[string]any{"count": len(events), "limit": filter.Limit})
}

func (h *handler) eventStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.EventStats(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, stats, nil)
}

type eventDetail struct {
	*billing.LedgerEntry
	Payload string `json:"payload"`
}

func (h *handler) getEvent(w http.ResponseWriter, r *http.Request) {
	entry, err := h.engine.Event(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, eventDetail{LedgerEntry: entry, Payload: string(entry.Payload)}, nil)
}

func (h *handler) reprocessEvent(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Reprocess(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, res, nil)
}

func (h *handler) clearEvents(w http.ResponseWriter, r *http.Request) {
	n, err := h.engine.ClearEvents(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, map[string]int64{"deleted": n}, nil)
}

func (h *handler) syncSubscription(w http.ResponseWriter, r *http.Request) {
	user, err := auth.MustIdentity(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	rec, err := h.engine.SyncSubscription(r.Context(), user.ID)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respond(w, http.StatusOK, rec, nil)
}

func (h *handler) resetSubscription(w http.ResponseWriter, r *http.Request) {
	user, err := auth.MustIdentity(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	if err := h.engine.ResetSubscription(r.Context(), user.ID); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
