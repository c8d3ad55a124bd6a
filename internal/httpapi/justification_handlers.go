package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"ponto.dev/internal/obs"
	"ponto.dev/internal/timeclock"
)

type submitJustificationRequest struct {
	PunchID string `json:"punch_id"`
	Reason  string `json:"reason"`
}

type reviewJustificationRequest struct {
	Decision string `json:"decision"`
}

func (a *API) handleJustificationsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.submitJustification(w, r)
	case http.MethodGet:
		a.listJustifications(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) submitJustification(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireAuthenticated(w, r)
	if !ok {
		return
	}

	var req submitJustificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.PunchID) == "" {
		writeError(w, r, http.StatusBadRequest, "punch_id is required")
		return
	}

	just, err := a.clock.SubmitJustification(r.Context(), req.PunchID, userID, req.Reason)
	if err != nil {
		handleClockError(w, r, err)
		return
	}

	a.audit(r, "justification.submit", fmt.Sprintf("justification %s for punch %s", just.ID, just.PunchID), map[string]string{
		"justification_id": just.ID,
		"punch_id":         just.PunchID,
	})
	writeJSON(w, http.StatusCreated, just)
}

func (a *API) listJustifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireAuthenticated(w, r)
	if !ok {
		return
	}

	justifications, err := a.clock.JustificationsByUser(r.Context(), userID)
	if err != nil {
		handleClockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"justifications": justifications,
		"count":          len(justifications),
	})
}

func (a *API) handleJustificationResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/justifications/")
	if rest == "pending" {
		a.pendingJustifications(w, r)
		return
	}
	if id, ok := strings.CutSuffix(rest, "/review"); ok && id != "" && !strings.Contains(id, "/") {
		a.reviewJustification(w, r, id)
		return
	}
	http.NotFound(w, r)
}

func (a *API) pendingJustifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := requireReviewer(w, r); !ok {
		return
	}

	justifications, err := a.clock.PendingJustifications(r.Context())
	if err != nil {
		handleClockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"justifications": justifications,
		"count":          len(justifications),
	})
}

func (a *API) reviewJustification(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	reviewerID, ok := requireReviewer(w, r)
	if !ok {
		return
	}

	var req reviewJustificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	just, err := a.clock.ReviewJustification(r.Context(), id, timeclock.Decision(req.Decision), reviewerID)
	if err != nil {
		handleClockError(w, r, err)
		return
	}

	obs.CountReview(string(just.Status))
	a.audit(r, "justification.review", fmt.Sprintf("justification %s %s", just.ID, just.Status), map[string]string{
		"justification_id": just.ID,
		"punch_id":         just.PunchID,
		"decision":         string(just.Status),
	})
	writeJSON(w, http.StatusOK, just)
}
