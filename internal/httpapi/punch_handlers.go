package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"ponto.dev/internal/obs"
	"ponto.dev/internal/stream"
	"ponto.dev/internal/timeclock"
)

type registerPunchRequest struct {
	ImageBase64 string   `json:"image_base64"`
	Type        string   `json:"type"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	GPSAccuracy *float64 `json:"gps_accuracy"`
}

func (a *API) handlePunchesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.registerPunch(w, r)
	case http.MethodGet:
		a.listPunches(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) registerPunch(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireAuthenticated(w, r)
	if !ok {
		return
	}

	var req registerPunchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	image, err := decodeImage(req.ImageBase64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	punch, err := a.clock.RegisterPunch(r.Context(), timeclock.RegisterPunchParams{
		UserID:      userID,
		Type:        timeclock.PunchType(req.Type),
		Image:       image,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		GPSAccuracy: req.GPSAccuracy,
	})
	if err != nil {
		handleClockError(w, r, err)
		return
	}

	obs.CountPunch(string(punch.Type), string(punch.Status))
	a.feed.Publish(stream.PunchEvent{
		PunchID:   punch.ID,
		UserID:    punch.UserID,
		Type:      string(punch.Type),
		Status:    string(punch.Status),
		Score:     punch.FaceMatchScore,
		Timestamp: punch.Timestamp,
	})
	a.audit(r, "punch.register", fmt.Sprintf("punch %s (%s)", punch.ID, punch.Type), map[string]string{
		"punch_id":     punch.ID,
		"status":       string(punch.Status),
		"face_matched": fmt.Sprintf("%t", punch.FaceMatched),
		"gps_valid":    fmt.Sprintf("%t", punch.GPSValid),
	})
	writeJSON(w, http.StatusCreated, punch)
}

func (a *API) listPunches(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireAuthenticated(w, r)
	if !ok {
		return
	}

	period := timeclock.PeriodAll
	switch p := r.URL.Query().Get("period"); p {
	case "", string(timeclock.PeriodAll):
	case string(timeclock.PeriodWeek):
		period = timeclock.PeriodWeek
	case string(timeclock.PeriodMonth):
		period = timeclock.PeriodMonth
	default:
		writeError(w, r, http.StatusBadRequest, "period must be all, week or month")
		return
	}

	punches, err := a.clock.Punches(r.Context(), userID, period)
	if err != nil {
		handleClockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"punches": punches,
		"count":   len(punches),
	})
}

func (a *API) handlePunchResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/punches/")
	switch rest {
	case "last":
		a.lastPunch(w, r)
	case "pending":
		a.pendingPunches(w, r)
	case "stream":
		a.streamPunches(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (a *API) lastPunch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	userID, ok := requireAuthenticated(w, r)
	if !ok {
		return
	}

	punch, err := a.clock.LastPunch(r.Context(), userID)
	if err != nil {
		handleClockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, punch)
}

func (a *API) pendingPunches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	userID, ok := requireAuthenticated(w, r)
	if !ok {
		return
	}

	punches, err := a.clock.PendingPunches(r.Context(), userID)
	if err != nil {
		handleClockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"punches": punches,
		"count":   len(punches),
	})
}

// streamPunches pushes newly registered punches as server-sent events.
// Reviewer-only: the feed carries every employee's punches.
func (a *API) streamPunches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := requireReviewer(w, r); !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, cancel := a.feed.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: punch\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
