package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"ponto.dev/internal/audit"
	"ponto.dev/internal/auth"
	"ponto.dev/internal/obs"
	"ponto.dev/internal/stream"
	"ponto.dev/internal/timeclock"
)

const serviceName = "ponto-api"

// ReadyProbe is a readiness check (DB ping when a pool is configured).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	clock    timeclock.Service
	users    auth.UserStore
	recorder *audit.Recorder
	feed     *stream.Stream

	tokenTTL     time.Duration
	rateBurst    int
	ratePerSec   int
	maxBodyBytes int64
}

func New(rp ReadyProbe, version string, clock timeclock.Service, users auth.UserStore, recorder *audit.Recorder, feed *stream.Stream) *API {
	a := &API{
		mux:          http.NewServeMux(),
		readyProbe:   rp,
		version:      version,
		clock:        clock,
		users:        users,
		recorder:     recorder,
		feed:         feed,
		tokenTTL:     8 * time.Hour,
		rateBurst:    20,
		ratePerSec:   10,
		maxBodyBytes: 4 << 20,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// domain routes
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/users", a.handleUsersCollection)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)
	a.mux.HandleFunc("/v1/punches", a.handlePunchesCollection)
	a.mux.HandleFunc("/v1/punches/", a.handlePunchResource)
	a.mux.HandleFunc("/v1/justifications", a.handleJustificationsCollection)
	a.mux.HandleFunc("/v1/justifications/", a.handleJustificationResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// SetTokenTTL overrides the access token lifetime.
func (a *API) SetTokenTTL(ttl time.Duration) {
	if ttl > 0 {
		a.tokenTTL = ttl
	}
}

// SetRateLimit overrides the per-IP rate limit.
func (a *API) SetRateLimit(burst, perSec int) {
	if burst > 0 {
		a.rateBurst = burst
	}
	if perSec > 0 {
		a.ratePerSec = perSec
	}
}

// SetMaxBodyBytes overrides the request body limit.
func (a *API) SetMaxBodyBytes(n int64) {
	if n > 0 {
		a.maxBodyBytes = n
	}
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := obs.Instrument(a.mux)
	h = LoggingJSON(h)
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = RequestID(h)
	h = CORS(h)
	h = SecurityHeaders(h)
	return h
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// audit records an auditable action, enriched with the request's client
// address and user agent. Failures never affect the response.
func (a *API) audit(r *http.Request, action, details string, meta map[string]string) {
	enriched := map[string]string{
		"ip_address": clientIP(r),
		"user_agent": r.UserAgent(),
	}
	for k, v := range meta {
		enriched[k] = v
	}
	a.recorder.Record(r.Context(), action, details, enriched)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleClockError maps time-clock sentinel errors onto HTTP statuses.
// Conflicts are distinct from validation errors so the UI can say "already
// processed" rather than "bad input".
func handleClockError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, timeclock.ErrInvalidPunchType),
		errors.Is(err, timeclock.ErrInvalidDecision),
		errors.Is(err, timeclock.ErrEmptyImage),
		errors.Is(err, timeclock.ErrEmptyReason),
		errors.Is(err, timeclock.ErrReasonTooLong):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, timeclock.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "not authorized")
	case errors.Is(err, timeclock.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, timeclock.ErrAlreadyReviewed),
		errors.Is(err, timeclock.ErrJustificationExists):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		obs.LogRequest(map[string]any{
			"ts":    time.Now().UTC().Format(time.RFC3339Nano),
			"level": "error",
			"msg":   "internal error",
			"error": err.Error(),
			"path":  r.URL.Path,
		})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
