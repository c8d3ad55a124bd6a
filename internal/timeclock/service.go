package timeclock

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ponto.dev/internal/face"
	"ponto.dev/internal/ids"
)

// Service defines the time-clock operations.
type Service interface {
	EnrollFace(ctx context.Context, userID string, image []byte) (Enrollment, error)
	RegisterPunch(ctx context.Context, params RegisterPunchParams) (Punch, error)
	Punches(ctx context.Context, userID string, period Period) ([]Punch, error)
	LastPunch(ctx context.Context, userID string) (Punch, error)
	PendingPunches(ctx context.Context, userID string) ([]Punch, error)
	SubmitJustification(ctx context.Context, punchID, userID, reason string) (Justification, error)
	JustificationsByUser(ctx context.Context, userID string) ([]Justification, error)
	PendingJustifications(ctx context.Context) ([]Justification, error)
	ReviewJustification(ctx context.Context, id string, decision Decision, reviewerID string) (Justification, error)
}

// InMemory implements Service with in-process concurrency safety. It backs
// unit tests and DSN-less development runs; production uses the Postgres
// store.
type InMemory struct {
	mu             sync.RWMutex
	embeddings     map[string][]byte
	punches        map[string]*Punch
	justifications map[string]*Justification
	now            func() time.Time
}

// NewInMemory creates an empty in-memory time clock.
func NewInMemory() *InMemory {
	return &InMemory{
		embeddings:     make(map[string][]byte),
		punches:        make(map[string]*Punch),
		justifications: make(map[string]*Justification),
		now:            time.Now,
	}
}

var _ Service = (*InMemory)(nil)

// EnrollFace derives and stores the reference embedding for a user.
// Re-enrollment overwrites the previous embedding in place; punches validated
// against the old embedding keep their recorded flags.
func (s *InMemory) EnrollFace(ctx context.Context, userID string, image []byte) (Enrollment, error) {
	if len(image) == 0 {
		return Enrollment{}, ErrEmptyImage
	}
	serialized, err := face.Serialize(face.GenerateEmbedding(image))
	if err != nil {
		return Enrollment{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings[userID] = serialized
	return Enrollment{UserID: userID, EnrolledAt: s.now().UTC()}, nil
}

func (s *InMemory) RegisterPunch(ctx context.Context, params RegisterPunchParams) (Punch, error) {
	if !params.Type.Valid() {
		return Punch{}, ErrInvalidPunchType
	}
	if len(params.Image) == 0 {
		return Punch{}, ErrEmptyImage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ev := Evaluate(params.Image, s.embeddings[params.UserID], params.Latitude, params.Longitude, params.GPSAccuracy)
	punch := Punch{
		ID:             ids.New(),
		UserID:         params.UserID,
		Type:           params.Type,
		Timestamp:      s.now().UTC(),
		Latitude:       params.Latitude,
		Longitude:      params.Longitude,
		GPSAccuracy:    params.GPSAccuracy,
		FaceMatchScore: ev.FaceMatchScore,
		FaceMatched:    ev.FaceMatched,
		GPSValid:       ev.GPSValid,
		Status:         ev.Status,
	}
	s.punches[punch.ID] = &punch

	out := punch
	return out, nil
}

func (s *InMemory) Punches(ctx context.Context, userID string, period Period) ([]Punch, error) {
	var cutoff time.Time
	switch period {
	case PeriodWeek:
		cutoff = s.now().UTC().AddDate(0, 0, -7)
	case PeriodMonth:
		cutoff = s.now().UTC().AddDate(0, 0, -30)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Punch
	for _, p := range s.punches {
		if p.UserID != userID {
			continue
		}
		if !cutoff.IsZero() && p.Timestamp.Before(cutoff) {
			continue
		}
		res = append(res, *p)
	}
	sortPunchesDesc(res)
	return res, nil
}

func (s *InMemory) LastPunch(ctx context.Context, userID string) (Punch, error) {
	punches, _ := s.Punches(ctx, userID, PeriodAll)
	if len(punches) == 0 {
		return Punch{}, ErrNotFound
	}
	return punches[0], nil
}

func (s *InMemory) PendingPunches(ctx context.Context, userID string) ([]Punch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Punch
	for _, p := range s.punches {
		if p.UserID == userID && p.Status == PunchPending {
			res = append(res, *p)
		}
	}
	sortPunchesDesc(res)
	return res, nil
}

// SubmitJustification attaches a written appeal to a punch. One active
// justification per punch: a second submission while one is pending fails
// with ErrJustificationExists. Resubmission after a rejection is allowed.
func (s *InMemory) SubmitJustification(ctx context.Context, punchID, userID, reason string) (Justification, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Justification{}, ErrEmptyReason
	}
	if len(reason) > MaxReasonLength {
		return Justification{}, ErrReasonTooLong
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	punch, ok := s.punches[punchID]
	if !ok {
		return Justification{}, ErrNotFound
	}
	if punch.UserID != userID {
		return Justification{}, ErrForbidden
	}
	for _, j := range s.justifications {
		if j.PunchID == punchID && j.Status == JustificationPending {
			return Justification{}, ErrJustificationExists
		}
	}

	j := Justification{
		ID:        ids.New(),
		PunchID:   punchID,
		UserID:    userID,
		Reason:    reason,
		Status:    JustificationPending,
		CreatedAt: s.now().UTC(),
	}
	s.justifications[j.ID] = &j

	out := j
	return out, nil
}

func (s *InMemory) JustificationsByUser(ctx context.Context, userID string) ([]Justification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Justification
	for _, j := range s.justifications {
		if j.UserID == userID {
			res = append(res, *j)
		}
	}
	sortJustificationsDesc(res)
	return res, nil
}

func (s *InMemory) PendingJustifications(ctx context.Context) ([]Justification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Justification
	for _, j := range s.justifications {
		if j.Status == JustificationPending {
			res = append(res, *j)
		}
	}
	sortJustificationsDesc(res)
	return res, nil
}

// ReviewJustification applies a terminal decision. The status check and the
// update happen under one lock so that of two concurrent reviewers exactly
// one wins; the loser observes ErrAlreadyReviewed. Approval also flips the
// referenced punch to ok in the same critical section; rejection leaves the
// punch pending.
func (s *InMemory) ReviewJustification(ctx context.Context, id string, decision Decision, reviewerID string) (Justification, error) {
	if !decision.Valid() {
		return Justification{}, ErrInvalidDecision
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.justifications[id]
	if !ok {
		return Justification{}, ErrNotFound
	}
	if j.Status != JustificationPending {
		return Justification{}, ErrAlreadyReviewed
	}

	reviewedAt := s.now().UTC()
	j.Status = JustificationStatus(decision)
	j.ReviewedAt = &reviewedAt
	j.ReviewedBy = reviewerID

	if decision == DecisionApproved {
		if punch, ok := s.punches[j.PunchID]; ok {
			punch.Status = PunchOK
		}
	}

	out := *j
	return out, nil
}

func sortPunchesDesc(punches []Punch) {
	sort.Slice(punches, func(i, k int) bool {
		if punches[i].Timestamp.Equal(punches[k].Timestamp) {
			return punches[i].ID > punches[k].ID
		}
		return punches[i].Timestamp.After(punches[k].Timestamp)
	})
}

func sortJustificationsDesc(justifications []Justification) {
	sort.Slice(justifications, func(i, k int) bool {
		if justifications[i].CreatedAt.Equal(justifications[k].CreatedAt) {
			return justifications[i].ID > justifications[k].ID
		}
		return justifications[i].CreatedAt.After(justifications[k].CreatedAt)
	})
}
