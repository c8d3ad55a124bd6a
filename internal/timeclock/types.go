package timeclock

import (
	"errors"
	"time"
)

// PunchType distinguishes clock-in from clock-out events.
type PunchType string

const (
	PunchEntry PunchType = "entry"
	PunchExit  PunchType = "exit"
)

// Valid reports whether t is a known punch type.
func (t PunchType) Valid() bool {
	return t == PunchEntry || t == PunchExit
}

// PunchStatus is "ok" for fully validated punches and "pending" for punches
// that need human review.
type PunchStatus string

const (
	PunchOK      PunchStatus = "ok"
	PunchPending PunchStatus = "pending"
)

// JustificationStatus is terminal once it leaves pending.
type JustificationStatus string

const (
	JustificationPending  JustificationStatus = "pending"
	JustificationApproved JustificationStatus = "approved"
	JustificationRejected JustificationStatus = "rejected"
)

// Decision is a reviewer's verdict on a justification.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// Period filters punch listings.
type Period string

const (
	PeriodAll   Period = "all"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// Punch is a single clock event. Timestamp is server-assigned at creation and
// immutable, as are the match flags and score; only Status may change, once,
// when a justification is approved.
type Punch struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	Type           PunchType   `json:"type"`
	Timestamp      time.Time   `json:"timestamp"`
	Latitude       *float64    `json:"latitude,omitempty"`
	Longitude      *float64    `json:"longitude,omitempty"`
	GPSAccuracy    *float64    `json:"gps_accuracy,omitempty"`
	FaceMatchScore float64     `json:"face_match_score"`
	FaceMatched    bool        `json:"face_matched"`
	GPSValid       bool        `json:"gps_valid"`
	Status         PunchStatus `json:"status"`
}

// Justification is an employee's written appeal for a pending punch.
type Justification struct {
	ID         string              `json:"id"`
	PunchID    string              `json:"punch_id"`
	UserID     string              `json:"user_id"`
	Reason     string              `json:"reason"`
	Status     JustificationStatus `json:"status"`
	CreatedAt  time.Time           `json:"created_at"`
	ReviewedAt *time.Time          `json:"reviewed_at,omitempty"`
	ReviewedBy string              `json:"reviewed_by,omitempty"`
}

// Enrollment records that a reference embedding was stored for a user.
type Enrollment struct {
	UserID     string    `json:"user_id"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// RegisterPunchParams carries a punch submission. UserID comes from the
// authenticated request, never from the client payload.
type RegisterPunchParams struct {
	UserID      string
	Type        PunchType
	Image       []byte
	Latitude    *float64
	Longitude   *float64
	GPSAccuracy *float64
}

// MaxReasonLength bounds justification text server-side. The UI hints the
// same limit but is not trusted to enforce it.
const MaxReasonLength = 500

var (
	ErrNotFound            = errors.New("timeclock: not found")
	ErrForbidden           = errors.New("timeclock: not the resource owner")
	ErrInvalidPunchType    = errors.New("timeclock: punch type must be entry or exit")
	ErrInvalidDecision     = errors.New("timeclock: decision must be approved or rejected")
	ErrEmptyImage          = errors.New("timeclock: capture image is required")
	ErrEmptyReason         = errors.New("timeclock: justification reason is required")
	ErrReasonTooLong       = errors.New("timeclock: justification reason exceeds 500 characters")
	ErrAlreadyReviewed     = errors.New("timeclock: justification already reviewed")
	ErrJustificationExists = errors.New("timeclock: punch already has a pending justification")
)
