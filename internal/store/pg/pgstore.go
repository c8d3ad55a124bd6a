// Package pg implements the time-clock service on PostgreSQL. The review
// transition uses a row lock plus conditional update so concurrent reviewers
// cannot double-process a justification, and the punch-status flip on
// approval commits in the same transaction.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"ponto.dev/internal/face"
	"ponto.dev/internal/ids"
	"ponto.dev/internal/timeclock"
)

type Store struct {
	db *sql.DB
}

var _ timeclock.Service = (*Store)(nil)

// Open connects to PostgreSQL with pool defaults tuned for a request-per-call
// service.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection pool (shared with the user store).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// EnrollFace computes and stores the reference embedding for a user,
// overwriting any previous one. The capture is discarded after the embedding
// is derived; it is never written anywhere.
func (s *Store) EnrollFace(ctx context.Context, userID string, image []byte) (timeclock.Enrollment, error) {
	if len(image) == 0 {
		return timeclock.Enrollment{}, timeclock.ErrEmptyImage
	}
	serialized, err := face.Serialize(face.GenerateEmbedding(image))
	if err != nil {
		return timeclock.Enrollment{}, err
	}

	enrolledAt := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`update users set face_embedding=$2, enrolled_at=$3 where id=$1`,
		userID, string(serialized), enrolledAt,
	)
	if err != nil {
		return timeclock.Enrollment{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return timeclock.Enrollment{}, err
	}
	if affected == 0 {
		return timeclock.Enrollment{}, timeclock.ErrNotFound
	}
	return timeclock.Enrollment{UserID: userID, EnrolledAt: enrolledAt}, nil
}

func (s *Store) RegisterPunch(ctx context.Context, params timeclock.RegisterPunchParams) (timeclock.Punch, error) {
	if !params.Type.Valid() {
		return timeclock.Punch{}, timeclock.ErrInvalidPunchType
	}
	if len(params.Image) == 0 {
		return timeclock.Punch{}, timeclock.ErrEmptyImage
	}

	var stored sql.NullString
	err := s.db.QueryRowContext(ctx, `select face_embedding from users where id=$1`, params.UserID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return timeclock.Punch{}, timeclock.ErrNotFound
	}
	if err != nil {
		return timeclock.Punch{}, err
	}

	var storedEmbedding []byte
	if stored.Valid {
		storedEmbedding = []byte(stored.String)
	}
	ev := timeclock.Evaluate(params.Image, storedEmbedding, params.Latitude, params.Longitude, params.GPSAccuracy)

	punch := timeclock.Punch{
		ID:             ids.New(),
		UserID:         params.UserID,
		Type:           params.Type,
		Timestamp:      time.Now().UTC(),
		Latitude:       params.Latitude,
		Longitude:      params.Longitude,
		GPSAccuracy:    params.GPSAccuracy,
		FaceMatchScore: ev.FaceMatchScore,
		FaceMatched:    ev.FaceMatched,
		GPSValid:       ev.GPSValid,
		Status:         ev.Status,
	}
	_, err = s.db.ExecContext(ctx,
		`insert into punches(id, user_id, type, timestamp, latitude, longitude, gps_accuracy, face_match_score, face_matched, gps_valid, status)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		punch.ID, punch.UserID, punch.Type, punch.Timestamp,
		punch.Latitude, punch.Longitude, punch.GPSAccuracy,
		punch.FaceMatchScore, punch.FaceMatched, punch.GPSValid, punch.Status,
	)
	if err != nil {
		return timeclock.Punch{}, err
	}
	return punch, nil
}

func (s *Store) Punches(ctx context.Context, userID string, period timeclock.Period) ([]timeclock.Punch, error) {
	query := `select id, user_id, type, timestamp, latitude, longitude, gps_accuracy, face_match_score, face_matched, gps_valid, status
		from punches where user_id=$1`
	args := []any{userID}

	var cutoff time.Time
	switch period {
	case timeclock.PeriodWeek:
		cutoff = time.Now().UTC().AddDate(0, 0, -7)
	case timeclock.PeriodMonth:
		cutoff = time.Now().UTC().AddDate(0, 0, -30)
	}
	if !cutoff.IsZero() {
		query += ` and timestamp >= $2`
		args = append(args, cutoff)
	}
	query += ` order by timestamp desc`

	return s.queryPunches(ctx, query, args...)
}

func (s *Store) LastPunch(ctx context.Context, userID string) (timeclock.Punch, error) {
	punches, err := s.queryPunches(ctx,
		`select id, user_id, type, timestamp, latitude, longitude, gps_accuracy, face_match_score, face_matched, gps_valid, status
		 from punches where user_id=$1 order by timestamp desc limit 1`, userID)
	if err != nil {
		return timeclock.Punch{}, err
	}
	if len(punches) == 0 {
		return timeclock.Punch{}, timeclock.ErrNotFound
	}
	return punches[0], nil
}

func (s *Store) PendingPunches(ctx context.Context, userID string) ([]timeclock.Punch, error) {
	return s.queryPunches(ctx,
		`select id, user_id, type, timestamp, latitude, longitude, gps_accuracy, face_match_score, face_matched, gps_valid, status
		 from punches where user_id=$1 and status='pending' order by timestamp desc`, userID)
}

func (s *Store) queryPunches(ctx context.Context, query string, args ...any) ([]timeclock.Punch, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []timeclock.Punch
	for rows.Next() {
		var (
			p        timeclock.Punch
			lat      sql.NullFloat64
			lon      sql.NullFloat64
			accuracy sql.NullFloat64
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.Type, &p.Timestamp, &lat, &lon, &accuracy,
			&p.FaceMatchScore, &p.FaceMatched, &p.GPSValid, &p.Status); err != nil {
			return nil, err
		}
		p.Latitude = nullFloat(lat)
		p.Longitude = nullFloat(lon)
		p.GPSAccuracy = nullFloat(accuracy)
		res = append(res, p)
	}
	return res, rows.Err()
}

// SubmitJustification creates a pending justification. The punch row is
// locked so two concurrent submissions for the same punch serialize against
// the one-active-justification rule.
func (s *Store) SubmitJustification(ctx context.Context, punchID, userID, reason string) (timeclock.Justification, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return timeclock.Justification{}, timeclock.ErrEmptyReason
	}
	if len(reason) > timeclock.MaxReasonLength {
		return timeclock.Justification{}, timeclock.ErrReasonTooLong
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return timeclock.Justification{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var ownerID string
	err = tx.QueryRowContext(ctx, `select user_id from punches where id=$1 for update`, punchID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return timeclock.Justification{}, timeclock.ErrNotFound
	}
	if err != nil {
		return timeclock.Justification{}, err
	}
	if ownerID != userID {
		return timeclock.Justification{}, timeclock.ErrForbidden
	}

	var exists int
	err = tx.QueryRowContext(ctx,
		`select 1 from justifications where punch_id=$1 and status='pending' limit 1`, punchID).Scan(&exists)
	if err == nil {
		return timeclock.Justification{}, timeclock.ErrJustificationExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return timeclock.Justification{}, err
	}

	j := timeclock.Justification{
		ID:        ids.New(),
		PunchID:   punchID,
		UserID:    userID,
		Reason:    reason,
		Status:    timeclock.JustificationPending,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx,
		`insert into justifications(id, punch_id, user_id, reason, status, created_at)
		 values($1,$2,$3,$4,$5,$6)`,
		j.ID, j.PunchID, j.UserID, j.Reason, j.Status, j.CreatedAt,
	); err != nil {
		return timeclock.Justification{}, err
	}
	if err := tx.Commit(); err != nil {
		return timeclock.Justification{}, err
	}
	return j, nil
}

func (s *Store) JustificationsByUser(ctx context.Context, userID string) ([]timeclock.Justification, error) {
	return s.queryJustifications(ctx,
		`select id, punch_id, user_id, reason, status, created_at, reviewed_at, reviewed_by
		 from justifications where user_id=$1 order by created_at desc`, userID)
}

func (s *Store) PendingJustifications(ctx context.Context) ([]timeclock.Justification, error) {
	return s.queryJustifications(ctx,
		`select id, punch_id, user_id, reason, status, created_at, reviewed_at, reviewed_by
		 from justifications where status='pending' order by created_at desc`)
}

func (s *Store) queryJustifications(ctx context.Context, query string, args ...any) ([]timeclock.Justification, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []timeclock.Justification
	for rows.Next() {
		j, err := scanJustification(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, j)
	}
	return res, rows.Err()
}

// ReviewJustification applies a terminal decision. The justification row is
// locked for update and the status precondition re-checked under the lock,
// so the loser of a concurrent double-review observes ErrAlreadyReviewed
// instead of silently overwriting. On approval the punch flips to ok inside
// the same transaction; both writes commit or neither does.
func (s *Store) ReviewJustification(ctx context.Context, id string, decision timeclock.Decision, reviewerID string) (timeclock.Justification, error) {
	if !decision.Valid() {
		return timeclock.Justification{}, timeclock.ErrInvalidDecision
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return timeclock.Justification{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`select id, punch_id, user_id, reason, status, created_at, reviewed_at, reviewed_by
		 from justifications where id=$1 for update`, id)
	j, err := scanJustification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return timeclock.Justification{}, timeclock.ErrNotFound
	}
	if err != nil {
		return timeclock.Justification{}, err
	}
	if j.Status != timeclock.JustificationPending {
		return timeclock.Justification{}, timeclock.ErrAlreadyReviewed
	}

	reviewedAt := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`update justifications set status=$2, reviewed_by=$3, reviewed_at=$4
		 where id=$1 and status='pending'`,
		id, string(decision), reviewerID, reviewedAt,
	)
	if err != nil {
		return timeclock.Justification{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return timeclock.Justification{}, err
	}
	if affected == 0 {
		return timeclock.Justification{}, timeclock.ErrAlreadyReviewed
	}

	if decision == timeclock.DecisionApproved {
		if _, err := tx.ExecContext(ctx,
			`update punches set status='ok' where id=$1`, j.PunchID,
		); err != nil {
			return timeclock.Justification{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return timeclock.Justification{}, err
	}

	j.Status = timeclock.JustificationStatus(decision)
	j.ReviewedAt = &reviewedAt
	j.ReviewedBy = reviewerID
	return j, nil
}

// --- helpers ---

func scanJustification(row interface{ Scan(dest ...any) error }) (timeclock.Justification, error) {
	var (
		j          timeclock.Justification
		reviewedAt sql.NullTime
		reviewedBy sql.NullString
	)
	if err := row.Scan(&j.ID, &j.PunchID, &j.UserID, &j.Reason, &j.Status, &j.CreatedAt, &reviewedAt, &reviewedBy); err != nil {
		return timeclock.Justification{}, err
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		j.ReviewedAt = &t
	}
	if reviewedBy.Valid {
		j.ReviewedBy = reviewedBy.String
	}
	return j, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
