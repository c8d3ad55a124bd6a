package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"ponto.dev/internal/ids"
)

var _ UserStore = (*PGStore)(nil)

// PGStore implements UserStore using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, username, password_hash, name, email, department, role, created_at)
		 values($1,$2,$3,$4,$5,nullif($6,''),$7,$8)`,
		u.ID, u.Username, u.PasswordHash, u.Name, u.Email, u.Department, u.Role, u.CreatedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*User, error) {
	return s.findBy(ctx, `where id=$1`, id)
}

func (s *PGStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.findBy(ctx, `where username=$1`, username)
}

func (s *PGStore) findBy(ctx context.Context, where string, arg any) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, username, password_hash, name, email, coalesce(department,''), role, face_embedding, enrolled_at, created_at
		 from users `+where, arg,
	)
	return scanUser(row)
}

func (s *PGStore) List(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, username, password_hash, name, email, coalesce(department,''), role, face_embedding, enrolled_at, created_at
		 from users order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u          User
		embedding  sql.NullString
		enrolledAt sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Name, &u.Email, &u.Department, &u.Role, &embedding, &enrolledAt, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if embedding.Valid {
		u.FaceEmbedding = []byte(embedding.String)
	}
	if enrolledAt.Valid {
		t := enrolledAt.Time
		u.EnrolledAt = &t
	}
	return &u, nil
}

// isUniqueViolation detects a duplicate-key failure without binding to the
// driver's error type. 23505 is the Postgres unique_violation code.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
