package audit

import (
	"context"
	"database/sql"
	"time"

	"ponto.dev/internal/auth"
	"ponto.dev/internal/ids"
	"ponto.dev/internal/obs"
)

// Entry is one appended audit record.
type Entry struct {
	ID        string
	UserID    string
	Action    string
	Details   string
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}

// AppendStore persists entries. Implementations must treat the table as
// append-only.
type AppendStore interface {
	Append(ctx context.Context, entry *Entry) error
}

// Recorder fans an action out to the JSON audit log line and, when
// configured, the durable store. Fire-and-forget: a store failure is logged
// and swallowed.
type Recorder struct {
	store AppendStore
}

func NewRecorder(store AppendStore) *Recorder {
	return &Recorder{store: store}
}

// Record appends an audit entry for the acting user. userID may be taken
// from the context when empty.
func (r *Recorder) Record(ctx context.Context, action, details string, meta map[string]string) {
	userID, _ := auth.UserIDFromContext(ctx)

	fields := map[string]any{"details": details}
	for k, v := range meta {
		fields[k] = v
	}
	_ = LogEvent(ctx, action, fields)

	if r == nil || r.store == nil {
		return
	}
	entry := &Entry{
		ID:        ids.New(),
		UserID:    userID,
		Action:    action,
		Details:   details,
		IPAddress: meta["ip_address"],
		UserAgent: meta["user_agent"],
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.Append(ctx, entry); err != nil {
		obs.LogRequest(map[string]any{
			"ts":    time.Now().UTC().Format(time.RFC3339Nano),
			"level": "error",
			"msg":   "audit append failed",
			"error": err.Error(),
		})
	}
}

var _ AppendStore = (*PGStore)(nil)

// PGStore appends entries to the audit_logs table.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, entry *Entry) error {
	_, err := s.db.ExecContext(ctx,
		`insert into audit_logs(id, user_id, action, details, ip_address, user_agent, created_at)
		 values($1, nullif($2,''), $3, $4, nullif($5,''), nullif($6,''), $7)`,
		entry.ID, entry.UserID, entry.Action, entry.Details, entry.IPAddress, entry.UserAgent, entry.CreatedAt,
	)
	return err
}
