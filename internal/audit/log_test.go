package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"ponto.dev/internal/auth"
	"ponto.dev/internal/obs"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(original) })
	return &buf
}

func TestLogEvent(t *testing.T) {
	buf := captureLog(t)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithUser(ctx, "user-42", auth.RoleManager)

	if err := LogEvent(ctx, "punch.register", map[string]any{"punch_id": "p1"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "punch.register" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["user_id"] != "user-42" {
		t.Fatalf("unexpected user id: %v", entry["user_id"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["punch_id"] != "p1" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	captureLog(t)

	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event name")
	}
}

type memStore struct {
	entries []*Entry
}

func (m *memStore) Append(ctx context.Context, entry *Entry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func TestRecorderAppendsToStore(t *testing.T) {
	captureLog(t)

	store := &memStore{}
	rec := NewRecorder(store)

	ctx := auth.ContextWithUser(context.Background(), "user-7", auth.RoleEmployee)
	rec.Record(ctx, "justification.submit", "justification j1", map[string]string{
		"ip_address": "10.0.0.1",
		"user_agent": "go-test",
	})

	if len(store.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(store.entries))
	}
	entry := store.entries[0]
	if entry.ID == "" || entry.CreatedAt.IsZero() {
		t.Error("expected populated id and timestamp")
	}
	if entry.UserID != "user-7" {
		t.Errorf("unexpected user id: %s", entry.UserID)
	}
	if entry.Action != "justification.submit" {
		t.Errorf("unexpected action: %s", entry.Action)
	}
	if entry.IPAddress != "10.0.0.1" || entry.UserAgent != "go-test" {
		t.Error("expected client metadata to be carried")
	}
}

func TestRecorderNilSafe(t *testing.T) {
	captureLog(t)

	var rec *Recorder
	rec.Record(context.Background(), "noop", "", nil) // must not panic

	NewRecorder(nil).Record(context.Background(), "noop", "", nil)
}
