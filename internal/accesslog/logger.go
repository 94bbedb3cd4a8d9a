package accesslog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Attempt statuses and types. Door attempts come from the decision engine;
// recognition attempts are appended by the attendance ledger after a
// committed write.
const (
	StatusGranted = "granted"
	StatusDenied  = "denied"

	TypeFaceRecognition = "face_recognition"
	TypeRecognitionLog  = "recognition"
)

// Attempt is one access decision to append. SessionID and SnapshotURL are
// optional; Confidence is nil when no recognition score applies.
type Attempt struct {
	IdentityID  string
	Type        string
	Status      string
	Confidence  *float64
	Reason      string
	SessionID   string
	SnapshotURL string
	At          time.Time
}

// LoggedAttempt is a stored attempt row for the audit surface.
type LoggedAttempt struct {
	ID          string     `json:"id"`
	IdentityID  string     `json:"identity_id"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	Confidence  *float64   `json:"confidence,omitempty"`
	Reason      string     `json:"reason"`
	SessionID   *string    `json:"session_id,omitempty"`
	SnapshotURL *string    `json:"snapshot_url,omitempty"`
	AttemptedAt time.Time  `json:"attempted_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Logger appends access attempts to Postgres. Appends never fail the
// caller; a failed write is reported only through the boolean return and
// the log line.
type Logger struct {
	db  *sql.DB
	log *slog.Logger
}

// NewLogger creates an append-only attempt logger.
func NewLogger(db *sql.DB, log *slog.Logger) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{db: db, log: log}
}

// Log appends one attempt. Returns false when the write failed; the
// failure is swallowed so an already-committed attendance write is never
// blocked or reversed by audit logging.
func (l *Logger) Log(ctx context.Context, a Attempt) bool {
	if a.At.IsZero() {
		a.At = time.Now()
	}
	var sessionID any
	if a.SessionID != "" {
		sessionID = a.SessionID
	}
	var snapshot any
	if a.SnapshotURL != "" {
		snapshot = a.SnapshotURL
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO access_attempts
			(id, identity_id, attempt_type, status, confidence, reason, session_id, snapshot_url, attempted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, uuid.NewString(), a.IdentityID, a.Type, a.Status, a.Confidence, a.Reason, sessionID, snapshot, a.At)
	if err != nil {
		l.log.Warn("access attempt not logged",
			"identity_id", a.IdentityID, "status", a.Status, "error", err)
		return false
	}
	return true
}

// Filter scopes audit listings.
type Filter struct {
	IdentityID string
	Status     string
	Limit      int
	Offset     int
}

// List returns attempts, newest first, with basic filters.
func (l *Logger) List(ctx context.Context, f Filter) ([]LoggedAttempt, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	query := `SELECT id, identity_id, attempt_type, status, confidence, reason, session_id, snapshot_url, attempted_at, created_at FROM access_attempts`
	args := []any{}
	clauses := []string{}
	if f.IdentityID != "" {
		clauses = append(clauses, fmt.Sprintf("identity_id = $%d", len(args)+1))
		args = append(args, f.IdentityID)
	}
	if f.Status != "" {
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, f.Status)
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += fmt.Sprintf(" ORDER BY attempted_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LoggedAttempt
	for rows.Next() {
		var a LoggedAttempt
		if err := rows.Scan(&a.ID, &a.IdentityID, &a.Type, &a.Status, &a.Confidence,
			&a.Reason, &a.SessionID, &a.SnapshotURL, &a.AttemptedAt, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
