package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Class is the subset of a class row the registry needs: its identity and
// the raw schedule column the default session window derives from.
type Class struct {
	ID          string
	ClassName   string
	RawSchedule []byte
}

// Session is the daily instantiation of a class for attendance purposes.
// Start and end are copied from the class schedule at creation time and
// never re-derived afterwards.
type Session struct {
	ID        string `json:"id"`
	ClassID   string `json:"class_id"`
	Number    int    `json:"session_number"`
	Date      string `json:"session_date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Status    string `json:"status"`
}

// Record is one attendance row. At most one exists per (identity, session).
type Record struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	IdentityID  string    `json:"identity_id"`
	Status      string    `json:"status"`
	CheckInTime time.Time `json:"check_in_time"`
	Method      string    `json:"method"`
	Confidence  float64   `json:"confidence"`
	CreatedAt   time.Time `json:"created_at"`
}

// ErrRecordExists is returned by InsertRecord when the storage-level
// uniqueness constraint on (session_id, identity_id) rejects the write.
var ErrRecordExists = errors.New("attendance record already exists")

// Repository persists sessions and attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetClass returns a class by id, or nil when absent.
func (r *Repository) GetClass(ctx context.Context, classID string) (*Class, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, class_name, COALESCE(schedule, '')
		FROM classes WHERE id = $1
	`, classID)
	var c Class
	var raw string
	if err := row.Scan(&c.ID, &c.ClassName, &raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.RawSchedule = []byte(raw)
	return &c, nil
}

// RecordForDay returns the attendance record for an identity in a class on
// a calendar date, joined through the session table, or nil when none
// exists. Newest first as a defensive ordering.
func (r *Repository) RecordForDay(ctx context.Context, identityID, classID, date string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT ar.id, ar.session_id, ar.identity_id, ar.status, ar.check_in_time,
		       ar.method, ar.confidence, ar.created_at
		FROM attendance_records ar
		JOIN sessions s ON s.id = ar.session_id
		WHERE ar.identity_id = $1
		  AND s.class_id = $2
		  AND s.session_date = $3
		ORDER BY ar.check_in_time DESC
		LIMIT 1
	`, identityID, classID, date)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.IdentityID, &rec.Status,
		&rec.CheckInTime, &rec.Method, &rec.Confidence, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// LatestSession returns the most recently created session for a class on a
// date, or nil when none exists. Duplicates are not expected in steady
// state; most-recent wins if they somehow occur.
func (r *Repository) LatestSession(ctx context.Context, classID, date string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, class_id, session_number, session_date, start_time, end_time, status
		FROM sessions
		WHERE class_id = $1 AND session_date = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, classID, date)
	return scanSession(row)
}

// SessionCount returns the number of sessions recorded for a class; the
// next sequence number is count+1.
func (r *Repository) SessionCount(ctx context.Context, classID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE class_id = $1`, classID).Scan(&n)
	return n, err
}

// InsertSession writes a new session. The unique constraint on
// (class_id, session_date) makes concurrent first-attendee creation safe:
// the conflicting insert resolves to the already-existing row's id.
func (r *Repository) InsertSession(ctx context.Context, s Session) (string, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	var id string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO sessions (id, class_id, session_number, session_date, start_time, end_time, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (class_id, session_date) DO UPDATE SET updated_at = NOW()
		RETURNING id
	`, s.ID, s.ClassID, s.Number, s.Date, s.StartTime, s.EndTime, s.Status).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// InsertRecord writes a new attendance record. Returns ErrRecordExists
// when the (session_id, identity_id) constraint rejects a concurrent
// duplicate.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, session_id, identity_id, status, check_in_time, method, confidence)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (session_id, identity_id) DO NOTHING
	`, rec.ID, rec.SessionID, rec.IdentityID, rec.Status, rec.CheckInTime, rec.Method, rec.Confidence)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRecordExists
	}
	return nil
}

// ListRecords returns attendance records, newest first, optionally
// filtered by identity.
func (r *Repository) ListRecords(ctx context.Context, identityID string, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `
		SELECT id, session_id, identity_id, status, check_in_time, method, confidence, created_at
		FROM attendance_records`
	args := []any{}
	if identityID != "" {
		query += ` WHERE identity_id = $1`
		args = append(args, identityID)
	}
	query += ` ORDER BY check_in_time DESC`
	if identityID != "" {
		query += ` LIMIT $2 OFFSET $3`
	} else {
		query += ` LIMIT $1 OFFSET $2`
	}
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.IdentityID, &rec.Status,
			&rec.CheckInTime, &rec.Method, &rec.Confidence, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanSession(row *sql.Row) (*Session, error) {
	var s Session
	if err := row.Scan(&s.ID, &s.ClassID, &s.Number, &s.Date,
		&s.StartTime, &s.EndTime, &s.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
