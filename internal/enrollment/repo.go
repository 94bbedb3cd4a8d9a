package enrollment

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Identity is a person tracked by the attendance system. Rows are created
// by administrative provisioning; this repository only reads them.
type Identity struct {
	ID        string
	FullName  string
	Status    string
	CreatedAt time.Time
}

// Active reports whether the identity may take part in attendance.
func (i Identity) Active() bool {
	return i.Status == "active"
}

// Enrollment links an identity to a class together with the class's
// denormalized display attributes and its raw schedule column.
type Enrollment struct {
	ClassID     string
	ClassName   string
	CourseCode  string
	CourseName  string
	RawSchedule []byte
}

// Repository reads identities and class enrollments from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetIdentity returns an identity by id, or nil when absent.
func (r *Repository) GetIdentity(ctx context.Context, id string) (*Identity, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, full_name, status, created_at
		FROM identities WHERE id = $1
	`, id)
	var ident Identity
	if err := row.Scan(&ident.ID, &ident.FullName, &ident.Status, &ident.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ident, nil
}

// ActiveEnrollments returns the active class enrollments for an identity.
// Both the enrollment record and the class itself must be active.
func (r *Repository) ActiveEnrollments(ctx context.Context, identityID string) ([]Enrollment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.class_name, c.course_code, c.course_name, COALESCE(c.schedule, '')
		FROM enrollments e
		JOIN classes c ON c.id = e.class_id
		WHERE e.identity_id = $1
		  AND e.status = 'enrolled'
		  AND c.status = 'active'
		ORDER BY c.class_name
	`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Enrollment
	for rows.Next() {
		var e Enrollment
		var raw string
		if err := rows.Scan(&e.ClassID, &e.ClassName, &e.CourseCode, &e.CourseName, &raw); err != nil {
			return nil, err
		}
		e.RawSchedule = []byte(raw)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListIdentities returns identities for the admin/reporting surface.
func (r *Repository) ListIdentities(ctx context.Context, limit, offset int) ([]Identity, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, full_name, status, created_at
		FROM identities
		ORDER BY full_name
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Identity
	for rows.Next() {
		var ident Identity
		if err := rows.Scan(&ident.ID, &ident.FullName, &ident.Status, &ident.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ident)
	}
	return out, rows.Err()
}
