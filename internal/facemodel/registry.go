package facemodel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Model statuses. Retraining supersedes the prior active model; removal is
// a soft delete to inactive.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusTraining = "training"
	StatusFailed   = "failed"
)

// Model is one trained recognition profile. At most one active model
// exists per identity at a time (partial unique index on the table).
type Model struct {
	ID          string    `json:"id"`
	IdentityID  string    `json:"identity_id"`
	ModelPath   string    `json:"model_path"`
	SampleCount int       `json:"sample_count"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Registry manages face-model lifecycle rows in Postgres.
type Registry struct {
	db *sql.DB
}

// NewRegistry creates a registry.
func NewRegistry(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// ActiveModel returns the identity's active model, or nil when none.
func (r *Registry) ActiveModel(ctx context.Context, identityID string) (*Model, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, identity_id, model_path, sample_count, status, created_at, updated_at
		FROM face_models
		WHERE identity_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, identityID, StatusActive)
	var m Model
	if err := row.Scan(&m.ID, &m.IdentityID, &m.ModelPath, &m.SampleCount,
		&m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// BeginTraining inserts a placeholder row in training status and returns
// its id. The prior active model keeps serving recognitions until Promote.
func (r *Registry) BeginTraining(ctx context.Context, identityID string) (string, error) {
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO face_models (id, identity_id, model_path, sample_count, status)
		VALUES ($1, $2, '', 0, $3)
	`, id, identityID, StatusTraining)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Promote activates a freshly trained model and deactivates any prior
// active model for the same identity in one transaction. The caller may
// delete the superseded artifact only after this commits.
func (r *Registry) Promote(ctx context.Context, modelID, modelPath string, sampleCount int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE face_models SET status = $1, updated_at = NOW()
		WHERE status = $2
		  AND identity_id = (SELECT identity_id FROM face_models WHERE id = $3)
		  AND id <> $3
	`, StatusInactive, StatusActive, modelID)
	if err != nil {
		return fmt.Errorf("supersede prior model: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE face_models
		SET status = $1, model_path = $2, sample_count = $3, updated_at = NOW()
		WHERE id = $4
	`, StatusActive, modelPath, sampleCount, modelID)
	if err != nil {
		return fmt.Errorf("activate model: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("model %s not found", modelID)
	}

	return tx.Commit()
}

// MarkFailed records a failed training run.
func (r *Registry) MarkFailed(ctx context.Context, modelID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE face_models SET status = $1, updated_at = NOW() WHERE id = $2
	`, StatusFailed, modelID)
	return err
}

// Deactivate soft-deletes the identity's active model.
func (r *Registry) Deactivate(ctx context.Context, identityID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE face_models SET status = $1, updated_at = NOW()
		WHERE identity_id = $2 AND status = $3
	`, StatusInactive, identityID, StatusActive)
	return err
}
