package enrollment

import (
	"context"

	"facegate/internal/facemodel"
)

// Verification reasons surfaced as denial reasons by the decision engine.
const (
	ReasonNotEnrolled   = "identity not enrolled"
	ReasonNoActiveModel = "no active face model"
)

// ModelSource provides the active face model for an identity.
type ModelSource interface {
	ActiveModel(ctx context.Context, identityID string) (*facemodel.Model, error)
}

// Verifier checks that a recognized identity is actually provisioned:
// the identity row exists and is active, and an active trained face model
// backs the recognition.
type Verifier struct {
	repo   *Repository
	models ModelSource
}

// NewVerifier creates a verifier.
func NewVerifier(repo *Repository, models ModelSource) *Verifier {
	return &Verifier{repo: repo, models: models}
}

// Verify returns ok=false with a denial reason when the identity is
// missing, inactive, or has no active face model.
func (v *Verifier) Verify(ctx context.Context, identityID string) (bool, string, error) {
	ident, err := v.repo.GetIdentity(ctx, identityID)
	if err != nil {
		return false, "", err
	}
	if ident == nil || !ident.Active() {
		return false, ReasonNotEnrolled, nil
	}
	model, err := v.models.ActiveModel(ctx, identityID)
	if err != nil {
		return false, "", err
	}
	if model == nil {
		return false, ReasonNoActiveModel, nil
	}
	return true, "", nil
}
