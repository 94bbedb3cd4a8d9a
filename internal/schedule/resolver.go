package schedule

import (
	"context"
	"log/slog"
	"time"

	"facegate/internal/enrollment"
)

// Resolution reasons surfaced to callers and attempt logs.
const (
	ReasonNoEnrollment = "no enrolled classes"
	ReasonNoSlotNow    = "no scheduled classes at this time"
	ReasonInSession    = "has scheduled class in session"
)

// ClassMatch is one class whose schedule covers the queried instant.
type ClassMatch struct {
	ClassID    string `json:"class_id"`
	ClassName  string `json:"class_name"`
	CourseName string `json:"course_name"`
	Slot       Slot   `json:"slot"`
}

// Resolution is the outcome of an access-schedule check. An identity may
// match several classes at once; callers pick the first for session
// correlation.
type Resolution struct {
	Allowed bool         `json:"allowed"`
	Matches []ClassMatch `json:"matches"`
	Reason  string       `json:"reason"`
}

// EnrollmentSource provides the active enrollments for an identity.
type EnrollmentSource interface {
	ActiveEnrollments(ctx context.Context, identityID string) ([]enrollment.Enrollment, error)
}

// Resolver answers "is this identity scheduled to be here now" from the
// local enrollment and schedule tables. It is the fallback authority when
// no remote service is configured or reachable.
type Resolver struct {
	enrollments EnrollmentSource
	log         *slog.Logger
}

// NewResolver creates a resolver over an enrollment source.
func NewResolver(src EnrollmentSource, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{enrollments: src, log: log}
}

// Resolve returns all class slots covering the given instant for the
// identity. Unparsable schedules degrade to an empty slot list for that
// class; they never fail the whole resolution.
func (r *Resolver) Resolve(ctx context.Context, identityID string, at time.Time) (Resolution, error) {
	enrollments, err := r.enrollments.ActiveEnrollments(ctx, identityID)
	if err != nil {
		return Resolution{}, err
	}
	if len(enrollments) == 0 {
		return Resolution{Allowed: false, Reason: ReasonNoEnrollment}, nil
	}

	var matches []ClassMatch
	for _, enr := range enrollments {
		slots, err := ParseSlots(enr.RawSchedule)
		if err != nil {
			r.log.Warn("unreadable class schedule, treating as empty",
				"class_id", enr.ClassID, "error", err)
			continue
		}
		for _, slot := range slots {
			if slot.MatchesAt(at) {
				matches = append(matches, ClassMatch{
					ClassID:    enr.ClassID,
					ClassName:  enr.ClassName,
					CourseName: enr.CourseName,
					Slot:       slot,
				})
			}
		}
	}

	if len(matches) == 0 {
		return Resolution{Allowed: false, Reason: ReasonNoSlotNow}, nil
	}
	return Resolution{Allowed: true, Matches: matches, Reason: ReasonInSession}, nil
}
