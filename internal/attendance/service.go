package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"facegate/internal/accesslog"
	"facegate/internal/schedule"
)

// Attendance statuses and the recording method written by the engine.
const (
	StatusPresent = "present"
	StatusOngoing = "ongoing"

	MethodFaceRecognition = "face_recognition"
)

// Default session window used when a class has no parsable schedule slot.
const (
	defaultSessionStart = "08:00"
	defaultSessionEnd   = "17:00"
)

// Result reasons surfaced to the decision engine.
const (
	ReasonDuplicate     = "duplicate_attendance"
	ReasonSessionFailed = "session_creation_failed"
	ReasonSystemError   = "system_error"
)

// ErrClassNotFound means the class backing a session could not be found;
// no attendance can be recorded without a session.
var ErrClassNotFound = errors.New("class not found")

// Result is the outcome of one recording attempt. Reason is set only on
// failure; PrevCheckIn carries the earlier check-in time on duplicates so
// the operator UI can surface it.
type Result struct {
	Success     bool
	Message     string
	SessionID   string
	Reason      string
	PrevCheckIn *time.Time
}

// Store is the persistence surface the service needs. Implemented by
// Repository; faked in tests.
type Store interface {
	GetClass(ctx context.Context, classID string) (*Class, error)
	RecordForDay(ctx context.Context, identityID, classID, date string) (*Record, error)
	LatestSession(ctx context.Context, classID, date string) (*Session, error)
	SessionCount(ctx context.Context, classID string) (int, error)
	InsertSession(ctx context.Context, s Session) (string, error)
	InsertRecord(ctx context.Context, rec Record) error
}

// AttemptLogger appends recognition attempts after a committed write.
type AttemptLogger interface {
	Log(ctx context.Context, a accesslog.Attempt) bool
}

// Service is the attendance ledger: it enforces one present record per
// (identity, class, day) and creates the daily session on demand.
type Service struct {
	store    Store
	attempts AttemptLogger
	log      *slog.Logger
}

// NewService creates a ledger over a store. attempts may be nil when no
// recognition log sink is wired.
func NewService(store Store, attempts AttemptLogger, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, attempts: attempts, log: log}
}

// GetOrCreateSession finds the session for (class, date) or creates it,
// deriving the time window from the class's first schedule slot and
// falling back to the default window when the class has none. Returns
// ErrClassNotFound when the class itself is missing.
func (s *Service) GetOrCreateSession(ctx context.Context, classID, date string) (*Session, error) {
	existing, err := s.store.LatestSession(ctx, classID, date)
	if err != nil {
		return nil, fmt.Errorf("session lookup: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	class, err := s.store.GetClass(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("class lookup: %w", err)
	}
	if class == nil {
		return nil, ErrClassNotFound
	}

	start, end := defaultSessionStart, defaultSessionEnd
	if slots, err := schedule.ParseSlots(class.RawSchedule); err == nil && len(slots) > 0 {
		start, end = slots[0].Start, slots[0].End
	}

	count, err := s.store.SessionCount(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("session count: %w", err)
	}

	sess := Session{
		ClassID:   classID,
		Number:    count + 1,
		Date:      date,
		StartTime: start,
		EndTime:   end,
		Status:    StatusOngoing,
	}
	id, err := s.store.InsertSession(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("session insert: %w", err)
	}
	sess.ID = id
	return &sess, nil
}

// Record marks attendance for an identity in a class. The duplicate check
// runs strictly before any session is created or mutated; a second
// recognition on the same calendar day for the same class is rejected,
// not duplicated. Unexpected failures normalize to a system_error result
// and are never propagated raw.
func (s *Service) Record(ctx context.Context, identityID, classID string, confidence float64, at time.Time) Result {
	date := at.Format("2006-01-02")

	prev, err := s.store.RecordForDay(ctx, identityID, classID, date)
	if err != nil {
		s.log.Error("attendance duplicate check failed",
			"identity_id", identityID, "class_id", classID, "error", err)
		return Result{Reason: ReasonSystemError, Message: "attendance check failed"}
	}
	if prev != nil {
		t := prev.CheckInTime
		return Result{
			Reason:      ReasonDuplicate,
			Message:     fmt.Sprintf("attendance already recorded at %s", t.Format("15:04")),
			SessionID:   prev.SessionID,
			PrevCheckIn: &t,
		}
	}

	sess, err := s.GetOrCreateSession(ctx, classID, date)
	if err != nil {
		s.log.Error("session creation failed",
			"identity_id", identityID, "class_id", classID, "error", err)
		msg := "could not create attendance session"
		if errors.Is(err, ErrClassNotFound) {
			msg = "class not found"
		}
		return Result{Reason: ReasonSessionFailed, Message: msg}
	}

	rec := Record{
		SessionID:   sess.ID,
		IdentityID:  identityID,
		Status:      StatusPresent,
		CheckInTime: at,
		Method:      MethodFaceRecognition,
		Confidence:  confidence,
	}
	if err := s.store.InsertRecord(ctx, rec); err != nil {
		if errors.Is(err, ErrRecordExists) {
			// Lost a race with a concurrent recognition of the same
			// identity; the constraint makes this a duplicate, not a fault.
			return Result{
				Reason:    ReasonDuplicate,
				Message:   "attendance already recorded",
				SessionID: sess.ID,
			}
		}
		s.log.Error("attendance insert failed",
			"identity_id", identityID, "session_id", sess.ID, "error", err)
		return Result{Reason: ReasonSystemError, Message: "failed to record attendance"}
	}

	if s.attempts != nil {
		conf := confidence
		s.attempts.Log(ctx, accesslog.Attempt{
			IdentityID: identityID,
			Type:       accesslog.TypeRecognitionLog,
			Status:     accesslog.StatusGranted,
			Confidence: &conf,
			Reason:     "attendance recorded",
			SessionID:  sess.ID,
			At:         at,
		})
	}

	return Result{
		Success:   true,
		Message:   "attendance recorded",
		SessionID: sess.ID,
	}
}
