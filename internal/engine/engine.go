package engine

import (
	"context"
	"log/slog"
	"time"

	"facegate/internal/accesslog"
	"facegate/internal/attendance"
	"facegate/internal/schedule"
)

// ReasonSystemError is the generic denial reason for anything unexpected.
// Gate, resolver, and ledger reasons pass through unchanged.
const ReasonSystemError = attendance.ReasonSystemError

// Decision is the outcome of one recognition event. Reason is always
// human-readable; there is no unknown/crashed state.
type Decision struct {
	Granted   bool   `json:"granted"`
	Reason    string `json:"reason"`
	SessionID string `json:"session_id,omitempty"`
}

// Authority answers whether an identity is scheduled to be present at an
// instant. Implemented remotely by authority.Client and locally by
// schedule.Resolver.
type Authority interface {
	Resolve(ctx context.Context, identityID string, at time.Time) (schedule.Resolution, error)
}

// Gate verifies the identity is provisioned: active and holding an active
// face model. A nil gate skips the check.
type Gate interface {
	Verify(ctx context.Context, identityID string) (ok bool, reason string, err error)
}

// Ledger records attendance for a granted decision.
type Ledger interface {
	Record(ctx context.Context, identityID, classID string, confidence float64, at time.Time) attendance.Result
}

// AttemptLogger appends door access attempts.
type AttemptLogger interface {
	Log(ctx context.Context, a accesslog.Attempt) bool
}

// Engine orchestrates one access decision per recognized face: authority
// resolution (remote first, local fallback), attendance recording, and
// attempt logging. Nothing escapes Decide; the camera loop never crashes
// because a decision failed.
type Engine struct {
	remote   Authority // optional
	local    Authority
	gate     Gate // optional
	ledger   Ledger
	attempts AttemptLogger
	now      func() time.Time
	log      *slog.Logger
}

// New creates an engine. remote and gate may be nil.
func New(remote, local Authority, gate Gate, ledger Ledger, attempts AttemptLogger, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		remote:   remote,
		local:    local,
		gate:     gate,
		ledger:   ledger,
		attempts: attempts,
		now:      time.Now,
		log:      log,
	}
}

// Decide runs the full decision chain for one recognition event.
func (e *Engine) Decide(ctx context.Context, identityID string, confidence float64) Decision {
	return e.DecideWithSnapshot(ctx, identityID, confidence, "")
}

// DecideWithSnapshot is Decide with an already-uploaded audit snapshot URL
// attached to the logged attempt.
func (e *Engine) DecideWithSnapshot(ctx context.Context, identityID string, confidence float64, snapshotURL string) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("decision panicked", "identity_id", identityID, "panic", r)
			d = e.deny(ctx, identityID, confidence, ReasonSystemError, "", snapshotURL)
		}
	}()

	at := e.now()

	if e.gate != nil {
		ok, reason, err := e.gate.Verify(ctx, identityID)
		if err != nil {
			e.log.Error("enrollment check failed", "identity_id", identityID, "error", err)
			return e.deny(ctx, identityID, confidence, ReasonSystemError, "", snapshotURL)
		}
		if !ok {
			return e.deny(ctx, identityID, confidence, reason, "", snapshotURL)
		}
	}

	res, err := e.resolve(ctx, identityID, at)
	if err != nil {
		e.log.Error("schedule resolution failed", "identity_id", identityID, "error", err)
		return e.deny(ctx, identityID, confidence, ReasonSystemError, "", snapshotURL)
	}
	if !res.Allowed {
		return e.deny(ctx, identityID, confidence, res.Reason, "", snapshotURL)
	}

	// An authority may answer allowed with no matches; that is malformed
	// input, not a valid grant, since attendance has no class to anchor to.
	if len(res.Matches) == 0 {
		e.log.Error("authority allowed access without class matches",
			"identity_id", identityID, "reason", res.Reason)
		return e.deny(ctx, identityID, confidence, ReasonSystemError, "", snapshotURL)
	}

	// Multiple classes can be in session at once; the first match anchors
	// the attendance record.
	match := res.Matches[0]
	result := e.ledger.Record(ctx, identityID, match.ClassID, confidence, at)
	if !result.Success {
		// Duplicate attendance denies this access event even though the
		// identity was correctly recognized.
		return e.deny(ctx, identityID, confidence, result.Reason, result.SessionID, snapshotURL)
	}

	attendanceRecorded.Inc()
	return e.grant(ctx, identityID, confidence, result.SessionID, snapshotURL)
}

// resolve asks the remote authority first when configured. Any transport
// failure or non-2xx response substitutes the local resolver for this
// call; the substitution is silent and permanent for the call.
func (e *Engine) resolve(ctx context.Context, identityID string, at time.Time) (schedule.Resolution, error) {
	if e.remote != nil {
		res, err := e.remote.Resolve(ctx, identityID, at)
		if err == nil {
			return res, nil
		}
		authorityFallbacks.Inc()
		e.log.Warn("remote authority unavailable, using local resolver",
			"identity_id", identityID, "error", err)
	}
	return e.local.Resolve(ctx, identityID, at)
}

func (e *Engine) grant(ctx context.Context, identityID string, confidence float64, sessionID, snapshotURL string) Decision {
	decisionsTotal.WithLabelValues("granted", "attendance recorded").Inc()
	conf := confidence
	e.attempts.Log(ctx, accesslog.Attempt{
		IdentityID:  identityID,
		Type:        accesslog.TypeFaceRecognition,
		Status:      accesslog.StatusGranted,
		Confidence:  &conf,
		Reason:      "attendance recorded",
		SessionID:   sessionID,
		SnapshotURL: snapshotURL,
		At:          e.now(),
	})
	return Decision{Granted: true, Reason: "attendance recorded", SessionID: sessionID}
}

func (e *Engine) deny(ctx context.Context, identityID string, confidence float64, reason, sessionID, snapshotURL string) Decision {
	if reason == "" {
		reason = ReasonSystemError
	}
	decisionsTotal.WithLabelValues("denied", reason).Inc()
	conf := confidence
	e.attempts.Log(ctx, accesslog.Attempt{
		IdentityID:  identityID,
		Type:        accesslog.TypeFaceRecognition,
		Status:      accesslog.StatusDenied,
		Confidence:  &conf,
		Reason:      reason,
		SessionID:   sessionID,
		SnapshotURL: snapshotURL,
		At:          e.now(),
	})
	return Decision{Granted: false, Reason: reason, SessionID: sessionID}
}
