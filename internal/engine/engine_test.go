package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"facegate/internal/accesslog"
	"facegate/internal/attendance"
	"facegate/internal/schedule"
)

type fakeAuthority struct {
	res    schedule.Resolution
	err    error
	calls  int
	lastID string
}

func (f *fakeAuthority) Resolve(_ context.Context, identityID string, _ time.Time) (schedule.Resolution, error) {
	f.calls++
	f.lastID = identityID
	return f.res, f.err
}

type fakeGate struct {
	ok     bool
	reason string
	err    error
}

func (f *fakeGate) Verify(_ context.Context, _ string) (bool, string, error) {
	return f.ok, f.reason, f.err
}

type fakeLedger struct {
	result      attendance.Result
	calls       int
	lastClassID string
	lastAt      time.Time
	panics      bool
}

func (f *fakeLedger) Record(_ context.Context, _, classID string, _ float64, at time.Time) attendance.Result {
	if f.panics {
		panic("ledger exploded")
	}
	f.calls++
	f.lastClassID = classID
	f.lastAt = at
	return f.result
}

type fakeAttempts struct {
	logged []accesslog.Attempt
}

func (f *fakeAttempts) Log(_ context.Context, a accesslog.Attempt) bool {
	f.logged = append(f.logged, a)
	return true
}

var decisionTime = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func allowed(classID string) schedule.Resolution {
	return schedule.Resolution{
		Allowed: true,
		Reason:  schedule.ReasonInSession,
		Matches: []schedule.ClassMatch{{ClassID: classID, ClassName: "TI-3A"}},
	}
}

func TestDecideGranted(t *testing.T) {
	local := &fakeAuthority{res: allowed("c1")}
	ledger := &fakeLedger{result: attendance.Result{Success: true, SessionID: "sess-1"}}
	attempts := &fakeAttempts{}

	e := New(nil, local, nil, ledger, attempts, nil)
	e.now = func() time.Time { return decisionTime }

	d := e.Decide(context.Background(), "student-1", 0.8)
	if !d.Granted {
		t.Fatalf("expected granted, got reason %q", d.Reason)
	}
	if d.SessionID != "sess-1" {
		t.Errorf("got session id %q, want sess-1", d.SessionID)
	}
	if ledger.lastClassID != "c1" {
		t.Errorf("ledger recorded against class %q, want c1", ledger.lastClassID)
	}
	if !ledger.lastAt.Equal(decisionTime) {
		t.Errorf("ledger got time %v, want %v", ledger.lastAt, decisionTime)
	}
	if len(attempts.logged) != 1 {
		t.Fatalf("got %d logged attempts, want 1", len(attempts.logged))
	}
	got := attempts.logged[0]
	if got.Status != accesslog.StatusGranted || got.SessionID != "sess-1" {
		t.Errorf("unexpected attempt: %+v", got)
	}
}

func TestDecideDuplicateDenies(t *testing.T) {
	local := &fakeAuthority{res: allowed("c1")}
	ledger := &fakeLedger{result: attendance.Result{
		Reason:    attendance.ReasonDuplicate,
		SessionID: "sess-1",
	}}
	attempts := &fakeAttempts{}

	e := New(nil, local, nil, ledger, attempts, nil)
	e.now = func() time.Time { return decisionTime }

	d := e.Decide(context.Background(), "student-1", 0.8)
	if d.Granted {
		t.Fatal("duplicate attendance must deny access")
	}
	if d.Reason != attendance.ReasonDuplicate {
		t.Errorf("got reason %q, want %q", d.Reason, attendance.ReasonDuplicate)
	}
	if len(attempts.logged) != 1 || attempts.logged[0].Status != accesslog.StatusDenied {
		t.Errorf("expected one denied attempt, got %+v", attempts.logged)
	}
}

func TestDecideNoEnrollment(t *testing.T) {
	local := &fakeAuthority{res: schedule.Resolution{
		Allowed: false,
		Reason:  schedule.ReasonNoEnrollment,
	}}
	ledger := &fakeLedger{}
	attempts := &fakeAttempts{}

	e := New(nil, local, nil, ledger, attempts, nil)
	e.now = func() time.Time { return decisionTime }

	d := e.Decide(context.Background(), "stranger", 0.8)
	if d.Granted {
		t.Fatal("expected denial without enrollments")
	}
	if d.Reason != schedule.ReasonNoEnrollment {
		t.Errorf("got reason %q, want %q", d.Reason, schedule.ReasonNoEnrollment)
	}
	if ledger.calls != 0 {
		t.Error("ledger must not be touched on a denied resolution")
	}
}

func TestDecideRemoteAuthorityPreferred(t *testing.T) {
	remote := &fakeAuthority{res: allowed("remote-class")}
	local := &fakeAuthority{res: allowed("local-class")}
	ledger := &fakeLedger{result: attendance.Result{Success: true, SessionID: "sess-r"}}

	e := New(remote, local, nil, ledger, &fakeAttempts{}, nil)
	e.now = func() time.Time { return decisionTime }

	d := e.Decide(context.Background(), "student-1", 0.8)
	if !d.Granted {
		t.Fatalf("expected granted, got %q", d.Reason)
	}
	if ledger.lastClassID != "remote-class" {
		t.Errorf("expected remote resolution to win, ledger saw %q", ledger.lastClassID)
	}
	if local.calls != 0 {
		t.Error("local resolver must not run when the remote answers")
	}
}

func TestDecideRemoteFailureFallsBack(t *testing.T) {
	remote := &fakeAuthority{err: errors.New("connection refused")}
	local := &fakeAuthority{res: allowed("c1")}
	ledger := &fakeLedger{result: attendance.Result{Success: true, SessionID: "sess-1"}}

	e := New(remote, local, nil, ledger, &fakeAttempts{}, nil)
	e.now = func() time.Time { return decisionTime }

	d := e.Decide(context.Background(), "student-1", 0.8)
	if !d.Granted {
		t.Fatalf("remote failure must fall back silently, got %q", d.Reason)
	}
	if local.calls != 1 {
		t.Errorf("local resolver called %d times, want 1", local.calls)
	}

	// The fallback decision must be indistinguishable from a local-only one.
	localOnly := New(nil, &fakeAuthority{res: allowed("c1")}, nil,
		&fakeLedger{result: attendance.Result{Success: true, SessionID: "sess-1"}},
		&fakeAttempts{}, nil)
	localOnly.now = func() time.Time { return decisionTime }
	if ref := localOnly.Decide(context.Background(), "student-1", 0.8); ref != d {
		t.Errorf("fallback decision %+v differs from local-only %+v", d, ref)
	}
}

func TestDecideGateDenies(t *testing.T) {
	local := &fakeAuthority{res: allowed("c1")}
	gate := &fakeGate{ok: false, reason: "no active face model"}
	ledger := &fakeLedger{}

	e := New(nil, local, gate, ledger, &fakeAttempts{}, nil)
	e.now = func() time.Time { return decisionTime }

	d := e.Decide(context.Background(), "student-1", 0.8)
	if d.Granted {
		t.Fatal("expected gate denial")
	}
	if d.Reason != "no active face model" {
		t.Errorf("got reason %q, want gate reason", d.Reason)
	}
	if local.calls != 0 {
		t.Error("authority must not be consulted when the gate denies")
	}
}

func TestDecideAllowedWithoutMatchesDenies(t *testing.T) {
	remote := &fakeAuthority{res: schedule.Resolution{
		Allowed: true,
		Reason:  schedule.ReasonInSession,
	}}
	local := &fakeAuthority{res: allowed("c1")}
	ledger := &fakeLedger{}
	attempts := &fakeAttempts{}

	e := New(remote, local, nil, ledger, attempts, nil)
	e.now = func() time.Time { return decisionTime }

	d := e.Decide(context.Background(), "student-1", 0.8)
	if d.Granted {
		t.Fatal("allowed resolution without class matches must deny")
	}
	if d.Reason != ReasonSystemError {
		t.Errorf("got reason %q, want %q", d.Reason, ReasonSystemError)
	}
	if ledger.calls != 0 {
		t.Error("ledger must not be touched without a class match")
	}
	if len(attempts.logged) != 1 || attempts.logged[0].Status != accesslog.StatusDenied {
		t.Errorf("expected one denied attempt, got %+v", attempts.logged)
	}
}

func TestDecideResolverErrorIsSystemError(t *testing.T) {
	local := &fakeAuthority{err: errors.New("db down")}
	attempts := &fakeAttempts{}

	e := New(nil, local, nil, &fakeLedger{}, attempts, nil)
	e.now = func() time.Time { return decisionTime }

	d := e.Decide(context.Background(), "student-1", 0.8)
	if d.Granted {
		t.Fatal("expected denial on resolver failure")
	}
	if d.Reason != ReasonSystemError {
		t.Errorf("got reason %q, want %q", d.Reason, ReasonSystemError)
	}
	if len(attempts.logged) != 1 || attempts.logged[0].Status != accesslog.StatusDenied {
		t.Errorf("expected one denied attempt, got %+v", attempts.logged)
	}
}

func TestDecideRecoversFromPanic(t *testing.T) {
	local := &fakeAuthority{res: allowed("c1")}
	ledger := &fakeLedger{panics: true}
	attempts := &fakeAttempts{}

	e := New(nil, local, nil, ledger, attempts, nil)
	e.now = func() time.Time { return decisionTime }

	d := e.Decide(context.Background(), "student-1", 0.8)
	if d.Granted {
		t.Fatal("a panicking decision must deny")
	}
	if d.Reason != ReasonSystemError {
		t.Errorf("got reason %q, want %q", d.Reason, ReasonSystemError)
	}
}
