package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"facegate/internal/enrollment"
)

type fakeEnrollments struct {
	rows []enrollment.Enrollment
	err  error
}

func (f *fakeEnrollments) ActiveEnrollments(_ context.Context, _ string) ([]enrollment.Enrollment, error) {
	return f.rows, f.err
}

// 2024-01-01 10:00 is a Monday morning.
var mondayMorning = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func TestResolveNoEnrollments(t *testing.T) {
	r := NewResolver(&fakeEnrollments{}, nil)

	res, err := r.Resolve(context.Background(), "student-1", mondayMorning)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed {
		t.Error("expected access denied without enrollments")
	}
	if res.Reason != ReasonNoEnrollment {
		t.Errorf("got reason %q, want %q", res.Reason, ReasonNoEnrollment)
	}
}

func TestResolveMatchingSlot(t *testing.T) {
	src := &fakeEnrollments{rows: []enrollment.Enrollment{
		{
			ClassID:     "c1",
			ClassName:   "TI-3A",
			CourseName:  "Databases",
			RawSchedule: []byte(`[{"day":"Senin","start_time":"09:00","end_time":"11:00"}]`),
		},
	}}
	r := NewResolver(src, nil)

	res, err := r.Resolve(context.Background(), "student-1", mondayMorning)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("expected access allowed, got reason %q", res.Reason)
	}
	if res.Reason != ReasonInSession {
		t.Errorf("got reason %q, want %q", res.Reason, ReasonInSession)
	}
	if len(res.Matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(res.Matches))
	}
	if res.Matches[0].ClassID != "c1" || res.Matches[0].CourseName != "Databases" {
		t.Errorf("unexpected match: %+v", res.Matches[0])
	}
}

func TestResolveOutsideWindow(t *testing.T) {
	src := &fakeEnrollments{rows: []enrollment.Enrollment{
		{
			ClassID:     "c1",
			RawSchedule: []byte(`[{"day":"Senin","start_time":"13:00","end_time":"15:00"}]`),
		},
	}}
	r := NewResolver(src, nil)

	res, err := r.Resolve(context.Background(), "student-1", mondayMorning)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed {
		t.Error("expected access denied outside the scheduled window")
	}
	if res.Reason != ReasonNoSlotNow {
		t.Errorf("got reason %q, want %q", res.Reason, ReasonNoSlotNow)
	}
}

func TestResolveAggregatesOverlappingClasses(t *testing.T) {
	src := &fakeEnrollments{rows: []enrollment.Enrollment{
		{ClassID: "c1", RawSchedule: []byte(`[{"day":"Monday","start_time":"09:00","end_time":"11:00"}]`)},
		{ClassID: "c2", RawSchedule: []byte(`[{"day":"Senin","start_time":"10:00","end_time":"12:00"}]`)},
		{ClassID: "c3", RawSchedule: []byte(`[{"day":"Selasa","start_time":"09:00","end_time":"11:00"}]`)},
	}}
	r := NewResolver(src, nil)

	res, err := r.Resolve(context.Background(), "student-1", mondayMorning)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(res.Matches))
	}
	if res.Matches[0].ClassID != "c1" || res.Matches[1].ClassID != "c2" {
		t.Errorf("unexpected matches: %+v", res.Matches)
	}
}

func TestResolveUnreadableScheduleDegrades(t *testing.T) {
	src := &fakeEnrollments{rows: []enrollment.Enrollment{
		{ClassID: "broken", RawSchedule: []byte(`not json at all`)},
		{ClassID: "ok", RawSchedule: []byte(`[{"day":"Senin","start_time":"09:00","end_time":"11:00"}]`)},
	}}
	r := NewResolver(src, nil)

	res, err := r.Resolve(context.Background(), "student-1", mondayMorning)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("expected the readable class to still match, got reason %q", res.Reason)
	}
	if len(res.Matches) != 1 || res.Matches[0].ClassID != "ok" {
		t.Errorf("unexpected matches: %+v", res.Matches)
	}
}

func TestResolveSourceError(t *testing.T) {
	r := NewResolver(&fakeEnrollments{err: errors.New("db down")}, nil)

	if _, err := r.Resolve(context.Background(), "student-1", mondayMorning); err == nil {
		t.Error("expected enrollment source error to propagate")
	}
}
