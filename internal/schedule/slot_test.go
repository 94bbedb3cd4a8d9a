package schedule

import (
	"testing"
	"time"
)

func TestWeekdayAliases(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Weekday
	}{
		{"Monday", time.Monday},
		{"Senin", time.Monday},
		{"senin", time.Monday},
		{"  Selasa ", time.Tuesday},
		{"Wednesday", time.Wednesday},
		{"Rabu", time.Wednesday},
		{"Kamis", time.Thursday},
		{"Jumat", time.Friday},
		{"Jum'at", time.Friday},
		{"Sabtu", time.Saturday},
		{"Minggu", time.Sunday},
		{"SUNDAY", time.Sunday},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			wd, ok := Weekday(tt.input)
			if !ok {
				t.Fatalf("Weekday(%q) not recognized", tt.input)
			}
			if wd != tt.expected {
				t.Errorf("Weekday(%q) = %v, want %v", tt.input, wd, tt.expected)
			}
		})
	}

	if _, ok := Weekday("Lundi"); ok {
		t.Error("expected unknown day name to be rejected")
	}
}

func TestNormalizeClock(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"09:00", "09:00"},
		{"9:00", "09:00"},
		{"9:5", "09:05"},
		{"09:00:00", "09:00"},
		{"23:59", "23:59"},
		{"24:00", ""},
		{"09:60", ""},
		{"nine", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeClock(tt.input); got != tt.expected {
				t.Errorf("NormalizeClock(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNewSlotValidation(t *testing.T) {
	if _, err := NewSlot("Monday", "09:00", "11:00"); err != nil {
		t.Fatalf("valid slot rejected: %v", err)
	}
	if _, err := NewSlot("Monday", "11:00", "09:00"); err == nil {
		t.Error("expected start>=end to be rejected")
	}
	if _, err := NewSlot("Monday", "09:00", "09:00"); err == nil {
		t.Error("expected zero-length window to be rejected")
	}
	if _, err := NewSlot("Someday", "09:00", "11:00"); err == nil {
		t.Error("expected unknown day to be rejected")
	}
}

func TestMatchesAt(t *testing.T) {
	// 2024-01-01 is a Monday.
	monday := func(clock string) time.Time {
		parsed, err := time.Parse("2006-01-02 15:04", "2024-01-01 "+clock)
		if err != nil {
			t.Fatalf("bad test clock %q: %v", clock, err)
		}
		return parsed
	}

	slot := Slot{Day: "Senin", Start: "09:00", End: "11:00"}

	tests := []struct {
		name     string
		at       time.Time
		expected bool
	}{
		{"start boundary inclusive", monday("09:00"), true},
		{"end boundary inclusive", monday("11:00"), true},
		{"inside window", monday("10:30"), true},
		{"before window", monday("08:59"), false},
		{"after window", monday("11:01"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := slot.MatchesAt(tt.at); got != tt.expected {
				t.Errorf("MatchesAt(%v) = %v, want %v", tt.at, got, tt.expected)
			}
		})
	}

	tuesday := monday("10:00").AddDate(0, 0, 1)
	if slot.MatchesAt(tuesday) {
		t.Error("slot for Senin must not match on Tuesday")
	}

	english := Slot{Day: "Monday", Start: "09:00", End: "11:00"}
	if !english.MatchesAt(monday("10:00")) {
		t.Error("English day name must match equivalently")
	}
}
