package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Slot is a recurring weekly time window during which a class meets.
// Times are zero-padded "HH:MM" strings; Day accepts English or Indonesian
// day names since the upstream data stores both.
type Slot struct {
	Day   string `json:"day"`
	Start string `json:"start_time"`
	End   string `json:"end_time"`
}

// dayAliases maps lowercase day names, English and Indonesian, to the
// canonical weekday. The source systems mix both spellings in the same
// schedule column.
var dayAliases = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"minggu":    time.Sunday,
	"monday":    time.Monday,
	"senin":     time.Monday,
	"tuesday":   time.Tuesday,
	"selasa":    time.Tuesday,
	"wednesday": time.Wednesday,
	"rabu":      time.Wednesday,
	"thursday":  time.Thursday,
	"kamis":     time.Thursday,
	"friday":    time.Friday,
	"jumat":     time.Friday,
	"jum'at":    time.Friday,
	"saturday":  time.Saturday,
	"sabtu":     time.Saturday,
}

// Weekday resolves a day name through the alias table.
func Weekday(name string) (time.Weekday, bool) {
	wd, ok := dayAliases[strings.ToLower(strings.TrimSpace(name))]
	return wd, ok
}

// NewSlot validates and returns a slot. The day must resolve through the
// alias table and the window must satisfy start < end.
func NewSlot(day, start, end string) (Slot, error) {
	if _, ok := Weekday(day); !ok {
		return Slot{}, fmt.Errorf("unknown day name %q", day)
	}
	start = NormalizeClock(start)
	end = NormalizeClock(end)
	if start == "" || end == "" {
		return Slot{}, fmt.Errorf("invalid time window %q-%q", start, end)
	}
	if start >= end {
		return Slot{}, fmt.Errorf("slot start %q must be before end %q", start, end)
	}
	return Slot{Day: day, Start: start, End: end}, nil
}

// NormalizeClock reduces a clock string to zero-padded "HH:MM".
// "9:5", "09:05" and "09:05:00" all normalize to "09:05"; anything that
// does not look like a clock value returns "".
func NormalizeClock(s string) string {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 {
		return ""
	}
	h, m := parts[0], parts[1]
	if len(h) == 0 || len(h) > 2 || len(m) == 0 || len(m) > 2 {
		return ""
	}
	for _, r := range h + m {
		if r < '0' || r > '9' {
			return ""
		}
	}
	if len(h) == 1 {
		h = "0" + h
	}
	if len(m) == 1 {
		m = "0" + m
	}
	if h > "23" || m > "59" {
		return ""
	}
	return h + ":" + m
}

// MatchesAt reports whether the slot covers the given instant. The window
// is inclusive at both ends, so a 09:00-11:00 slot matches at exactly
// 09:00 and exactly 11:00.
func (s Slot) MatchesAt(at time.Time) bool {
	wd, ok := Weekday(s.Day)
	if !ok || wd != at.Weekday() {
		return false
	}
	now := at.Format("15:04")
	start := NormalizeClock(s.Start)
	end := NormalizeClock(s.End)
	if start == "" || end == "" {
		return false
	}
	return start <= now && now <= end
}
