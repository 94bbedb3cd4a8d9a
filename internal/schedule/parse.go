package schedule

import (
	"encoding/json"
	"fmt"
)

// ParseSlots decodes a stored schedule column into slots. The column is
// expected to hold a JSON array of slot objects, but historical writers
// sometimes string-encoded the array a second time; one extra layer of
// string encoding is unwrapped before giving up. Entries that are not
// objects, or that fail slot validation, are skipped rather than failing
// the whole schedule.
func ParseSlots(raw []byte) ([]Slot, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	entries, err := decodeArray(raw)
	if err != nil {
		// Tolerate one layer of double encoding: a JSON string whose
		// content is itself the JSON array.
		var inner string
		if jsonErr := json.Unmarshal(raw, &inner); jsonErr != nil {
			return nil, fmt.Errorf("schedule is not a JSON array: %w", err)
		}
		entries, err = decodeArray([]byte(inner))
		if err != nil {
			return nil, fmt.Errorf("double-encoded schedule is not a JSON array: %w", err)
		}
	}

	slots := make([]Slot, 0, len(entries))
	for _, entry := range entries {
		var s Slot
		if err := json.Unmarshal(entry, &s); err != nil {
			continue
		}
		valid, err := NewSlot(s.Day, s.Start, s.End)
		if err != nil {
			continue
		}
		slots = append(slots, valid)
	}
	return slots, nil
}

func decodeArray(raw []byte) ([]json.RawMessage, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
