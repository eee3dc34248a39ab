package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// storedEvent is the loose shape accepted from a backing store. Every field
// is optional here so that each record can be checked on its own.
type storedEvent struct {
	ID    *string `json:"id"`
	Name  *string `json:"name"`
	Date  *string `json:"date"`
	Time  *string `json:"time"`
	Color *string `json:"color"`
	Notes *string `json:"notes"`
}

// RecordError describes a stored record that was rejected while decoding
type RecordError struct {
	Index int
	ID    string
	Err   error
}

func (e *RecordError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("record %d (id %s): %v", e.Index, e.ID, e.Err)
	}
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// EncodeCollection serializes events as a JSON array in the given order.
func EncodeCollection(events []CalendarEvent) ([]byte, error) {
	if events == nil {
		events = []CalendarEvent{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("encoding events: %w", err)
	}
	return data, nil
}

// DecodeCollection parses a stored JSON array of events.
//
// The returned error is non-nil only when the document as a whole cannot be
// read as an array. Individual records that are missing required fields,
// carry an unparsable date or repeat an earlier ID are dropped and reported
// in the RecordError slice; the remaining records keep their order.
func DecodeCollection(data []byte) ([]CalendarEvent, []*RecordError, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("parsing events: %w", err)
	}

	events := make([]CalendarEvent, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	var rejected []*RecordError

	for i, msg := range raw {
		evt, err := decodeRecord(msg)
		if err != nil {
			rejected = append(rejected, &RecordError{Index: i, ID: evt.ID, Err: err})
			continue
		}
		if seen[evt.ID] {
			rejected = append(rejected, &RecordError{Index: i, ID: evt.ID, Err: fmt.Errorf("%w: duplicate id", ErrInvalid)})
			continue
		}
		seen[evt.ID] = true
		events = append(events, evt)
	}

	return events, rejected, nil
}

func decodeRecord(msg json.RawMessage) (CalendarEvent, error) {
	var rec storedEvent
	if err := json.Unmarshal(msg, &rec); err != nil {
		return CalendarEvent{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	evt := CalendarEvent{
		ID:    deref(rec.ID),
		Name:  deref(rec.Name),
		Time:  deref(rec.Time),
		Color: deref(rec.Color),
		Notes: deref(rec.Notes),
	}

	if rec.Date == nil {
		return evt, fmt.Errorf("%w: missing date", ErrInvalid)
	}
	date, err := ParseDate(*rec.Date, time.UTC)
	if err != nil {
		return evt, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	evt.Date = date

	if err := evt.Validate(); err != nil {
		return evt, err
	}
	return evt, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
