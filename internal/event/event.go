package event

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalid is returned when an event is missing a required field.
var ErrInvalid = errors.New("invalid event")

// CalendarEvent represents a single calendar entry
type CalendarEvent struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Date  time.Time `json:"date"`
	Time  string    `json:"time,omitempty"` // Free-form label, e.g. "9:00 AM"
	Color string    `json:"color"`
	Notes string    `json:"notes,omitempty"`
}

// Draft holds every CalendarEvent field except the ID. It is the input
// used when creating an event.
type Draft struct {
	Name  string    `json:"name"`
	Date  time.Time `json:"date"`
	Time  string    `json:"time,omitempty"`
	Color string    `json:"color"`
	Notes string    `json:"notes,omitempty"`
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Name  *string    `json:"name,omitempty"`
	Date  *time.Time `json:"date,omitempty"`
	Time  *string    `json:"time,omitempty"`
	Color *string    `json:"color,omitempty"`
	Notes *string    `json:"notes,omitempty"`
}

// NewID generates a random identifier for a new event
func NewID() string {
	return uuid.NewString()
}

// New creates a CalendarEvent from a draft and assigns it a fresh ID
func New(d Draft) CalendarEvent {
	return CalendarEvent{
		ID:    NewID(),
		Name:  d.Name,
		Date:  d.Date,
		Time:  d.Time,
		Color: d.Color,
		Notes: d.Notes,
	}
}

// Validate checks that the draft carries every required field
func (d Draft) Validate() error {
	var missing []string
	if strings.TrimSpace(d.Name) == "" {
		missing = append(missing, "name")
	}
	if d.Date.IsZero() {
		missing = append(missing, "date")
	}
	if strings.TrimSpace(d.Color) == "" {
		missing = append(missing, "color")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalid, strings.Join(missing, ", "))
	}
	return nil
}

// Validate checks that the event carries an ID and every required field
func (e CalendarEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalid)
	}
	return e.Draft().Validate()
}

// Draft returns the event without its ID
func (e CalendarEvent) Draft() Draft {
	return Draft{
		Name:  e.Name,
		Date:  e.Date,
		Time:  e.Time,
		Color: e.Color,
		Notes: e.Notes,
	}
}

// Empty reports whether the patch changes nothing
func (p Patch) Empty() bool {
	return p.Name == nil && p.Date == nil && p.Time == nil && p.Color == nil && p.Notes == nil
}

// Apply returns a copy of e with the patch fields replaced. The ID is never touched.
func (p Patch) Apply(e CalendarEvent) CalendarEvent {
	if p.Name != nil {
		e.Name = *p.Name
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.Time != nil {
		e.Time = *p.Time
	}
	if p.Color != nil {
		e.Color = *p.Color
	}
	if p.Notes != nil {
		e.Notes = *p.Notes
	}
	return e
}

// IsAllDay reports whether the event has no time label and starts at midnight
func (e CalendarEvent) IsAllDay() bool {
	if e.Time != "" {
		return false
	}
	h, m, s := e.Date.Clock()
	return h == 0 && m == 0 && s == 0
}
