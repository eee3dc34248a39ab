package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pfrederiksen/calendar-events/internal/event"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// Group is a run of events sharing a day, week or month.
type Group struct {
	Label  string                `json:"label"`
	Start  time.Time             `json:"start"`
	Events []event.CalendarEvent `json:"events"`
}

// OutputResult contains data to be output
type OutputResult struct {
	GeneratedAt time.Time             `json:"generated_at"`
	View        event.ViewType        `json:"view"`
	EventCount  int                   `json:"event_count"`
	Events      []event.CalendarEvent `json:"events"`
	Groups      []Group               `json:"groups,omitempty"`
}

// NewOutputResult builds the result for events as shown in view. Events are
// expected to be sorted already; agenda view is ungrouped.
func NewOutputResult(events []event.CalendarEvent, view event.ViewType, loc *time.Location) *OutputResult {
	if events == nil {
		events = []event.CalendarEvent{}
	}
	result := &OutputResult{
		GeneratedAt: time.Now().UTC(),
		View:        view,
		EventCount:  len(events),
		Events:      events,
	}
	if view != event.ViewAgenda {
		result.Groups = groupEvents(events, view, loc)
	}
	return result
}

// periodStart returns the start of the day, week (Monday) or month holding t.
func periodStart(t time.Time, view event.ViewType, loc *time.Location) time.Time {
	t = t.In(loc)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	switch view {
	case event.ViewWeek:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case event.ViewMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	default:
		return day
	}
}

func periodLabel(start time.Time, view event.ViewType) string {
	switch view {
	case event.ViewWeek:
		return "Week of " + start.Format("Mon Jan 2 2006")
	case event.ViewMonth:
		return start.Format("January 2006")
	default:
		return start.Format("Mon Jan 2 2006")
	}
}

// groupEvents buckets events by period, keeping groups in order of first
// appearance.
func groupEvents(events []event.CalendarEvent, view event.ViewType, loc *time.Location) []Group {
	var groups []Group
	index := make(map[int64]int)
	for _, evt := range events {
		start := periodStart(evt.Date, view, loc)
		i, ok := index[start.Unix()]
		if !ok {
			i = len(groups)
			index[start.Unix()] = i
			groups = append(groups, Group{Label: periodLabel(start, view), Start: start})
		}
		groups[i].Events = append(groups[i].Events, evt)
	}
	return groups
}

// WriteOutput writes the result in the specified format
func WriteOutput(w io.Writer, result *OutputResult, format OutputFormat, loc *time.Location, verbose bool) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, result)
	case FormatText:
		return writeText(w, result, loc, verbose)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// writeJSON outputs results as JSON
func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// writeText outputs results as human-readable text
func writeText(w io.Writer, result *OutputResult, loc *time.Location, verbose bool) error {
	if result.EventCount == 0 {
		fmt.Fprintln(w, "No events found.")
		return nil
	}

	if len(result.Groups) > 0 {
		for _, g := range result.Groups {
			fmt.Fprintf(w, "\n%s (%d):\n", g.Label, len(g.Events))
			for _, evt := range g.Events {
				writeEventLine(w, "  ", evt, loc, verbose)
			}
		}
		fmt.Fprintf(w, "\nTotal: %d events\n", result.EventCount)
		return nil
	}

	for _, evt := range result.Events {
		writeEventLine(w, "", evt, loc, verbose)
	}
	fmt.Fprintf(w, "\nTotal: %d events\n", result.EventCount)
	return nil
}

func writeEventLine(w io.Writer, indent string, evt event.CalendarEvent, loc *time.Location, verbose bool) {
	when := formatWhen(evt, loc)
	fmt.Fprintf(w, "%s%s  %s [%s]\n", indent, when, evt.Name, evt.Color)
	fmt.Fprintf(w, "%s     ID: %s\n", indent, evt.ID)
	if verbose && evt.Notes != "" {
		fmt.Fprintf(w, "%s     Notes: %s\n", indent, evt.Notes)
	}
}

// formatWhen renders the date, then the time label if set, else the clock
// time for events that are not all-day.
func formatWhen(evt event.CalendarEvent, loc *time.Location) string {
	d := evt.Date.In(loc)
	switch {
	case evt.Time != "":
		return d.Format("2006-01-02") + " " + evt.Time
	case evt.IsAllDay():
		return d.Format("2006-01-02")
	default:
		return d.Format("2006-01-02 15:04")
	}
}
