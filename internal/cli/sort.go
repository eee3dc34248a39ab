package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pfrederiksen/calendar-events/internal/event"
)

// SortOrder represents the available sorting options
type SortOrder string

const (
	SortNone    SortOrder = ""
	SortByDate  SortOrder = "date"
	SortByName  SortOrder = "name"
	SortByColor SortOrder = "color"
)

// ParseSortOrder validates a --sort value.
func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case SortNone, SortByDate, SortByName, SortByColor:
		return o, nil
	default:
		return "", fmt.Errorf("invalid sort order: %s (must be 'date', 'name' or 'color')", s)
	}
}

// sortEvents sorts events in place. The store keeps insertion order; sorting
// only affects what is displayed. SortNone leaves the order unchanged.
func sortEvents(events []event.CalendarEvent, sortOrder SortOrder) {
	switch sortOrder {
	case SortByDate:
		sort.SliceStable(events, func(i, j int) bool {
			return compareByDate(events[i], events[j])
		})
	case SortByName:
		sort.SliceStable(events, func(i, j int) bool {
			ni, nj := strings.ToLower(events[i].Name), strings.ToLower(events[j].Name)
			if ni != nj {
				return ni < nj
			}
			// If names are equal, sort by date
			return compareByDate(events[i], events[j])
		})
	case SortByColor:
		sort.SliceStable(events, func(i, j int) bool {
			if events[i].Color != events[j].Color {
				return events[i].Color < events[j].Color
			}
			return compareByDate(events[i], events[j])
		})
	}
}

// compareByDate reports whether i starts before j. Ties are broken by name.
func compareByDate(i, j event.CalendarEvent) bool {
	if !i.Date.Equal(j.Date) {
		return i.Date.Before(j.Date)
	}
	return strings.ToLower(i.Name) < strings.ToLower(j.Name)
}
