package event

import (
	"fmt"
	"strings"
)

// ViewType selects how a calendar UI lays out events
type ViewType string

const (
	ViewMonth  ViewType = "month"
	ViewWeek   ViewType = "week"
	ViewDay    ViewType = "day"
	ViewAgenda ViewType = "agenda"
)

// ParseViewType normalizes s into a ViewType.
func ParseViewType(s string) (ViewType, error) {
	v := ViewType(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case ViewMonth, ViewWeek, ViewDay, ViewAgenda:
		return v, nil
	case "":
		return ViewAgenda, nil
	}
	return "", fmt.Errorf("invalid view: %s (must be month, week, day or agenda)", s)
}
