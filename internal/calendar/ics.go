package calendar

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/pfrederiksen/calendar-events/internal/event"
)

const (
	productID = "-//calendar-events//calendar-events//EN"
	uidDomain = "calendar-events"

	// propColor is the RFC 7986 COLOR property.
	propColor = "COLOR"
	// propTimeLabel carries the free-form time label so an export can be
	// imported again without loss.
	propTimeLabel = "X-CALENDAR-EVENTS-TIME"
)

// now is replaced in tests.
var now = time.Now

// GenerateICS renders a single event as an iCalendar document.
func GenerateICS(evt event.CalendarEvent) (string, error) {
	return GenerateCollectionICS([]event.CalendarEvent{evt})
}

// GenerateCollectionICS renders every event as one VCALENDAR, keeping the
// collection order.
func GenerateCollectionICS(events []event.CalendarEvent) (string, error) {
	// The encoder rejects a VCALENDAR without components, but an empty
	// collection is still a valid feed.
	if len(events) == 0 {
		return emptyCalendar(), nil
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText(ical.PropCalendarScale, "GREGORIAN")
	cal.Props.SetText(ical.PropMethod, "PUBLISH")

	stamp := now().UTC()
	for _, evt := range events {
		cal.Children = append(cal.Children, toVEvent(evt, stamp).Component)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return "", fmt.Errorf("encoding calendar: %w", err)
	}
	return buf.String(), nil
}

func emptyCalendar() string {
	var ics strings.Builder
	ics.WriteString("BEGIN:VCALENDAR\r\n")
	ics.WriteString("VERSION:2.0\r\n")
	ics.WriteString("PRODID:" + productID + "\r\n")
	ics.WriteString("CALSCALE:GREGORIAN\r\n")
	ics.WriteString("METHOD:PUBLISH\r\n")
	ics.WriteString("END:VCALENDAR\r\n")
	return ics.String()
}

// setPlainText sets a text property without the VALUE=TEXT parameter that
// Props.SetText adds to properties it has no default type for.
func setPlainText(props ical.Props, name, text string) {
	prop := ical.NewProp(name)
	prop.SetText(text)
	delete(prop.Params, ical.ParamValue)
	props.Set(prop)
}

func toVEvent(evt event.CalendarEvent, stamp time.Time) *ical.Event {
	vevent := ical.NewEvent()
	vevent.Props.SetText(ical.PropUID, fmt.Sprintf("%s@%s", evt.ID, uidDomain))
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
	vevent.Props.SetText(ical.PropSummary, evt.Name)

	if evt.IsAllDay() {
		vevent.Props.SetDate(ical.PropDateTimeStart, evt.Date)
		vevent.Props.SetDate(ical.PropDateTimeEnd, evt.Date.AddDate(0, 0, 1))
	} else {
		vevent.Props.SetDateTime(ical.PropDateTimeStart, evt.Date.UTC())
	}

	if desc := description(evt); desc != "" {
		vevent.Props.SetText(ical.PropDescription, desc)
	}
	if evt.Time != "" {
		setPlainText(vevent.Props, propTimeLabel, evt.Time)
	}
	setPlainText(vevent.Props, propColor, evt.Color)
	vevent.Props.SetText(ical.PropTransparency, "OPAQUE")

	return vevent
}

func description(evt event.CalendarEvent) string {
	var parts []string
	if evt.Time != "" {
		parts = append(parts, "Time: "+evt.Time)
	}
	if evt.Notes != "" {
		parts = append(parts, evt.Notes)
	}
	return strings.Join(parts, "\n\n")
}

// ParseICS reads every VEVENT from an iCalendar stream and returns drafts
// ready to be added to a store. Events without a summary or start are
// skipped. Floating and all-day times are read in loc.
func ParseICS(r io.Reader, loc *time.Location) ([]event.Draft, error) {
	if loc == nil {
		loc = time.UTC
	}

	var drafts []event.Draft
	dec := ical.NewDecoder(r)
	for {
		cal, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing calendar: %w", err)
		}

		for _, ve := range cal.Events() {
			d, ok := fromVEvent(ve, loc)
			if ok {
				drafts = append(drafts, d)
			}
		}
	}
	return drafts, nil
}

func fromVEvent(ve ical.Event, loc *time.Location) (event.Draft, bool) {
	var d event.Draft

	summary, err := ve.Props.Text(ical.PropSummary)
	if err != nil || strings.TrimSpace(summary) == "" {
		return d, false
	}
	start, err := ve.DateTimeStart(loc)
	if err != nil || start.IsZero() {
		return d, false
	}

	d.Name = summary
	d.Date = start
	d.Color = "blue"
	if p := ve.Props.Get(propColor); p != nil && p.Value != "" {
		d.Color = p.Value
	}
	if label, err := ve.Props.Text(propTimeLabel); err == nil {
		d.Time = label
	}
	if desc, err := ve.Props.Text(ical.PropDescription); err == nil {
		d.Notes = stripTimeLabel(desc, d.Time)
	}
	return d, true
}

// stripTimeLabel removes the "Time: ..." prefix written by description.
func stripTimeLabel(desc, label string) string {
	if label == "" {
		return desc
	}
	prefix := "Time: " + label
	desc = strings.TrimPrefix(desc, prefix)
	return strings.TrimLeft(desc, "\n")
}
