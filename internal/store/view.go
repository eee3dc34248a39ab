package store

import "github.com/pfrederiksen/calendar-events/internal/event"

// View is a read-only handle on a Store. It has no mutating methods and
// every read reflects the store's current state.
type View struct {
	s *Store
}

// View returns a read-only view of the store for UI consumers.
func (s *Store) View() *View {
	return &View{s: s}
}

// Events returns a copy of the current collection.
func (v *View) Events() []event.CalendarEvent {
	return v.s.List()
}

// Get returns the event with the given id.
func (v *View) Get(id string) (event.CalendarEvent, bool) {
	return v.s.Get(id)
}

// Len returns the number of events.
func (v *View) Len() int {
	return v.s.Len()
}

// Subscribe is Store.Subscribe.
func (v *View) Subscribe(fn func([]event.CalendarEvent)) (cancel func()) {
	return v.s.Subscribe(fn)
}
