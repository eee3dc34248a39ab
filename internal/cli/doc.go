// Package cli implements the command-line interface for calendar-events.
//
// The cli package provides the Cobra-based CLI for adding, updating,
// deleting and listing events, exporting and importing iCalendar files and
// serving the HTTP API. Every command opens the configured storage backend,
// hydrates a store from it and closes the backend on exit.
package cli
