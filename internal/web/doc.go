// Package web serves the event store over HTTP as a small JSON API, an
// iCalendar feed and a server-sent event stream that pushes the collection
// to browser clients whenever it changes.
package web
