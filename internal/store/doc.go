// Package store implements the event store: the single shared source of truth
// for calendar events.
//
// One Store is created at startup and handed to every consumer. It hydrates
// itself once from a kv.Store and, after every Add, Update or Delete,
// serializes the whole collection and overwrites the same key. Update and
// Delete of an unknown id are silent no-ops. A failed write is logged and
// rolled back, so each operation either fully succeeds or leaves the
// collection unchanged. Malformed stored data is dropped and the store starts
// empty; a backend that cannot be read at all (after a few retries) leaves
// the store empty and read-only, so the stored collection is never
// overwritten by one that did not see it.
//
// Consumers that must not mutate state get a View, whose reads always reflect
// the current collection.
package store
