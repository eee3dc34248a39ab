// Package kv provides the synchronous key-value stores that back the event
// store.
//
// Every backend maps a string key to a single string value. The event store
// only ever uses one key, holding the JSON-serialized collection, and always
// overwrites it in full. Backends:
//
//   - Memory: in-process map, for tests and throwaway sessions
//   - File: one JSON file per key under a data directory
//   - SQLite: a single kv table (modernc.org/sqlite, no cgo)
//   - Redis: plain GET/SET on prefixed keys
//   - Gist: one file per key inside a private GitHub Gist
//
// Encrypted wraps any backend and seals values at rest.
package kv
