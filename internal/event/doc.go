// Package event defines the calendar event record shared by the store, its
// backing stores and every consumer.
//
// Events are created from a Draft and receive a random UUID. Updates are
// expressed as a Patch whose nil fields are left untouched. The collection is
// serialized as a JSON array; DecodeCollection validates each stored record
// at the storage boundary instead of trusting its shape.
package event
