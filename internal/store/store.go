package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pfrederiksen/calendar-events/internal/config"
	"github.com/pfrederiksen/calendar-events/internal/event"
	"github.com/pfrederiksen/calendar-events/internal/kv"
	"github.com/pfrederiksen/calendar-events/internal/logger"
)

// ErrPersist wraps every failure to write the collection to the backing store.
// When it is returned the in-memory collection has been rolled back.
var ErrPersist = errors.New("persisting events failed")

// ErrUnavailable is returned by every mutation of a store whose backend
// could not be read at startup. Writing would replace the stored collection
// with one that never saw it.
var ErrUnavailable = errors.New("stored events could not be read")

const (
	defaultReadRetries  = 3
	defaultReadInterval = 200 * time.Millisecond
)

// Store owns the authoritative list of calendar events and mirrors every
// mutation to a single key of a kv.Store.
type Store struct {
	backend kv.Store
	key     string
	log     *logger.Logger
	metrics *logger.Metrics

	readRetries  int
	readInterval time.Duration

	mu      sync.RWMutex
	events  []event.CalendarEvent
	loadErr error

	subMu   sync.Mutex
	subs    map[int]func([]event.CalendarEvent)
	nextSub int
}

// Option configures a Store.
type Option func(*Store)

// WithKey overrides the storage key (default "calendar-events").
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithMetrics sets the metrics tracker.
func WithMetrics(m *logger.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithReadRetry sets how often, and starting at which interval, a failed
// backend read is retried during hydration.
func WithReadRetry(retries int, interval time.Duration) Option {
	if retries < 0 {
		retries = 0
	}
	return func(s *Store) {
		s.readRetries = retries
		s.readInterval = interval
	}
}

// New creates the store and hydrates it from backend. Missing or malformed
// data leaves the store empty. When the backend itself cannot be read the
// store also starts empty but refuses mutations; see Err.
func New(ctx context.Context, backend kv.Store, opts ...Option) *Store {
	s := &Store{
		backend:      backend,
		key:          config.DefaultKey,
		log:          logger.Default(),
		metrics:      logger.DefaultMetrics(),
		readRetries:  defaultReadRetries,
		readInterval: defaultReadInterval,
		events:       []event.CalendarEvent{},
		subs:         make(map[int]func([]event.CalendarEvent)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Fields{"component": "store", "key": s.key})

	s.hydrate(ctx)
	return s
}

// Err reports why the backend could not be read at startup, or nil.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unavailableLocked()
}

func (s *Store) unavailableLocked() error {
	if s.loadErr == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, s.loadErr)
}

// read fetches the stored collection, retrying backend errors with
// exponential backoff.
func (s *Store) read(ctx context.Context) (string, bool, error) {
	var (
		raw string
		ok  bool
	)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.readInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.readRetries)), ctx)

	err := backoff.RetryNotify(func() error {
		var err error
		raw, ok, err = s.backend.Get(ctx, s.key)
		return err
	}, policy, func(err error, wait time.Duration) {
		s.log.Warn("reading stored events failed, retrying", logger.Fields{"error": err.Error(), "retry_in": wait.String()})
	})
	return raw, ok, err
}

func (s *Store) hydrate(ctx context.Context) {
	raw, ok, err := s.read(ctx)
	if err != nil {
		s.loadErr = err
		s.log.Error("stored events unreadable, refusing changes", nil, err)
		s.metrics.IncrCounter("store.hydrate.failed")
		return
	}
	if !ok {
		s.log.Debug("no stored events", nil)
		return
	}

	events, rejected, err := event.DecodeCollection([]byte(raw))
	if err != nil {
		s.log.Warn("stored events malformed, starting empty", logger.Fields{"error": err.Error()})
		s.metrics.IncrCounter("store.hydrate.failed")
		return
	}
	for _, r := range rejected {
		s.log.Warn("dropping invalid stored event", logger.Fields{"index": r.Index, "id": r.ID, "error": r.Err.Error()})
		s.metrics.IncrCounter("store.hydrate.rejected")
	}

	s.events = events
	s.metrics.SetGauge("store.events", float64(len(events)))
	s.log.Debug("hydrated events", logger.Fields{"count": len(events), "rejected": len(rejected)})
}

// persist writes the full collection. Callers hold s.mu.
func (s *Store) persist(ctx context.Context) error {
	start := time.Now()
	defer func() { s.metrics.RecordTiming("store.persist", time.Since(start)) }()

	data, err := event.EncodeCollection(s.events)
	if err == nil {
		err = s.backend.Set(ctx, s.key, string(data))
	}
	if err != nil {
		s.metrics.IncrCounter("store.persist_errors")
		s.log.Error("persisting events failed", logger.Fields{"count": len(s.events)}, err)
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	s.metrics.SetGauge("store.events", float64(len(s.events)))
	return nil
}

// commit replaces the collection with next and persists it. On failure the
// previous collection is restored.
func (s *Store) commit(ctx context.Context, next []event.CalendarEvent) error {
	prev := s.events
	s.events = next
	if err := s.persist(ctx); err != nil {
		s.events = prev
		return err
	}
	return nil
}

// Add stores a new event with a generated ID and returns it.
func (s *Store) Add(ctx context.Context, d event.Draft) (event.CalendarEvent, error) {
	if err := d.Validate(); err != nil {
		return event.CalendarEvent{}, err
	}
	evt := event.New(d)

	s.mu.Lock()
	if err := s.unavailableLocked(); err != nil {
		s.mu.Unlock()
		return event.CalendarEvent{}, err
	}
	next := make([]event.CalendarEvent, len(s.events), len(s.events)+1)
	copy(next, s.events)
	next = append(next, evt)
	err := s.commit(ctx, next)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err != nil {
		return event.CalendarEvent{}, err
	}

	s.metrics.IncrCounter("store.add")
	s.log.Debug("event added", logger.Fields{"id": evt.ID})
	s.notify(snap)
	return evt, nil
}

// Update merges p into the event with the given id. An unknown id is a no-op
// and returns nil.
func (s *Store) Update(ctx context.Context, id string, p event.Patch) error {
	s.mu.Lock()
	if err := s.unavailableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		s.log.Debug("update of unknown event ignored", logger.Fields{"id": id})
		return nil
	}

	updated := p.Apply(s.events[idx])
	if err := updated.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}

	next := make([]event.CalendarEvent, len(s.events))
	copy(next, s.events)
	next[idx] = updated
	err := s.commit(ctx, next)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err != nil {
		return err
	}

	s.metrics.IncrCounter("store.update")
	s.log.Debug("event updated", logger.Fields{"id": id})
	s.notify(snap)
	return nil
}

// Delete removes the event with the given id if present. The collection is
// persisted either way.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if err := s.unavailableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	next := make([]event.CalendarEvent, 0, len(s.events))
	for _, e := range s.events {
		if e.ID != id {
			next = append(next, e)
		}
	}
	removed := len(next) != len(s.events)
	err := s.commit(ctx, next)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err != nil {
		return err
	}

	if removed {
		s.metrics.IncrCounter("store.delete")
		s.log.Debug("event deleted", logger.Fields{"id": id})
		s.notify(snap)
	}
	return nil
}

// List returns a copy of all events in insertion order.
func (s *Store) List() []event.CalendarEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Get returns the event with the given id.
func (s *Store) Get(id string) (event.CalendarEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.indexLocked(id); idx >= 0 {
		return s.events[idx], true
	}
	return event.CalendarEvent{}, false
}

// Len returns the number of events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func (s *Store) indexLocked(id string) int {
	for i, e := range s.events {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() []event.CalendarEvent {
	out := make([]event.CalendarEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Subscribe registers fn to receive a fresh copy of the collection after
// every successful change. The returned function unregisters it.
// With concurrent writers, callbacks for different changes may interleave;
// List always returns the current state.
func (s *Store) Subscribe(fn func([]event.CalendarEvent)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// notify runs outside s.mu so subscribers may call back into the store.
func (s *Store) notify(snap []event.CalendarEvent) {
	s.subMu.Lock()
	fns := make([]func([]event.CalendarEvent), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		cp := make([]event.CalendarEvent, len(snap))
		copy(cp, snap)
		fn(cp)
	}
}
