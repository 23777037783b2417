package vcache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// Store is a hash-validated cache of named objects backed by a Backend.
//
// Entries exist only because a fetch for their name succeeded and nothing
// has deleted them since. The store is safe for concurrent use; the
// validate-or-fetch sequence is atomic per name, so two concurrent Get
// calls for the same name cannot lose an update.
type Store[N comparable, O any, H comparable] struct {
	backend     Backend[N, O, H]
	events      *notifier[N, O, H]
	logger      *slog.Logger
	concurrency int

	mu      sync.RWMutex
	objects map[N]O
	closed  bool

	locksMu sync.Mutex
	locks   map[N]*sync.Mutex
}

// fetchResult carries one settled fan-out fetch; failed fetches stay
// zero-valued and are dropped from the refresh result.
type fetchResult[O any] struct {
	obj O
	ok  bool
}

// New creates a store over the given backend. The store owns its
// notification channel; Close tears it down.
func New[N comparable, O any, H comparable](backend Backend[N, O, H], opts ...Option) *Store[N, O, H] {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	return &Store[N, O, H]{
		backend:     backend,
		events:      newNotifier[N, O, H](options.Logger),
		logger:      options.Logger,
		concurrency: options.Concurrency,
		objects:     make(map[N]O),
		locks:       make(map[N]*sync.Mutex),
	}
}

// Get returns a current object for name, revalidating any cached copy.
//
// A cached entry is returned as-is when the remote and local fingerprints
// both resolve and match. A fingerprint failure on either side downgrades
// that hash to unknown and forces the refetch path; it never fails the
// call. A failed refetch evicts any stale entry and propagates, since the
// remote object may no longer exist.
func (s *Store[N, O, H]) Get(ctx context.Context, name N) (O, error) {
	var zero O
	if s.isClosed() {
		return zero, ErrClosed
	}

	unlock := s.lockName(name)
	defer unlock()

	cached, exists := s.Lookup(name)
	if exists {
		remoteHash, remoteOK := s.remoteHash(ctx, name)
		localHash, localOK := s.localHash(cached)

		if remoteOK && localOK && remoteHash == localHash {
			s.events.publish(Event[N, O, H]{Kind: EventCacheHit, Name: name, Hash: remoteHash})
			return cached, nil
		}

		s.events.publish(Event[N, O, H]{
			Kind:      EventCacheMiss,
			Name:      name,
			OldHash:   localHash,
			OldHashOK: localOK,
			NewHash:   remoteHash,
			NewHashOK: remoteOK,
		})
	}

	obj, err := s.backend.Fetch(ctx, name)
	if err != nil {
		if exists {
			s.remove(name)
		}
		s.events.publish(Event[N, O, H]{Kind: EventFetchError, Name: name, Err: err})
		return zero, fmt.Errorf("fetch %v: %w", name, err)
	}

	s.mu.Lock()
	s.objects[name] = obj
	s.mu.Unlock()

	if exists {
		s.events.publish(Event[N, O, H]{Kind: EventUpdate, Name: name, OldObject: cached, Object: obj})
	} else {
		s.events.publish(Event[N, O, H]{Kind: EventAdd, Name: name, Object: obj})
	}
	return obj, nil
}

// GetAll refreshes the cache against the backend's authoritative name list
// and returns every object it could resolve.
//
// A name-list failure propagates with the cache untouched. Otherwise cached
// entries the list no longer mentions are pruned, then every listed name is
// validated-or-fetched concurrently; individual failures are swallowed and
// the name is simply excluded from the result. Result order is unspecified.
func (s *Store[N, O, H]) GetAll(ctx context.Context) ([]O, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	names, err := s.backend.List(ctx)
	if err != nil {
		s.events.publish(Event[N, O, H]{Kind: EventListError, Err: err})
		return nil, fmt.Errorf("list names: %w", err)
	}

	listed := make(map[N]struct{}, len(names))
	for _, name := range names {
		listed[name] = struct{}{}
	}
	s.prune(listed)

	p := pool.NewWithResults[fetchResult[O]]()
	if s.concurrency > 0 {
		p = p.WithMaxGoroutines(s.concurrency)
	}
	for _, name := range names {
		p.Go(func() fetchResult[O] {
			obj, err := s.Get(ctx, name)
			if err != nil {
				s.logger.Debug("refresh skipped name", "name", fmt.Sprint(name), "error", err)
				return fetchResult[O]{}
			}
			return fetchResult[O]{obj: obj, ok: true}
		})
	}

	var objs []O
	for _, r := range p.Wait() {
		if r.ok {
			objs = append(objs, r.obj)
		}
	}
	return objs, nil
}

// Lookup returns the cached entry for a name without touching the backend.
func (s *Store[N, O, H]) Lookup(name N) (O, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[name]
	return obj, ok
}

// Snapshot returns the currently cached objects without touching the
// backend. Order is unspecified.
func (s *Store[N, O, H]) Snapshot() []O {
	s.mu.RLock()
	defer s.mu.RUnlock()
	objs := make([]O, 0, len(s.objects))
	for _, obj := range s.objects {
		objs = append(objs, obj)
	}
	return objs
}

// Len returns the number of cached entries.
func (s *Store[N, O, H]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Delete removes the cache entry for a name if present and reports whether
// a removal happened. It never contacts the backend.
func (s *Store[N, O, H]) Delete(name N) bool {
	return s.remove(name)
}

// DeleteFunc removes every entry the predicate matches and returns the
// number removed. A nil predicate matches everything. Each removal emits
// its own delete event.
func (s *Store[N, O, H]) DeleteFunc(pred func(name N, obj O) bool) int {
	s.mu.Lock()
	var victims []N
	for name, obj := range s.objects {
		if pred == nil || pred(name, obj) {
			victims = append(victims, name)
			delete(s.objects, name)
		}
	}
	s.mu.Unlock()

	for _, name := range victims {
		s.events.publish(Event[N, O, H]{Kind: EventDelete, Name: name})
	}
	return len(victims)
}

// Subscribe registers a persistent handler for one event kind. The
// returned func cancels the subscription.
func (s *Store[N, O, H]) Subscribe(kind EventKind, fn Handler[N, O, H]) func() {
	return s.events.subscribe(kind, fn, false)
}

// SubscribeOnce registers a handler delivered at most once. The returned
// func cancels it early.
func (s *Store[N, O, H]) SubscribeOnce(kind EventKind, fn Handler[N, O, H]) func() {
	return s.events.subscribe(kind, fn, true)
}

// Flush blocks until every event published so far has been delivered.
func (s *Store[N, O, H]) Flush() {
	s.events.flush()
}

// Close tears down the notification channel after draining it. The cache
// itself remains readable through Lookup and Snapshot; Get and GetAll fail
// with ErrClosed.
func (s *Store[N, O, H]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.events.close()
	return nil
}

// remoteHash resolves the backend fingerprint for a name, downgrading any
// failure to "unknown".
func (s *Store[N, O, H]) remoteHash(ctx context.Context, name N) (H, bool) {
	hash, ok, err := s.backend.Hash(ctx, name)
	if err != nil {
		s.events.publish(Event[N, O, H]{Kind: EventHashError, Name: name, Err: err})
		s.logger.Debug("remote hash unavailable", "name", fmt.Sprint(name), "error", err)
		var zero H
		return zero, false
	}
	return hash, ok
}

// localHash resolves the fingerprint of a held object, downgrading any
// failure to "unknown". Not knowing our own hash forces a miss exactly like
// not knowing the remote one.
func (s *Store[N, O, H]) localHash(obj O) (H, bool) {
	hash, ok, err := s.backend.HashOf(obj)
	if err != nil {
		s.events.publish(Event[N, O, H]{Kind: EventLocalHashError, Object: obj, Err: err})
		s.logger.Debug("local hash unavailable", "error", err)
		var zero H
		return zero, false
	}
	return hash, ok
}

// prune drops every cached entry whose name the latest listing no longer
// contains.
func (s *Store[N, O, H]) prune(listed map[N]struct{}) {
	s.mu.Lock()
	var victims []N
	for name := range s.objects {
		if _, ok := listed[name]; !ok {
			victims = append(victims, name)
			delete(s.objects, name)
		}
	}
	s.mu.Unlock()

	for _, name := range victims {
		s.events.publish(Event[N, O, H]{Kind: EventDelete, Name: name})
	}
}

func (s *Store[N, O, H]) remove(name N) bool {
	s.mu.Lock()
	_, ok := s.objects[name]
	if ok {
		delete(s.objects, name)
	}
	s.mu.Unlock()

	if ok {
		s.events.publish(Event[N, O, H]{Kind: EventDelete, Name: name})
	}
	return ok
}

func (s *Store[N, O, H]) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// lockName serializes validate-or-fetch per name.
func (s *Store[N, O, H]) lockName(name N) func() {
	s.locksMu.Lock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	s.locksMu.Unlock()

	l.Lock()
	return l.Unlock
}
