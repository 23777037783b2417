package vcache

// EventKind identifies a cache state transition or a degraded failure mode.
type EventKind string

const (
	// EventAdd fires when a name is cached for the first time.
	// Payload: Name, Object.
	EventAdd EventKind = "add"

	// EventUpdate fires when a cached object is replaced after a miss.
	// Payload: Name, OldObject, Object.
	EventUpdate EventKind = "update"

	// EventDelete fires on every removal: explicit deletes, refresh-time
	// pruning, and eviction after a failed refetch. Payload: Name.
	EventDelete EventKind = "delete"

	// EventCacheHit fires when matching fingerprints confirm a cached
	// object as current. Payload: Name, Hash.
	EventCacheHit EventKind = "cache-hit"

	// EventCacheMiss fires when a cached object could not be confirmed
	// current and a refetch begins. Payload: Name, OldHash/OldHashOK
	// (cached copy), NewHash/NewHashOK (remote). Either side may be
	// absent.
	EventCacheMiss EventKind = "cache-miss"

	// EventListError fires when the authoritative name list could not be
	// fetched. Payload: Err.
	EventListError EventKind = "list-error"

	// EventFetchError fires when a full object fetch failed.
	// Payload: Name, Err.
	EventFetchError EventKind = "fetch-error"

	// EventHashError fires when the remote fingerprint for a name could
	// not be fetched. Payload: Name, Err.
	EventHashError EventKind = "hash-error"

	// EventLocalHashError fires when the fingerprint of a held object
	// could not be computed. Payload: Object, Err.
	EventLocalHashError EventKind = "local-hash-error"
)

// Event is an immutable record of a single cache transition. Which fields
// are set depends on Kind; see the kind constants. Events are informational
// only and never affect cache correctness.
type Event[N comparable, O any, H comparable] struct {
	Kind EventKind

	Name      N
	Object    O
	OldObject O

	Hash      H
	OldHash   H
	OldHashOK bool
	NewHash   H
	NewHashOK bool

	Err error
}

// Handler receives delivered events. Handlers run on the store's delivery
// goroutine; a panic inside a handler is recovered and discarded.
type Handler[N comparable, O any, H comparable] func(Event[N, O, H])
