// Package vcache provides a hash-validated cache for named objects fetched
// from a remote backend.
//
// The store keeps objects in memory keyed by name and revalidates them with
// cheap fingerprint comparisons before paying for a full fetch. Every state
// transition (hit, miss, add, update, delete, and each failure mode) is
// published on a per-store notification channel that delivers events
// asynchronously, so subscribers never sit on the fetch path.
//
// Basic usage:
//
//	store := vcache.New[string, []byte, string](backend)
//	defer store.Close()
//
//	// Validate-or-fetch a single object
//	obj, err := store.Get(ctx, "config/prod")
//
//	// Refresh everything the backend currently lists
//	objs, err := store.GetAll(ctx)
//
//	// Pure cache access, no backend calls
//	obj, ok := store.Lookup("config/prod")
//	all := store.Snapshot()
//
//	// Invalidate
//	store.Delete("config/prod")
//	store.DeleteFunc(func(name string, _ []byte) bool {
//	    return strings.HasPrefix(name, "config/")
//	})
//
// Observing transitions:
//
//	cancel := store.Subscribe(vcache.EventUpdate, func(ev vcache.Event[string, []byte, string]) {
//	    fmt.Println("updated:", ev.Name)
//	})
//	defer cancel()
//
// Backends implement the four-method Backend interface; vcache.Funcs adapts
// plain functions for tests and ad-hoc sources. A backend that never reports
// hashes degrades the store to always-refetch, which stays correct.
package vcache
