package vcache

import "context"

// Backend resolves names to fingerprints and objects. It is the only
// capability the store needs from the outside world.
//
// The three type parameters are fixed by the backend implementation:
// N identifies a cacheable object, O is the cached value, and H is a cheap
// fingerprint used to decide whether the cached copy is still current.
//
// A backend makes no ordering or idempotence promises beyond returning a
// consistent hash for a consistent remote state. Returning ok=false from
// Hash or HashOf is always legal and degrades the store to refetching.
type Backend[N comparable, O any, H comparable] interface {
	// List returns the authoritative set of names that currently exist.
	List(ctx context.Context) ([]N, error)

	// Fetch performs the full fetch of the named object.
	Fetch(ctx context.Context, name N) (O, error)

	// Hash returns the current remote fingerprint for a name.
	// ok is false when the fingerprint is unknown or unsupported.
	Hash(ctx context.Context, name N) (hash H, ok bool, err error)

	// HashOf extracts the fingerprint of an already-held object.
	HashOf(obj O) (hash H, ok bool, err error)
}

// Funcs adapts plain functions to a Backend. Nil hash functions report the
// fingerprint as unknown; a nil ListFunc or FetchFunc fails with
// ErrUnsupported.
type Funcs[N comparable, O any, H comparable] struct {
	ListFunc   func(ctx context.Context) ([]N, error)
	FetchFunc  func(ctx context.Context, name N) (O, error)
	HashFunc   func(ctx context.Context, name N) (H, bool, error)
	HashOfFunc func(obj O) (H, bool, error)
}

func (f Funcs[N, O, H]) List(ctx context.Context) ([]N, error) {
	if f.ListFunc == nil {
		return nil, ErrUnsupported
	}
	return f.ListFunc(ctx)
}

func (f Funcs[N, O, H]) Fetch(ctx context.Context, name N) (O, error) {
	if f.FetchFunc == nil {
		var zero O
		return zero, ErrUnsupported
	}
	return f.FetchFunc(ctx, name)
}

func (f Funcs[N, O, H]) Hash(ctx context.Context, name N) (H, bool, error) {
	if f.HashFunc == nil {
		var zero H
		return zero, false, nil
	}
	return f.HashFunc(ctx, name)
}

func (f Funcs[N, O, H]) HashOf(obj O) (H, bool, error) {
	if f.HashOfFunc == nil {
		var zero H
		return zero, false, nil
	}
	return f.HashOfFunc(obj)
}
