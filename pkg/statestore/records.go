package statestore

import (
	"context"
	"fmt"
	"strings"

	"github.com/defvar/toy/pkg/codec"
	"github.com/defvar/toy/pkg/storage"
)

// Records is a generic named-record CRUD view over pkg/storage, used
// for the simple storage-only entities (graphs, roles, role bindings)
// that need no CAS discipline beyond "last write wins".
type Records[T any] struct {
	store  storage.Store
	codec  codec.Codec
	prefix string
}

// NewRecords builds a Records[T] wrapper rooted at prefix.
func NewRecords[T any](store storage.Store, c codec.Codec, prefix string) Records[T] {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return Records[T]{store: store, codec: c, prefix: prefix}
}

func (r Records[T]) key(name string) string { return r.prefix + name }

// Get fetches one record by name.
func (r Records[T]) Get(ctx context.Context, name string) (T, bool, error) {
	var zero T
	raw, _, found, err := r.store.Get(ctx, r.key(name))
	if err != nil || !found {
		return zero, found, err
	}
	var v T
	if err := r.codec.Decode(raw, &v); err != nil {
		return zero, false, fmt.Errorf("decode record %q: %w", name, err)
	}
	return v, true, nil
}

// List returns every record under this prefix.
func (r Records[T]) List(ctx context.Context) ([]T, error) {
	entries, err := r.store.List(ctx, r.prefix)
	if err != nil {
		return nil, fmt.Errorf("list records under %q: %w", r.prefix, err)
	}
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		var v T
		if err := r.codec.Decode(e.Value, &v); err != nil {
			return nil, fmt.Errorf("decode record %q: %w", e.Key, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Put creates or overwrites the record named name.
func (r Records[T]) Put(ctx context.Context, name string, v T) (Outcome, error) {
	data, err := r.codec.Encode(v)
	if err != nil {
		return 0, fmt.Errorf("encode record %q: %w", name, err)
	}
	result, err := r.store.Put(ctx, r.key(name), data, storage.PutOptions{Mode: storage.Fill})
	if err != nil {
		return 0, err
	}
	return fromPutOutcome(result.Outcome), nil
}

// Delete removes the record named name, reporting whether it existed.
func (r Records[T]) Delete(ctx context.Context, name string) (Outcome, error) {
	result, err := r.store.Delete(ctx, r.key(name))
	if err != nil {
		return 0, err
	}
	if result == storage.Deleted {
		return Updated, nil
	}
	return NotFound, nil
}
