// Package storage provides the versioned key-value substrate every other
// component builds on: a linearizable-per-key get/list/put/delete/watch
// interface with optimistic-concurrency writes.
package storage

import "context"

// Entry is one key-value pair returned from a prefix scan.
type Entry struct {
	Key     string
	Value   []byte
	Version uint64
}

// PutOptions selects the concurrency discipline of a Put call.
//
//   - CreateOnly fails with Conflict if the key already exists.
//   - UpdateOnly succeeds only if the current version equals ExpectedVersion
//     (strict CAS).
//   - Fill blindly upserts regardless of current state.
type PutOptions struct {
	Mode            PutMode
	ExpectedVersion uint64
}

// PutMode enumerates the write discipline a Put call requests.
type PutMode int

const (
	CreateOnly PutMode = iota
	UpdateOnly
	Fill
)

// PutOutcome is the kind of result a Put call produced.
type PutOutcome int

const (
	Created PutOutcome = iota
	Updated
	Conflict
	PutNotFound
)

// PutResult is the outcome of a Put call plus the resulting version, when
// the write succeeded.
type PutResult struct {
	Outcome        PutOutcome
	Version        uint64
	CurrentVersion uint64 // populated on Conflict
}

// DeleteResult is the outcome of a Delete call.
type DeleteResult int

const (
	Deleted DeleteResult = iota
	DeleteNotFound
)

// WatchEventKind enumerates the kinds of change a watch stream reports.
type WatchEventKind int

const (
	WatchPut WatchEventKind = iota
	WatchDelete
)

// WatchEvent is one change notification delivered to a Watch subscriber.
type WatchEvent struct {
	Key     string
	Value   []byte
	Version uint64
	Kind    WatchEventKind
}

// Store is the versioned KV interface every component depends on. It is
// the sole storage abstraction in this module: there is no separate
// blind-write interface alongside it.
type Store interface {
	// Get reads a single key. found is false if the key does not exist.
	Get(ctx context.Context, key string) (value []byte, version uint64, found bool, err error)

	// List returns every entry whose key has the given prefix.
	List(ctx context.Context, prefix string) ([]Entry, error)

	// Put writes key under the concurrency discipline named by opts.
	Put(ctx context.Context, key string, value []byte, opts PutOptions) (PutResult, error)

	// Delete removes key, if present.
	Delete(ctx context.Context, key string) (DeleteResult, error)

	// Watch subscribes to Put/Delete notifications for keys matching
	// prefix. The returned cancel function unsubscribes and closes the
	// channel; callers must call it to avoid leaking the subscription.
	Watch(ctx context.Context, prefix string) (events <-chan WatchEvent, cancel func(), err error)

	// Close releases the store's resources.
	Close() error
}
