// Package statestore layers typed, codec-aware record access over the
// raw pkg/storage.Store: pending tasks and worker/actor liveness
// records, each a thin wrapper translating storage.PutResult into the
// domain-level outcomes callers reason about.
package statestore

import (
	"context"
	"fmt"
	"strings"

	"github.com/defvar/toy/pkg/codec"
	"github.com/defvar/toy/pkg/storage"
	"github.com/defvar/toy/pkg/types"
)

// Outcome is the domain-level result of a write, independent of the
// underlying storage.PutOutcome wire representation.
type Outcome int

const (
	Created Outcome = iota
	Updated
	Conflict
	NotFound
)

const pendingPrefix = "pendings/"

// PendingTasks is a typed view over the pending-task records living
// under the pendings/ key prefix.
type PendingTasks struct {
	store storage.Store
	codec codec.Codec
}

// NewPendingTasks builds a PendingTasks wrapper over store, encoding
// records with c.
func NewPendingTasks(store storage.Store, c codec.Codec) PendingTasks {
	return PendingTasks{store: store, codec: c}
}

func pendingKey(id types.TaskID) string {
	return pendingPrefix + id.String()
}

// Get fetches one pending task by id.
func (p PendingTasks) Get(ctx context.Context, id types.TaskID) (types.PendingTask, uint64, bool, error) {
	raw, version, found, err := p.store.Get(ctx, pendingKey(id))
	if err != nil || !found {
		return types.PendingTask{}, 0, found, err
	}
	var pt types.PendingTask
	if err := p.codec.Decode(raw, &pt); err != nil {
		return types.PendingTask{}, 0, false, fmt.Errorf("decode pending task %s: %w", id, err)
	}
	pt.Version = version
	return pt, version, true, nil
}

// List returns every pending task currently stored, in no particular
// order.
func (p PendingTasks) List(ctx context.Context) ([]types.PendingTask, error) {
	entries, err := p.store.List(ctx, pendingPrefix)
	if err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}
	out := make([]types.PendingTask, 0, len(entries))
	for _, e := range entries {
		var pt types.PendingTask
		if err := p.codec.Decode(e.Value, &pt); err != nil {
			return nil, fmt.Errorf("decode pending task %q: %w", e.Key, err)
		}
		pt.Version = e.Version
		out = append(out, pt)
	}
	return out, nil
}

// Create inserts a brand-new pending task, failing if one already
// exists for its TaskID.
func (p PendingTasks) Create(ctx context.Context, pt types.PendingTask) (Outcome, error) {
	data, err := p.codec.Encode(pt)
	if err != nil {
		return 0, fmt.Errorf("encode pending task %s: %w", pt.TaskID, err)
	}
	result, err := p.store.Put(ctx, pendingKey(pt.TaskID), data, storage.PutOptions{Mode: storage.CreateOnly})
	if err != nil {
		return 0, err
	}
	return fromPutOutcome(result.Outcome), nil
}

// CompareAndSwap writes pt only if the stored version still matches
// expectedVersion.
func (p PendingTasks) CompareAndSwap(ctx context.Context, pt types.PendingTask, expectedVersion uint64) (Outcome, error) {
	data, err := p.codec.Encode(pt)
	if err != nil {
		return 0, fmt.Errorf("encode pending task %s: %w", pt.TaskID, err)
	}
	result, err := p.store.Put(ctx, pendingKey(pt.TaskID), data, storage.PutOptions{
		Mode:            storage.UpdateOnly,
		ExpectedVersion: expectedVersion,
	})
	if err != nil {
		return 0, err
	}
	return fromPutOutcome(result.Outcome), nil
}

// Delete removes a pending task record, reporting whether it existed.
func (p PendingTasks) Delete(ctx context.Context, id types.TaskID) (Outcome, error) {
	result, err := p.store.Delete(ctx, pendingKey(id))
	if err != nil {
		return 0, err
	}
	if result == storage.Deleted {
		return Updated, nil
	}
	return NotFound, nil
}

// Workers is a typed view over worker/actor liveness records living
// under a prefix ("supervisors/" or "actors/", see pkg/reaper).
type Workers struct {
	store  storage.Store
	codec  codec.Codec
	prefix string
}

// NewWorkers builds a Workers wrapper rooted at prefix, appending a
// trailing "/" if prefix lacks one.
func NewWorkers(store storage.Store, c codec.Codec, prefix string) Workers {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return Workers{store: store, codec: c, prefix: prefix}
}

func (w Workers) key(name string) string { return w.prefix + name }

// Get fetches one worker record by name.
func (w Workers) Get(ctx context.Context, name string) (types.Worker, uint64, bool, error) {
	raw, version, found, err := w.store.Get(ctx, w.key(name))
	if err != nil || !found {
		return types.Worker{}, 0, found, err
	}
	var rec types.Worker
	if err := w.codec.Decode(raw, &rec); err != nil {
		return types.Worker{}, 0, false, fmt.Errorf("decode worker %q: %w", name, err)
	}
	return rec, version, true, nil
}

// List returns every worker record under this prefix.
func (w Workers) List(ctx context.Context) ([]types.Worker, []uint64, error) {
	entries, err := w.store.List(ctx, w.prefix)
	if err != nil {
		return nil, nil, fmt.Errorf("list workers under %q: %w", w.prefix, err)
	}
	recs := make([]types.Worker, 0, len(entries))
	versions := make([]uint64, 0, len(entries))
	for _, e := range entries {
		var rec types.Worker
		if err := w.codec.Decode(e.Value, &rec); err != nil {
			return nil, nil, fmt.Errorf("decode worker %q: %w", e.Key, err)
		}
		recs = append(recs, rec)
		versions = append(versions, e.Version)
	}
	return recs, versions, nil
}

// Upsert registers or heartbeats a worker: Fill mode, blind overwrite.
func (w Workers) Upsert(ctx context.Context, rec types.Worker) (Outcome, error) {
	data, err := w.codec.Encode(rec)
	if err != nil {
		return 0, fmt.Errorf("encode worker %q: %w", rec.Name, err)
	}
	_, _, found, getErr := w.store.Get(ctx, w.key(rec.Name))
	if getErr != nil {
		return 0, getErr
	}
	result, err := w.store.Put(ctx, w.key(rec.Name), data, storage.PutOptions{Mode: storage.Fill})
	if err != nil {
		return 0, err
	}
	_ = result
	if found {
		return Updated, nil
	}
	return Created, nil
}

// CompareAndSwap writes rec only if the stored version still matches
// expectedVersion, used by the reaper to avoid clobbering a concurrent
// heartbeat.
func (w Workers) CompareAndSwap(ctx context.Context, rec types.Worker, expectedVersion uint64) (Outcome, error) {
	data, err := w.codec.Encode(rec)
	if err != nil {
		return 0, fmt.Errorf("encode worker %q: %w", rec.Name, err)
	}
	result, err := w.store.Put(ctx, w.key(rec.Name), data, storage.PutOptions{
		Mode:            storage.UpdateOnly,
		ExpectedVersion: expectedVersion,
	})
	if err != nil {
		return 0, err
	}
	return fromPutOutcome(result.Outcome), nil
}

func fromPutOutcome(o storage.PutOutcome) Outcome {
	switch o {
	case storage.Created:
		return Created
	case storage.Updated:
		return Updated
	case storage.Conflict:
		return Conflict
	default:
		return NotFound
	}
}
