package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"
)

var bucketKV = []byte("kv")

// BoltStore is a Store backed by a single bbolt database file. Every
// entity kind (pendings, supervisors, actors, ...) shares one bucket;
// callers distinguish them by key prefix, so List can prefix-scan across
// kinds uniformly via one cursor walk.
type BoltStore struct {
	db *bolt.DB

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	prefix string
	ch     chan WatchEvent
}

// NewBoltStore opens (creating if necessary) a bbolt database under
// dataDir/toy.db.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "toy.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketKV)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &BoltStore{db: db, subs: make(map[*subscriber]struct{})}, nil
}

// encodeEnvelope prepends an 8-byte big-endian version to value. The payload
// itself is opaque to the store: it is whatever bytes the caller's codec
// already produced, so it must not be re-encoded here.
func encodeEnvelope(version uint64, value []byte) []byte {
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf[:8], version)
	copy(buf[8:], value)
	return buf
}

func decodeEnvelope(raw []byte) (version uint64, value []byte) {
	version = binary.BigEndian.Uint64(raw[:8])
	value = raw[8:]
	return version, value
}

func (s *BoltStore) Get(_ context.Context, key string) ([]byte, uint64, bool, error) {
	var version uint64
	var value []byte
	var found bool

	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketKV).Get([]byte(key))
		if raw == nil {
			return nil
		}
		found = true
		version, value = decodeEnvelope(raw)
		// copy out of the bolt-owned buffer before the transaction ends
		cp := make([]byte, len(value))
		copy(cp, value)
		value = cp
		return nil
	})
	if err != nil {
		return nil, 0, false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, version, found, nil
}

func (s *BoltStore) List(_ context.Context, prefix string) ([]Entry, error) {
	var entries []Entry
	pfx := []byte(prefix)

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketKV).Cursor()
		for k, raw := c.Seek(pfx); k != nil && bytes.HasPrefix(k, pfx); k, raw = c.Next() {
			version, value := decodeEnvelope(raw)
			cp := make([]byte, len(value))
			copy(cp, value)
			entries = append(entries, Entry{Key: string(k), Value: cp, Version: version})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	return entries, nil
}

func (s *BoltStore) Put(_ context.Context, key string, value []byte, opts PutOptions) (PutResult, error) {
	var result PutResult

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)
		existing := b.Get([]byte(key))

		var currentVersion uint64
		exists := existing != nil
		if exists {
			currentVersion, _ = decodeEnvelope(existing)
		}

		switch opts.Mode {
		case CreateOnly:
			if exists {
				result = PutResult{Outcome: Conflict, CurrentVersion: currentVersion}
				return nil
			}
			newVersion := uint64(1)
			if err := b.Put([]byte(key), encodeEnvelope(newVersion, value)); err != nil {
				return err
			}
			result = PutResult{Outcome: Created, Version: newVersion}
			return nil

		case UpdateOnly:
			if !exists {
				result = PutResult{Outcome: PutNotFound}
				return nil
			}
			if currentVersion != opts.ExpectedVersion {
				result = PutResult{Outcome: Conflict, CurrentVersion: currentVersion}
				return nil
			}
			newVersion := currentVersion + 1
			if err := b.Put([]byte(key), encodeEnvelope(newVersion, value)); err != nil {
				return err
			}
			result = PutResult{Outcome: Updated, Version: newVersion}
			return nil

		default: // Fill
			newVersion := currentVersion + 1
			outcome := Updated
			if !exists {
				newVersion = 1
				outcome = Created
			}
			if err := b.Put([]byte(key), encodeEnvelope(newVersion, value)); err != nil {
				return err
			}
			result = PutResult{Outcome: outcome, Version: newVersion}
			return nil
		}
	})
	if err != nil {
		return PutResult{}, fmt.Errorf("put %q: %w", key, err)
	}

	if result.Outcome == Created || result.Outcome == Updated {
		kind := WatchPut
		s.publish(WatchEvent{Key: key, Value: value, Version: result.Version, Kind: kind})
	}
	return result, nil
}

func (s *BoltStore) Delete(_ context.Context, key string) (DeleteResult, error) {
	var result DeleteResult

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)
		if b.Get([]byte(key)) == nil {
			result = DeleteNotFound
			return nil
		}
		result = Deleted
		return b.Delete([]byte(key))
	})
	if err != nil {
		return 0, fmt.Errorf("delete %q: %w", key, err)
	}
	if result == Deleted {
		s.publish(WatchEvent{Key: key, Kind: WatchDelete})
	}
	return result, nil
}

// Watch is an in-process best-effort fan-out over this store's own
// writes: there is no external replication log to tail, so subscribers
// see only events published by Put/Delete calls made through this same
// BoltStore instance. Slow subscribers drop events rather than block
// writers.
func (s *BoltStore) Watch(ctx context.Context, prefix string) (<-chan WatchEvent, func(), error) {
	sub := &subscriber{prefix: prefix, ch: make(chan WatchEvent, 64)}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[sub]; ok {
			delete(s.subs, sub)
			close(sub.ch)
		}
		s.mu.Unlock()
	}

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return sub.ch, cancel, nil
}

func (s *BoltStore) publish(ev WatchEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sub := range s.subs {
		if !bytes.HasPrefix([]byte(ev.Key), []byte(sub.prefix)) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
