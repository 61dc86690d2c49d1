// Package tree is a tree-structured key-value store with push-based value
// subscriptions. Records live under '/'-separated paths; writes replace whole
// subtrees and every write is announced to the watchers of overlapping paths.
package tree

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("tree store closed")

// Store is the database collaborator the chat components depend on.
type Store interface {
	Get(ctx context.Context, path string) (Snapshot, error)
	Keys(ctx context.Context, path string) ([]string, error)
	Watch(ctx context.Context, path string) (*Subscription, error)
	Set(ctx context.Context, path string, value any) error
	Remove(ctx context.Context, path string) error
	PushKey() string
}

// backend persists flattened leaves and reports changed paths.
type backend interface {
	// scan returns the leaves stored at or below path. Values are nil when
	// withValues is false.
	scan(ctx context.Context, path string, withValues bool) (map[string][]byte, error)
	// replace swaps the subtree at path for leaves, drops any scalar stored at
	// an ancestor, and announces path as changed.
	replace(ctx context.Context, path string, leaves map[string][]byte) error
	// changes streams changed paths until ctx is done.
	changes(ctx context.Context) (<-chan string, error)
	close() error
}

// DB implements Store on top of a backend.
type DB struct {
	b      backend
	hub    *hub
	log    *zap.Logger
	cancel context.CancelFunc

	closeOnce sync.Once
}

func open(b backend, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	changes, err := b.changes(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe to changes: %w", err)
	}
	db := &DB{
		b:      b,
		hub:    newHub(),
		log:    log,
		cancel: cancel,
	}
	go db.hub.run()
	go db.hub.forward(changes)
	return db, nil
}

func (db *DB) Get(ctx context.Context, path string) (Snapshot, error) {
	path, err := Clean(path)
	if err != nil {
		return Snapshot{}, err
	}
	leaves, err := db.b.scan(ctx, path, true)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read %q: %w", path, err)
	}
	value, err := unflatten(path, leaves)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read %q: %w", path, err)
	}
	return NewSnapshot(path, value), nil
}

// Keys is a shallow read: the sorted child keys of path, without values.
func (db *DB) Keys(ctx context.Context, path string) ([]string, error) {
	path, err := Clean(path)
	if err != nil {
		return nil, err
	}
	leaves, err := db.b.scan(ctx, path, false)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", path, err)
	}
	seen := make(map[string]struct{})
	for full := range leaves {
		if full == path {
			continue
		}
		seen[childKey(path, full)] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Set writes value at path, replacing whatever was there. A nil value or an
// empty object removes the subtree.
func (db *DB) Set(ctx context.Context, path string, value any) error {
	path, err := Clean(path)
	if err != nil {
		return err
	}
	leaves, err := flatten(path, value)
	if err != nil {
		return err
	}
	if err := db.b.replace(ctx, path, leaves); err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	return nil
}

func (db *DB) Remove(ctx context.Context, path string) error {
	return db.Set(ctx, path, nil)
}

// PushKey returns a unique child key. Keys sort in creation order.
func (db *DB) PushKey() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Watch subscribes to value events at path. The current value is delivered
// first, then a fresh snapshot after every overlapping write. A slow reader
// only ever sees the latest snapshot.
func (db *DB) Watch(ctx context.Context, path string) (*Subscription, error) {
	path, err := Clean(path)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	w := newWatcher(path)
	if !db.hub.add(w) {
		cancel()
		return nil, ErrClosed
	}
	w.poke()

	sub := &Subscription{w: w, cancel: cancel, done: make(chan struct{})}
	go db.watch(ctx, w, sub.done)
	return sub, nil
}

func (db *DB) watch(ctx context.Context, w *watcher, done chan struct{}) {
	defer close(done)
	defer close(w.events)
	defer db.hub.remove(w)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.dirty:
			snap, err := db.Get(ctx, w.path)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				db.log.Warn("watch read failed", zap.String("path", w.path), zap.Error(err))
			}
			w.deliver(Event{Snapshot: snap, Err: err})
		}
	}
}

func (db *DB) Close() error {
	var err error
	db.closeOnce.Do(func() {
		db.cancel()
		db.hub.stop()
		err = db.b.close()
	})
	return err
}

// Event is one value event: a snapshot, or the error that prevented reading it.
type Event struct {
	Snapshot Snapshot
	Err      error
}

// Subscription is a live value listener. Close detaches it.
type Subscription struct {
	w      *watcher
	cancel context.CancelFunc
	done   chan struct{}
}

// C delivers value events. It is closed once the subscription ends.
func (s *Subscription) C() <-chan Event { return s.w.events }

// Close detaches the listener and waits for its delivery loop to exit.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}
