package tree

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// NewMemory returns an in-process store. Nothing survives a restart.
func NewMemory(log *zap.Logger) *DB {
	db, _ := open(newMemoryBackend(), log)
	return db
}

type memoryBackend struct {
	mu      sync.RWMutex
	leaves  map[string][]byte
	changed chan string
	done    chan struct{}
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{
		leaves:  make(map[string][]byte),
		changed: make(chan string, 64),
		done:    make(chan struct{}),
	}
}

func under(path, full string) bool {
	return path == "" || full == path || strings.HasPrefix(full, path+separator)
}

func (m *memoryBackend) scan(_ context.Context, path string, withValues bool) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]byte)
	for full, raw := range m.leaves {
		if !under(path, full) {
			continue
		}
		if withValues {
			out[full] = append([]byte(nil), raw...)
		} else {
			out[full] = nil
		}
	}
	return out, nil
}

func (m *memoryBackend) replace(_ context.Context, path string, leaves map[string][]byte) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}

	m.mu.Lock()
	for full := range m.leaves {
		if under(path, full) {
			delete(m.leaves, full)
		}
	}
	for _, a := range ancestors(path) {
		delete(m.leaves, a)
	}
	for full, raw := range leaves {
		m.leaves[full] = raw
	}
	m.mu.Unlock()

	select {
	case m.changed <- path:
		return nil
	case <-m.done:
		return ErrClosed
	}
}

func (m *memoryBackend) changes(context.Context) (<-chan string, error) {
	return m.changed, nil
}

func (m *memoryBackend) close() error {
	close(m.done)
	return nil
}
