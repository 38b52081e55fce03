// Package memory keeps cached assets in a map for the life of the process.
package memory

import (
	"sync"

	"github.com/quakeview/server/internal/model"
)

type entry struct {
	payload []byte
	meta    model.AssetMeta
}

// Backend stores payloads in memory.
type Backend struct {
	mu      sync.RWMutex
	entries map[model.AssetKey]entry
}

// New creates an empty memory backend.
func New() *Backend {
	return &Backend{entries: make(map[model.AssetKey]entry)}
}

func (b *Backend) Init() error  { return nil }
func (b *Backend) Close() error { return nil }

func (b *Backend) Get(key model.AssetKey) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), e.payload...), true, nil
}

func (b *Backend) Put(key model.AssetKey, payload []byte, meta model.AssetMeta) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = entry{payload: append([]byte(nil), payload...), meta: meta}
	return nil
}

// Prune drops entries of every version but keep.
func (b *Backend) Prune(keep int) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n int64
	for k := range b.entries {
		if k.Version != keep {
			delete(b.entries, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
