// Package storage persists encoded asset responses across restarts.
package storage

import "github.com/quakeview/server/internal/model"

// Backend is the interface all storage implementations must satisfy.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Get returns the payload stored under key; ok is false on a miss.
	Get(key model.AssetKey) (payload []byte, ok bool, err error)
	// Put stores payload under key, replacing an earlier entry.
	Put(key model.AssetKey, payload []byte, meta model.AssetMeta) error
}

// Pruner is an optional interface for backends that can drop entries
// written for other map data versions.
type Pruner interface {
	Prune(keep int) (int64, error)
}
