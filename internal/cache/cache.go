// Package cache serves encoded asset responses from memory, then from the
// persistent storage backend, and decodes them only when both miss.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/ristretto/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/quakeview/server/internal/config"
	"github.com/quakeview/server/internal/model"
	"github.com/quakeview/server/internal/storage"
	"github.com/quakeview/server/pkg/core"
)

// Source tells where a response came from.
type Source string

const (
	SourceMemory Source = "memory"
	SourceStore  Source = "store"
	SourceLoad   Source = "load"
)

// Loader produces the value to encode on a miss.
type Loader func() (any, error)

// Cache is safe for concurrent use. Concurrent misses on one key run the
// loader once.
type Cache struct {
	mem     *ristretto.Cache[string, []byte]
	store   storage.Backend
	version int
	logger  *slog.Logger
	group   singleflight.Group

	lookups metric.Int64Counter
}

type result struct {
	data []byte
	src  Source
}

// New creates a cache whose keys carry version. store may be nil. A store
// that supports pruning loses its entries for other versions.
func New(cfg config.CacheConfig, store storage.Backend, version int, logger *slog.Logger) (*Cache, error) {
	mem, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating response cache: %w", err)
	}

	c := &Cache{mem: mem, store: store, version: version, logger: logger}
	if c.lookups, err = meter().Int64Counter("assets.cache.lookups",
		metric.WithDescription("Asset responses served, by source")); err != nil {
		return nil, fmt.Errorf("creating lookup counter: %w", err)
	}

	if p, ok := store.(storage.Pruner); ok {
		n, err := p.Prune(version)
		if err != nil {
			logger.Warn("Failed to prune asset cache", "error", err)
		} else if n > 0 {
			logger.Info("Pruned stale asset cache entries", "count", n, "version", version)
		}
	}
	return c, nil
}

// Get returns the JSON encoding of kind/name and where it came from.
// Loader errors are returned unchanged and are not cached.
func (c *Cache) Get(kind, name string, load Loader) ([]byte, Source, error) {
	key := model.AssetKey{Kind: kind, Name: name, Version: c.version}
	id := key.String()

	if data, ok := c.mem.Get(id); ok {
		c.count(kind, SourceMemory)
		return data, SourceMemory, nil
	}

	v, err, _ := c.group.Do(id, func() (any, error) {
		return c.fill(key, id, load)
	})
	if err != nil {
		return nil, "", err
	}
	r := v.(result)
	c.count(kind, r.src)
	return r.data, r.src, nil
}

func (c *Cache) fill(key model.AssetKey, id string, load Loader) (result, error) {
	// A flight that finished after our first lookup already filled memory.
	if data, ok := c.mem.Get(id); ok {
		return result{data, SourceMemory}, nil
	}
	if c.store != nil {
		data, ok, err := c.store.Get(key)
		if err != nil {
			c.logger.Warn("Asset store read failed", "key", id, "error", err)
		} else if ok {
			c.remember(id, data)
			return result{data, SourceStore}, nil
		}
	}

	v, err := load()
	if err != nil {
		return result{}, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return result{}, fmt.Errorf("encode %s: %w", id, err)
	}
	c.remember(id, data)

	if c.store != nil {
		if err := c.store.Put(key, data, metaFor(v)); err != nil {
			c.logger.Warn("Asset store write failed", "key", id, "error", err)
		}
	}
	return result{data, SourceLoad}, nil
}

func (c *Cache) remember(id string, data []byte) {
	if !c.mem.Set(id, data, int64(len(data))) {
		c.logger.Debug("Response cache rejected entry", "key", id, "bytes", len(data))
	}
	c.mem.Wait()
}

func (c *Cache) count(kind string, src Source) {
	c.lookups.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("source", string(src)),
	))
}

func metaFor(v any) model.AssetMeta {
	switch a := v.(type) {
	case *core.Level:
		return model.AssetMeta{Textures: len(a.TextureNames), Faces: len(a.Faces)}
	case *core.Model:
		return model.AssetMeta{Textures: len(a.TextureNames), Faces: len(a.Faces)}
	}
	return model.AssetMeta{}
}

// Clear drops every in-memory entry. Stored entries stay.
func (c *Cache) Clear() {
	c.mem.Clear()
}

// Close stops the in-memory cache.
func (c *Cache) Close() {
	c.mem.Close()
}
