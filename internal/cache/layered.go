package cache

import (
	"errors"
	"log/slog"
	"time"
)

// LayeredCache keeps fit results in memory for the running process and on
// disk across runs. The disk layer is authoritative: a fit that reaches it
// survives a failing memory layer.
type LayeredCache struct {
	memory Cache
	disk   Cache
}

// NewLayeredCache creates the fit cache with a go-cache memory layer over a
// compressed disk layer in diskDir.
func NewLayeredCache(memoryTTL time.Duration, diskDir string, diskTTL time.Duration) *LayeredCache {
	return newLayeredCache(NewMemoryCache(memoryTTL, 10*time.Minute), NewDiskCache(diskDir, diskTTL))
}

func newLayeredCache(memory, disk Cache) *LayeredCache {
	return &LayeredCache{memory: memory, disk: disk}
}

// Get returns a cached fit, memory first. A fit found only on disk is
// promoted to memory with the memory layer's default TTL.
func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if val, found := c.memory.Get(key); found {
		return val, true
	}

	val, found := c.disk.Get(key)
	if !found {
		return nil, false
	}
	if err := c.memory.Set(key, val, 0); err != nil {
		slog.Warn("cannot promote cached fit to memory", "key", key, "error", err)
	} else {
		slog.Debug("promoted cached fit from disk", "key", key)
	}
	return val, true
}

// Set stores a fit in both layers. Both writes are attempted; the errors of
// the layers that failed are joined.
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	var errs []error
	if err := c.memory.Set(key, value, ttl); err != nil {
		errs = append(errs, err)
	}
	if err := c.disk.Set(key, value, ttl); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Delete drops a fit from both layers
func (c *LayeredCache) Delete(key string) error {
	return errors.Join(c.memory.Delete(key), c.disk.Delete(key))
}

// Clear drops every cached fit from both layers
func (c *LayeredCache) Clear() error {
	return errors.Join(c.memory.Clear(), c.disk.Clear())
}
