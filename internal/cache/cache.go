// Package cache memoises fit results. Fits are deterministic, so a result
// keyed by its complete input can be reused until it expires.
package cache

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// KeyBuilder accumulates fit inputs into a cache key
type KeyBuilder struct {
	d *xxhash.Digest
}

// NewKeyBuilder starts a key for the given namespace
func NewKeyBuilder(namespace string) *KeyBuilder {
	d := xxhash.New()
	_, _ = d.WriteString(namespace)
	return &KeyBuilder{d: d}
}

// String adds a string component
func (b *KeyBuilder) String(s string) *KeyBuilder {
	_, _ = b.d.WriteString(strconv.Itoa(len(s)))
	_, _ = b.d.WriteString(":")
	_, _ = b.d.WriteString(s)
	return b
}

// Floats adds float components by their exact bit patterns
func (b *KeyBuilder) Floats(vs ...float64) *KeyBuilder {
	var buf [8]byte
	for _, v := range vs {
		bits := math.Float64bits(v)
		for i := range buf {
			buf[i] = byte(bits >> (8 * i))
		}
		_, _ = b.d.Write(buf[:])
	}
	return b
}

// Key returns the finished key
func (b *KeyBuilder) Key() string {
	return fmt.Sprintf("odcfit:v1:%016x", b.d.Sum64())
}
