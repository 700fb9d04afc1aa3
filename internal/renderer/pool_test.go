package renderer

import (
	"testing"
)

// Pool is exercised against real Mapnik instances, which require the
// libmapnik shared library this package cgo-links against. This is an
// integration test and is skipped under go test -short.
func TestPoolAcquireRelease(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, err := NewPool(1, 2, func() (*MapnikRasterizer, error) {
		return NewMapnikRasterizer("/usr/lib/mapnik/3.1/input", "", 256)
	})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()

	r, err := pool.Acquire(t.Context())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	pool.Release(r)
}
