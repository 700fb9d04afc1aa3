// Package pipeline implements the tile read pipeline: local lookup,
// origin HTTP forward on miss, best-effort cache write-back, and
// per-key request coalescing. Grounded on the singleflight.Group usage
// in the retrieval pack's gisquick mapcache service (one group keyed by
// tile, guarding origin fetches) and the teacher's log/slog logging
// conventions (internal/cmd/root.go).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tilecached/tilecached/internal/imgformat"
	"github.com/tilecached/tilecached/internal/netutil"
	"github.com/tilecached/tilecached/internal/store"
	"github.com/tilecached/tilecached/internal/tileerr"
	"github.com/tilecached/tilecached/internal/tilemath"
)

// OriginConfig describes how to forward a cache miss to an upstream
// tile source.
type OriginConfig struct {
	URLTemplate      string // with {z}/{x}/{y} placeholders
	Scheme           tilemath.Scheme // row scheme the origin expects y in
	Timeout          time.Duration
	MaxTry           int
	StoreTransparent bool
}

// Pipeline serves tiles out of a store.Store, filling on miss from an
// optional origin and coalescing concurrent requests for the same key.
type Pipeline struct {
	name   string
	store  store.Store
	origin *OriginConfig
	client *http.Client
	log    *slog.Logger

	group singleflight.Group
}

// New builds a Pipeline over s. origin may be nil for stores with no
// upstream (e.g. a pre-seeded archive serving only what it already has).
func New(name string, s store.Store, origin *OriginConfig, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		name:   name,
		store:  s,
		origin: origin,
		client: &http.Client{},
		log:    log,
	}
}

// Get serves a single tile: local lookup, then (if an origin is
// configured) a coalesced origin forward with write-back on success.
func (p *Pipeline) Get(ctx context.Context, z, x, y int32) (store.TileRecord, error) {
	rec, err := p.store.GetTile(ctx, z, x, y)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, tileerr.NotFound) {
		return store.TileRecord{}, err
	}
	if p.origin == nil {
		return store.TileRecord{}, err
	}

	key := fmt.Sprintf("%s/%d/%d/%d", p.name, z, x, y)
	result, err, _ := p.group.Do(key, func() (any, error) {
		return p.fetchAndCache(ctx, z, x, y)
	})
	if err != nil {
		return store.TileRecord{}, err
	}
	return result.(store.TileRecord), nil
}

func (p *Pipeline) fetchAndCache(ctx context.Context, z, x, y int32) (store.TileRecord, error) {
	tmpY := tilemath.FlipForScheme(p.origin.Scheme, z, y)
	url := substituteZXY(p.origin.URLTemplate, z, x, tmpY)

	var data []byte
	err := netutil.Retry(ctx, p.origin.MaxTry, 200*time.Millisecond, func() error {
		body, fetchErr := netutil.HTTPGet(ctx, p.client, url, p.origin.Timeout)
		if fetchErr != nil {
			return fetchErr
		}
		data = body
		return nil
	})
	if err != nil {
		return store.TileRecord{}, err
	}

	info := imgformat.Detect(data)
	rec := store.TileRecord{
		Data:            data,
		ContentType:     info.ContentType,
		ContentEncoding: string(info.Encoding),
	}

	// Write-back is best-effort: a cache write failure must not fail the
	// request that already has its bytes.
	if putErr := p.store.PutTile(ctx, z, x, y, data, rec.ContentType, rec.ContentEncoding, p.origin.StoreTransparent); putErr != nil {
		p.log.Warn("tile cache write-back failed", "store", p.name, "z", z, "x", x, "y", y, "error", putErr)
	}

	return rec, nil
}

func substituteZXY(tmpl string, z, x, y int32) string {
	return strings.NewReplacer(
		"{z}", strconv.Itoa(int(z)),
		"{x}", strconv.Itoa(int(x)),
		"{y}", strconv.Itoa(int(y)),
	).Replace(tmpl)
}
