package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilecached/tilecached/internal/pipeline"
	"github.com/tilecached/tilecached/internal/services"
	"github.com/tilecached/tilecached/internal/store"
	"github.com/tilecached/tilecached/internal/tileerr"
)

type fakeStore struct {
	mu    sync.Mutex
	tiles map[string]store.TileRecord
}

func newFakeStore() *fakeStore { return &fakeStore{tiles: map[string]store.TileRecord{}} }

func key(z, x, y int32) string { return fmt.Sprintf("%d/%d/%d", z, x, y) }

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) GetTile(ctx context.Context, z, x, y int32) (store.TileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.tiles[key(z, x, y)]
	if !ok {
		return store.TileRecord{}, tileerr.NotFound
	}
	return rec, nil
}

func (f *fakeStore) PutTile(ctx context.Context, z, x, y int32, data []byte, contentType, contentEncoding string, storeTransparent bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tiles[key(z, x, y)] = store.TileRecord{Data: data, ContentType: contentType, ContentEncoding: contentEncoding}
	return nil
}

func (f *fakeStore) GetCreated(ctx context.Context, z, x, y int32) (int64, error) { return 0, tileerr.NotFound }
func (f *fakeStore) GetMetadata(ctx context.Context) (store.Metadata, error)      { return store.Metadata{}, nil }
func (f *fakeStore) UpdateMetadata(ctx context.Context, patch store.Patch) error  { return nil }
func (f *fakeStore) TileExtraInfo(ctx context.Context, ranges []store.RangeQuery, kind store.ExtraInfoKind) (map[store.TileKey]store.ExtraInfoValue, error) {
	return nil, nil
}

func TestParseTilePath(t *testing.T) {
	z, x, y, ok := parseTilePath("/5/10/12.png")
	require.True(t, ok)
	assert.Equal(t, int32(5), z)
	assert.Equal(t, int32(10), x)
	assert.Equal(t, int32(12), y)
}

func TestParseTilePathWithScaleSuffix(t *testing.T) {
	z, x, y, ok := parseTilePath("/5/10/12@2x.png")
	require.True(t, ok)
	assert.Equal(t, int32(5), z)
	assert.Equal(t, int32(10), x)
	assert.Equal(t, int32(12), y)
}

func TestParseTilePathMalformed(t *testing.T) {
	_, _, _, ok := parseTilePath("/not/a/tile/path/thing.png")
	assert.False(t, ok)
}

func TestTileHandlerServesHit(t *testing.T) {
	fs := newFakeStore()
	fs.tiles[key(1, 2, 3)] = store.TileRecord{Data: []byte("tiledata"), ContentType: "image/png"}
	p := pipeline.New("test", fs, nil, nil)
	h := NewTileHandler(&services.DataEntry{Store: fs, Pipeline: p}, "", nil)

	req := httptest.NewRequest(http.MethodGet, "/1/2/3.png", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tiledata", rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
}

func TestTileHandlerMissReturns404(t *testing.T) {
	fs := newFakeStore()
	p := pipeline.New("test", fs, nil, nil)
	h := NewTileHandler(&services.DataEntry{Store: fs, Pipeline: p}, "", nil)

	req := httptest.NewRequest(http.MethodGet, "/1/2/3.png", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTileHandlerMalformedPathReturns404(t *testing.T) {
	fs := newFakeStore()
	p := pipeline.New("test", fs, nil, nil)
	h := NewTileHandler(&services.DataEntry{Store: fs, Pipeline: p}, "", nil)

	req := httptest.NewRequest(http.MethodGet, "/garbage", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMuxServesHealthz(t *testing.T) {
	svc := services.New(t.TempDir(), t.TempDir(), t.TempDir(), t.TempDir())
	mux := Mux(svc, "", nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMuxServesRegisteredDataSource(t *testing.T) {
	fs := newFakeStore()
	fs.tiles[key(0, 0, 0)] = store.TileRecord{Data: []byte("root-tile"), ContentType: "image/png"}
	p := pipeline.New("basemap", fs, nil, nil)

	svc := services.New(t.TempDir(), t.TempDir(), t.TempDir(), t.TempDir())
	svc.RegisterData("basemap", &services.DataEntry{Store: fs, Pipeline: p, Scheme: "xyz"})

	mux := Mux(svc, "", nil)
	req := httptest.NewRequest(http.MethodGet, "/tiles/basemap/0/0/0.png", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "root-tile", rec.Body.String())
}
