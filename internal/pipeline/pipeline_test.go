package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilecached/tilecached/internal/store"
	"github.com/tilecached/tilecached/internal/tileerr"
)

type fakeStore struct {
	mu    sync.Mutex
	tiles map[string]store.TileRecord
	puts  int32
}

func newFakeStore() *fakeStore {
	return &fakeStore{tiles: map[string]store.TileRecord{}}
}

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
	atomic.AddInt32(&f.puts, 1)
	f.tiles[key(z, x, y)] = store.TileRecord{Data: data, ContentType: contentType, ContentEncoding: contentEncoding}
	return nil
}

func (f *fakeStore) GetCreated(ctx context.Context, z, x, y int32) (int64, error) { return 0, tileerr.NotFound }
func (f *fakeStore) GetMetadata(ctx context.Context) (store.Metadata, error)      { return store.Metadata{}, nil }
func (f *fakeStore) UpdateMetadata(ctx context.Context, patch store.Patch) error  { return nil }
func (f *fakeStore) TileExtraInfo(ctx context.Context, ranges []store.RangeQuery, kind store.ExtraInfoKind) (map[store.TileKey]store.ExtraInfoValue, error) {
	return nil, nil
}

func TestGetServesFromStoreWithoutOrigin(t *testing.T) {
	fs := newFakeStore()
	fs.tiles[key(1, 2, 3)] = store.TileRecord{Data: []byte("cached")}

	p := New("test", fs, nil, nil)
	rec, err := p.Get(context.Background(), 1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), rec.Data)
}

func TestGetMissingWithoutOriginReturnsError(t *testing.T) {
	fs := newFakeStore()
	p := New("test", fs, nil, nil)
	_, err := p.Get(context.Background(), 1, 2, 3)
	require.Error(t, err)
}

func TestGetFetchesFromOriginAndWritesBack(t *testing.T) {
	var hits int32
	pngHeader := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write(pngHeader)
	}))
	defer srv.Close()

	fs := newFakeStore()
	p := New("test", fs, &OriginConfig{
		URLTemplate: srv.URL + "/{z}/{x}/{y}.png",
		Timeout:     time.Second,
		MaxTry:      1,
	}, nil)

	rec, err := p.Get(context.Background(), 4, 5, 6)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, rec.Data)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fs.puts))
}

func TestGetCoalescesConcurrentRequests(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})
	}))
	defer srv.Close()

	fs := newFakeStore()
	p := New("test", fs, &OriginConfig{
		URLTemplate: srv.URL + "/{z}/{x}/{y}.png",
		Timeout:     time.Second,
		MaxTry:      1,
	}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Get(context.Background(), 7, 8, 9)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
