package job

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilecached/tilecached/internal/store"
	"github.com/tilecached/tilecached/internal/tileerr"
	"github.com/tilecached/tilecached/internal/tilemath"
)

type memStore struct {
	mu    sync.Mutex
	tiles map[string]store.TileRecord
	times map[string]int64
}

func newMemStore() *memStore {
	return &memStore{tiles: map[string]store.TileRecord{}, times: map[string]int64{}}
}

func mkey(z, x, y int32) string { return fmt.Sprintf("%d/%d/%d", z, x, y) }

func (m *memStore) Close() error { return nil }

func (m *memStore) GetTile(ctx context.Context, z, x, y int32) (store.TileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tiles[mkey(z, x, y)]
	if !ok {
		return store.TileRecord{}, tileerr.NotFound
	}
	return rec, nil
}

func (m *memStore) PutTile(ctx context.Context, z, x, y int32, data []byte, contentType, contentEncoding string, storeTransparent bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiles[mkey(z, x, y)] = store.TileRecord{Data: data, ContentType: contentType}
	m.times[mkey(z, x, y)] = time.Now().UnixMilli()
	return nil
}

func (m *memStore) GetCreated(ctx context.Context, z, x, y int32) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.times[mkey(z, x, y)]
	if !ok {
		return 0, tileerr.NotFound
	}
	return t, nil
}

func (m *memStore) GetMetadata(ctx context.Context) (store.Metadata, error)     { return store.Metadata{}, nil }
func (m *memStore) UpdateMetadata(ctx context.Context, patch store.Patch) error { return nil }
func (m *memStore) TileExtraInfo(ctx context.Context, ranges []store.RangeQuery, kind store.ExtraInfoKind) (map[store.TileKey]store.ExtraInfoValue, error) {
	return nil, nil
}

func TestEnumerateSkipsFreshTiles(t *testing.T) {
	dest := newMemStore()
	ctx := context.Background()
	require.NoError(t, dest.PutTile(ctx, 2, 0, 0, []byte("x"), "image/png", "", true))

	e := NewEngine(dest)
	spec := Spec{
		Coverage: tilemath.Coverage{Zoom: 2, BBox: tilemath.BBox{-180, -85, 180, 85}},
		Scheme:   tilemath.SchemeXYZ,
	}
	tasks, err := e.Enumerate(ctx, spec)
	require.NoError(t, err)

	for _, task := range tasks {
		assert.False(t, task.Coords.X == 0 && task.Coords.Y == 0, "already-fresh tile should be skipped")
	}
}

func TestEnumerateIncludesMissingTiles(t *testing.T) {
	dest := newMemStore()
	e := NewEngine(dest)
	spec := Spec{
		Coverage: tilemath.Coverage{Zoom: 1, BBox: tilemath.BBox{-180, -85, 180, 85}},
		Scheme:   tilemath.SchemeXYZ,
	}
	tasks, err := e.Enumerate(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, int64(len(tasks)), spec.Coverage.Expand(spec.Scheme).Total())
}

func TestEnumerateMaxAgeForcesRefresh(t *testing.T) {
	dest := newMemStore()
	ctx := context.Background()
	require.NoError(t, dest.PutTile(ctx, 1, 0, 0, []byte("x"), "image/png", "", true))
	dest.times[mkey(1, 0, 0)] = time.Now().Add(-time.Hour).UnixMilli()

	e := NewEngine(dest)
	spec := Spec{
		Coverage: tilemath.Coverage{Zoom: 1, BBox: tilemath.BBox{-180, -85, 180, 85}},
		Scheme:   tilemath.SchemeXYZ,
		Refresh:  RefreshPolicy{MaxAge: time.Minute},
	}
	tasks, err := e.Enumerate(ctx, spec)
	require.NoError(t, err)

	var found bool
	for _, task := range tasks {
		if task.Coords.X == 0 && task.Coords.Y == 0 {
			found = true
		}
	}
	assert.True(t, found, "stale tile should be queued for refresh")
}

func TestRunSeedJobPopulatesDest(t *testing.T) {
	dest := newMemStore()
	e := NewEngine(dest)
	spec := Spec{
		Coverage: tilemath.Coverage{Zoom: 0, BBox: tilemath.BBox{-180, -85, 180, 85}},
		Scheme:   tilemath.SchemeXYZ,
		Workers:  2,
	}

	runner := SeedRunner(dest, func(ctx context.Context, c tilemath.Coords) error {
		return dest.PutTile(ctx, c.Z, c.X, c.Y, []byte("seeded"), "image/png", "", true)
	})

	results, err := e.Run(context.Background(), spec, runner)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)

	rec, err := dest.GetTile(context.Background(), 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("seeded"), rec.Data)
}

func TestExportRunnerCopiesExistingTiles(t *testing.T) {
	src := newMemStore()
	dest := newMemStore()
	ctx := context.Background()
	require.NoError(t, src.PutTile(ctx, 0, 0, 0, []byte("source-bytes"), "image/png", "", true))

	runner := ExportRunner(src, dest)
	err := runner.Run(ctx, Task{Coords: tilemath.Coords{Z: 0, X: 0, Y: 0}})
	require.NoError(t, err)

	rec, err := dest.GetTile(ctx, 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("source-bytes"), rec.Data)
}

func TestExportRunnerSkipsMissingSourceTile(t *testing.T) {
	src := newMemStore()
	dest := newMemStore()

	runner := ExportRunner(src, dest)
	err := runner.Run(context.Background(), Task{Coords: tilemath.Coords{Z: 5, X: 5, Y: 5}})
	assert.NoError(t, err)
}

func TestCleanupDestNoopWithoutFlusher(t *testing.T) {
	dest := newMemStore()
	assert.NoError(t, CleanupDest(context.Background(), dest))
}

func TestEngineCancelStopsEnumeration(t *testing.T) {
	dest := newMemStore()
	e := NewEngine(dest)
	e.Cancel()

	spec := Spec{
		Coverage: tilemath.Coverage{Zoom: 4, BBox: tilemath.BBox{-180, -85, 180, 85}},
		Scheme:   tilemath.SchemeXYZ,
	}
	tasks, err := e.Enumerate(context.Background(), spec)
	require.NoError(t, err)
	assert.Empty(t, tasks, "cancelling before enumeration should queue no work")
	assert.True(t, e.State().CancelRequested)
}

func TestEngineCancelDuringRunStopsDispatch(t *testing.T) {
	dest := newMemStore()
	e := NewEngine(dest)
	spec := Spec{
		Coverage: tilemath.Coverage{Zoom: 4, BBox: tilemath.BBox{-180, -85, 180, 85}},
		Scheme:   tilemath.SchemeXYZ,
		Workers:  1,
	}

	var ran int32
	runner := RunnerFunc(func(ctx context.Context, task Task) error {
		if atomic.AddInt32(&ran, 1) == 1 {
			e.Cancel()
		}
		return nil
	})

	results, err := e.Run(context.Background(), spec, runner)
	require.NoError(t, err)
	total := int(spec.Coverage.Expand(spec.Scheme).Total())
	require.Greater(t, total, 1, "test needs multiple tiles to prove early cancellation")
	assert.Less(t, int(atomic.LoadInt32(&ran)), total, "cancelling mid-run should stop the runner short of every tile")
	assert.True(t, e.State().CancelRequested)
}
