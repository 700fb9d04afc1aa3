package filearchive

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilecached/tilecached/internal/store"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.mbtiles")
	s, err := Open(context.Background(), path, true)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func TestPutGetTileRoundTripsThroughFlip(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.PutTile(ctx, 4, 2, 3, pngHeader, "image/png", "", true))
	require.NoError(t, s.Flush(ctx))

	rec, err := s.GetTile(ctx, 4, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, rec.Data)
	assert.Equal(t, "image/png", rec.ContentType)
}

func TestFlushIsAutomaticAtBatchSize(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	for i := int32(0); i < batchSize; i++ {
		require.NoError(t, s.PutTile(ctx, 5, i, 0, pngHeader, "image/png", "", true))
	}

	rec, err := s.GetTile(ctx, 5, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, rec.Data)
}

func TestGetTileMissing(t *testing.T) {
	s := openTemp(t)
	_, err := s.GetTile(context.Background(), 1, 1, 1)
	require.Error(t, err)
}

func TestMetadataRoundTrip(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.UpdateMetadata(ctx, store.Patch{Set: map[string]string{
		"name":    "overview",
		"minzoom": "2",
		"maxzoom": "10",
	}}))

	meta, err := s.GetMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, "overview", meta.Name)
	assert.Equal(t, 2, meta.MinZoom)
	assert.Equal(t, 10, meta.MaxZoom)
}

func TestTileExtraInfoTranslatesRowRange(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.PutTile(ctx, 3, 1, 1, pngHeader, "image/png", "", true))
	require.NoError(t, s.Flush(ctx))

	out, err := s.TileExtraInfo(ctx, []store.RangeQuery{{Z: 3, XMin: 0, XMax: 7, YMin: 0, YMax: 7}}, store.ExtraInfoCreated)
	require.NoError(t, err)
	val, ok := out[store.TileKey{Z: 3, X: 1, Y: 1}]
	require.True(t, ok)
	assert.Greater(t, val.Created, int64(0))
}

func TestPutTileSkipsTransparentWhenNotStoring(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	transparent := []byte{
		0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A,
		0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
		0x89, 0x00, 0x00, 0x00, 0x0E, 0x49, 0x44, 0x41,
		0x54, 0x78, 0xDA, 0x62, 0x60, 0x60, 0x60, 0x60,
		0x00, 0x0C, 0x00, 0x00, 0x05, 0x00, 0x01, 0x0A,
		0x7D, 0xA9, 0x34, 0x00, 0x00, 0x00, 0x00, 0x49,
		0x45, 0x4E, 0x44, 0xAE, 0x42, 0x60, 0x82,
	}
	require.NoError(t, s.PutTile(ctx, 6, 6, 6, transparent, "image/png", "", false))
	require.NoError(t, s.Flush(ctx))

	_, err := s.GetTile(ctx, 6, 6, 6)
	require.Error(t, err)
}
