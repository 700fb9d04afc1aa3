package dirsidecar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilecached/tilecached/internal/store"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir(), true, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutAndGetTile(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	pngHeader := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	data := append(pngHeader, []byte("rest-of-png")...)

	require.NoError(t, s.PutTile(ctx, 3, 1, 2, data, "image/png", "", true))

	rec, err := s.GetTile(ctx, 3, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, data, rec.Data)
	assert.Equal(t, "image/png", rec.ContentType)
}

func TestGetTileMissing(t *testing.T) {
	s := openTemp(t)
	_, err := s.GetTile(context.Background(), 3, 1, 2)
	require.Error(t, err)
}

func TestGetCreatedAfterPut(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	pngHeader := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	require.NoError(t, s.PutTile(ctx, 0, 0, 0, pngHeader, "image/png", "", true))

	created, err := s.GetCreated(ctx, 0, 0, 0)
	require.NoError(t, err)
	assert.Greater(t, created, int64(0))
}

func TestMetadataRoundTrip(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.UpdateMetadata(ctx, store.Patch{Set: map[string]string{
		"name":    "basemap",
		"minzoom": "0",
		"maxzoom": "14",
		"bounds":  "-180,-85,180,85",
	}}))

	meta, err := s.GetMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, "basemap", meta.Name)
	assert.Equal(t, 0, meta.MinZoom)
	assert.Equal(t, 14, meta.MaxZoom)
	assert.Equal(t, [4]float64{-180, -85, 180, 85}, meta.Bounds)
}

func TestPutTileSkipsFullyTransparentWhenNotStoring(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	transparent := buildTransparentPNG(t)
	require.NoError(t, s.PutTile(ctx, 5, 5, 5, transparent, "image/png", "", false))

	_, err := s.GetTile(ctx, 5, 5, 5)
	require.Error(t, err)
}

func TestTileExtraInfoHash(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	pngHeader := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	require.NoError(t, s.PutTile(ctx, 2, 1, 1, pngHeader, "image/png", "", true))

	out, err := s.TileExtraInfo(ctx, []store.RangeQuery{{Z: 2, XMin: 0, XMax: 3, YMin: 0, YMax: 3}}, store.ExtraInfoHash)
	require.NoError(t, err)
	val, ok := out[store.TileKey{Z: 2, X: 1, Y: 1}]
	require.True(t, ok)
	assert.Len(t, val.Hash, 32)
}

func buildTransparentPNG(t *testing.T) []byte {
	t.Helper()
	// 1x1 fully transparent PNG.
	return []byte{
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
}
