package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilecached/tilecached/internal/store"
)

type noopStore struct{ closed bool }

func (n *noopStore) Close() error { n.closed = true; return nil }
func (n *noopStore) GetTile(ctx context.Context, z, x, y int32) (store.TileRecord, error) {
	return store.TileRecord{}, nil
}
func (n *noopStore) PutTile(ctx context.Context, z, x, y int32, data []byte, contentType, contentEncoding string, storeTransparent bool) error {
	return nil
}
func (n *noopStore) GetCreated(ctx context.Context, z, x, y int32) (int64, error) { return 0, nil }
func (n *noopStore) GetMetadata(ctx context.Context) (store.Metadata, error)      { return store.Metadata{}, nil }
func (n *noopStore) UpdateMetadata(ctx context.Context, patch store.Patch) error  { return nil }
func (n *noopStore) TileExtraInfo(ctx context.Context, ranges []store.RangeQuery, kind store.ExtraInfoKind) (map[store.TileKey]store.ExtraInfoValue, error) {
	return nil, nil
}

func TestRegisterAndLookupData(t *testing.T) {
	dir := t.TempDir()
	svc := New(dir, dir, dir, dir)

	s := &noopStore{}
	svc.RegisterData("basemap", &DataEntry{Store: s, Scheme: "xyz"})

	entry, err := svc.Data("basemap")
	require.NoError(t, err)
	assert.Equal(t, "xyz", entry.Scheme)
}

func TestDataLookupMissingReturnsError(t *testing.T) {
	dir := t.TempDir()
	svc := New(dir, dir, dir, dir)
	_, err := svc.Data("missing")
	require.Error(t, err)
}

func TestCloseClosesEveryDataSource(t *testing.T) {
	dir := t.TempDir()
	svc := New(dir, dir, dir, dir)

	a := &noopStore{}
	b := &noopStore{}
	svc.RegisterData("a", &DataEntry{Store: a})
	svc.RegisterData("b", &DataEntry{Store: b})

	require.NoError(t, svc.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
