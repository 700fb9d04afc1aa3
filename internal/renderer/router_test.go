package renderer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTileSource struct {
	data        []byte
	contentType string
	err         error
}

func (f fakeTileSource) Get(ctx context.Context, z, x, y int32) ([]byte, string, error) {
	return f.data, f.contentType, f.err
}

type fakeAssetSource struct {
	data []byte
	err  error
}

func (f fakeAssetSource) Read(ctx context.Context, id, file string) ([]byte, error) {
	return f.data, f.err
}

func TestResolveDispatchesToTileSource(t *testing.T) {
	pngHeader := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	r := NewRouter(map[string]TileSource{
		"basemap": fakeTileSource{data: pngHeader, contentType: "image/png"},
	}, nil, nil, nil)

	data := r.Resolve(context.Background(), "xyz://basemap/3/1/2.png")
	assert.Equal(t, pngHeader, data)
}

func TestResolveUnknownSourceReturnsFallback(t *testing.T) {
	r := NewRouter(map[string]TileSource{}, nil, nil, nil)
	data := r.Resolve(context.Background(), "xyz://missing/3/1/2.png")
	assert.Equal(t, fallbackPNG, data)
}

func TestResolveSpriteAsset(t *testing.T) {
	sheet := []byte("sprite-sheet-bytes")
	r := NewRouter(nil, fakeAssetSource{data: sheet}, nil, nil)

	data := r.Resolve(context.Background(), "sprites://basic/sheet.png")
	assert.Equal(t, sheet, data)
}

func TestResolveHTTPForward(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("remote-bytes"))
	}))
	defer srv.Close()

	r := NewRouter(nil, nil, nil, nil)
	data := r.Resolve(context.Background(), srv.URL)
	assert.Equal(t, []byte("remote-bytes"), data)
}

func TestParseZXYPath(t *testing.T) {
	z, x, y, err := parseZXYPath("/3/1/2.png")
	require.NoError(t, err)
	assert.Equal(t, int32(3), z)
	assert.Equal(t, int32(1), x)
	assert.Equal(t, int32(2), y)
}

func TestParseZXYPathMalformed(t *testing.T) {
	_, _, _, err := parseZXYPath("/notenoughsegments")
	require.Error(t, err)
}

func TestFormatFromURL(t *testing.T) {
	assert.Equal(t, "png", formatFromURL("xyz://basemap/1/2/3.png"))
	assert.Equal(t, "pbf", formatFromURL("mbtiles://vector/1/2/3.pbf"))
}
