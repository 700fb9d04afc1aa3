package renderer

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/tilecached/tilecached/internal/imgformat"
	"github.com/tilecached/tilecached/internal/netutil"
	"github.com/tilecached/tilecached/internal/pipeline"
)

// PipelineSource adapts a pipeline.Pipeline (which returns a full
// store.TileRecord) to the TileSource the router dispatches to.
type PipelineSource struct {
	Pipeline *pipeline.Pipeline
}

// Get implements TileSource.
func (s PipelineSource) Get(ctx context.Context, z, x, y int32) ([]byte, string, error) {
	rec, err := s.Pipeline.Get(ctx, z, x, y)
	if err != nil {
		return nil, "", err
	}
	return rec.Data, rec.ContentType, nil
}

// TileSource resolves one named backend's tiles through the read
// pipeline (4.E); PipelineSource adapts a pipeline.Pipeline to it.
type TileSource interface {
	Get(ctx context.Context, z, x, y int32) (data []byte, contentType string, err error)
}

// AssetSource resolves one sprite or font cache's files by id and file
// name (4.I); internal/assets implements this.
type AssetSource interface {
	Read(ctx context.Context, id, file string) ([]byte, error)
}

// Router dispatches the rasterizer's resource requests by URL scheme
// (4.F): sprites:, fonts:, pmtiles:/mbtiles:/xyz:/pg: (tile sources),
// and http:/https: (raw forward).
type Router struct {
	tileSources map[string]TileSource
	sprites     AssetSource
	fonts       AssetSource
	client      *http.Client
	log         *slog.Logger
}

// NewRouter builds a Router. tileSources is keyed by the backend name
// given as the URL host, e.g. "xyz://basemap/{z}/{x}/{y}" looks up
// tileSources["basemap"].
func NewRouter(tileSources map[string]TileSource, sprites, fonts AssetSource, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		tileSources: tileSources,
		sprites:     sprites,
		fonts:       fonts,
		client:      &http.Client{Timeout: 30 * time.Second},
		log:         log,
	}
}

// Resolve fetches the bytes for a rasterizer-requested URL. On any
// failure it logs and returns a fallback payload for the requested
// format rather than propagating the error, so rendering can complete.
func (r *Router) Resolve(ctx context.Context, rawURL string) []byte {
	data, contentType, err := r.resolve(ctx, rawURL)
	if err != nil {
		r.log.Warn("renderer: resource resolve failed, using fallback", "url", rawURL, "error", err)
		return Fallback(formatFromURL(rawURL))
	}
	if strings.HasPrefix(contentType, "application/x-protobuf") {
		if gunzipped, ok := maybeGunzip(data); ok {
			return gunzipped
		}
	}
	return data
}

func (r *Router) resolve(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", err
	}

	switch u.Scheme {
	case "sprites":
		return r.resolveAsset(ctx, r.sprites, u)
	case "fonts":
		return r.resolveAsset(ctx, r.fonts, u)
	case "pmtiles", "mbtiles", "xyz", "pg":
		return r.resolveTile(ctx, u)
	case "http", "https":
		body, err := netutil.HTTPGet(ctx, r.client, rawURL, 30*time.Second)
		if err != nil {
			return nil, "", err
		}
		return body, imgformat.Detect(body).ContentType, nil
	default:
		return nil, "", &unsupportedSchemeError{scheme: u.Scheme}
	}
}

func (r *Router) resolveAsset(ctx context.Context, src AssetSource, u *url.URL) ([]byte, string, error) {
	id, file := splitAssetPath(u)
	data, err := src.Read(ctx, id, file)
	if err != nil {
		return nil, "", err
	}
	return data, imgformat.Detect(data).ContentType, nil
}

func (r *Router) resolveTile(ctx context.Context, u *url.URL) ([]byte, string, error) {
	name := u.Host
	src, ok := r.tileSources[name]
	if !ok {
		return nil, "", &unknownSourceError{name: name}
	}

	z, x, y, err := parseZXYPath(u.Path)
	if err != nil {
		return nil, "", err
	}
	return src.Get(ctx, z, x, y)
}

func splitAssetPath(u *url.URL) (id, file string) {
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if u.Host != "" {
		parts = append([]string{u.Host}, parts...)
	}
	if len(parts) < 2 {
		return strings.Join(parts, "/"), ""
	}
	return parts[0], path.Join(parts[1:]...)
}

func parseZXYPath(p string) (z, x, y int32, err error) {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) < 3 {
		return 0, 0, 0, &malformedTilePathError{path: p}
	}
	z = parseInt32(parts[len(parts)-3])
	x = parseInt32(parts[len(parts)-2])
	y = parseInt32(strings.TrimSuffix(parts[len(parts)-1], path.Ext(parts[len(parts)-1])))
	return z, x, y, nil
}

func parseInt32(s string) int32 {
	var n int32
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int32(c-'0')
	}
	return n
}

func formatFromURL(rawURL string) string {
	ext := strings.ToLower(path.Ext(rawURL))
	return strings.TrimPrefix(ext, ".")
}

func maybeGunzip(data []byte) ([]byte, bool) {
	if len(data) < 2 || data[0] != 0x1F || data[1] != 0x8B {
		return data, false
	}
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return data, false
	}
	defer gr.Close()
	out, err := io.ReadAll(gr)
	if err != nil {
		return data, false
	}
	return out, true
}

type unsupportedSchemeError struct{ scheme string }

func (e *unsupportedSchemeError) Error() string { return "renderer: unsupported scheme " + e.scheme }

type unknownSourceError struct{ name string }

func (e *unknownSourceError) Error() string { return "renderer: unknown tile source " + e.name }

type malformedTilePathError struct{ path string }

func (e *malformedTilePathError) Error() string { return "renderer: malformed tile path " + e.path }
