// Package assets implements the sprite, font, geojson, and style caches
// (4.I): each on-disk record is read, written via a locked atomic
// create, optionally downloaded from a configured origin, and validated
// before being handed to a caller. Grounded on the lockfile-backed
// atomic write the teacher uses for on-disk artifacts, generalized from
// tile bytes to small JSON/binary asset files.
package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tilecached/tilecached/internal/imgformat"
	"github.com/tilecached/tilecached/internal/lockfile"
	"github.com/tilecached/tilecached/internal/netutil"
	"github.com/tilecached/tilecached/internal/tileerr"
)

// Record describes one cached asset file (4.B "Asset records").
type Record struct {
	Path        string
	SourceURL   string
	StoreCache  bool
	Created     int64
}

// Kind names the family of asset a Cache manages, used in error
// messages.
type Kind string

const (
	KindSprite  Kind = "sprite"
	KindFont    Kind = "font"
	KindGeoJSON Kind = "geojson"
	KindStyle   Kind = "style"
)

// Cache is one asset kind's on-disk store rooted at Dir.
type Cache struct {
	Kind   Kind
	Dir    string
	Client *http.Client
}

// NewCache builds a Cache rooted at dir.
func NewCache(kind Kind, dir string) *Cache {
	return &Cache{Kind: kind, Dir: dir, Client: &http.Client{}}
}

func (c *Cache) path(name string) string {
	return filepath.Join(c.Dir, name)
}

// Read loads an asset's bytes from disk.
func (c *Cache) Read(ctx context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(c.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("assets: %s %s: %w", c.Kind, name, tileerr.NotFound)
		}
		return nil, err
	}
	return data, nil
}

// CacheWrite atomically writes data to name via a scoped lock file,
// never clobbering a concurrent writer's in-flight state.
func (c *Cache) CacheWrite(ctx context.Context, name string, data []byte) error {
	return lockfile.WriteFile(ctx, c.path(name), data, 0o644)
}

// Download fetches name's bytes from sourceURL and caches them, retried
// up to maxTry times under timeout.
func (c *Cache) Download(ctx context.Context, name, sourceURL string, maxTry int, timeout time.Duration) ([]byte, error) {
	var data []byte
	err := netutil.Retry(ctx, maxTry, 200*time.Millisecond, func() error {
		body, fetchErr := netutil.HTTPGet(ctx, c.Client, sourceURL, timeout)
		if fetchErr != nil {
			return fetchErr
		}
		data = body
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("assets: download %s %s: %w", c.Kind, name, err)
	}

	if err := c.CacheWrite(ctx, name, data); err != nil {
		return nil, err
	}
	return data, nil
}

// GetCreated returns name's file modification time as Unix-ms.
func (c *Cache) GetCreated(name string) (int64, error) {
	info, err := os.Stat(c.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("assets: %s %s: %w", c.Kind, name, tileerr.NotFound)
		}
		return 0, err
	}
	return info.ModTime().UnixMilli(), nil
}

// Validate checks name's bytes structurally: JSON parts parse as valid
// JSON, PNG parts match the PNG magic bytes.
func (c *Cache) Validate(name string) error {
	data, err := c.Read(context.Background(), name)
	if err != nil {
		return err
	}

	switch filepath.Ext(name) {
	case ".json":
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("assets: %s %s: %w: %v", c.Kind, name, tileerr.SchemaInvalid, err)
		}
	case ".png":
		if imgformat.Detect(data).Format != imgformat.FormatPNG {
			return fmt.Errorf("assets: %s %s: %w", c.Kind, name, tileerr.FormatInvalid)
		}
	}
	return nil
}
