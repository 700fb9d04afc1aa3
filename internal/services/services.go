// Package services wires together the named, process-wide registry of
// data sources, styles, sprites, fonts, and geojson caches that job and
// request handlers are given explicitly at construction, rather than
// reaching for global mutable state. Grounded on the teacher's explicit
// constructor-passing style (internal/cmd commands build one renderer
// and pass it down, never a package-level singleton).
package services

import (
	"fmt"
	"sync"

	"github.com/tilecached/tilecached/internal/assets"
	"github.com/tilecached/tilecached/internal/pipeline"
	"github.com/tilecached/tilecached/internal/store"
)

// DataEntry is one configured tile source: its backend store plus the
// read-pipeline wrapping it (4.E), keyed by name under Services.Datas.
type DataEntry struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Scheme   string // "xyz" or "tms", the scheme tiles are requested in
}

// Services is the explicit registry passed into every job and request
// entry point: named data sources, styles, geojsons, sprites, and fonts.
type Services struct {
	mu sync.RWMutex

	Datas    map[string]*DataEntry
	Styles   *assets.StyleCache
	GeoJSONs *assets.GeoJSONCache
	Sprites  *assets.SpriteCache
	Fonts    *assets.FontCache
}

// New builds an empty Services registry rooted at the asset
// directories given; Datas is populated by RegisterData as stores are
// opened.
func New(stylesDir, geojsonsDir, spritesDir, fontsDir string) *Services {
	return &Services{
		Datas:    map[string]*DataEntry{},
		Styles:   assets.NewStyleCache(stylesDir),
		GeoJSONs: assets.NewGeoJSONCache(geojsonsDir),
		Sprites:  assets.NewSpriteCache(spritesDir),
		Fonts:    assets.NewFontCache(fontsDir),
	}
}

// RegisterData adds or replaces a named data source.
func (s *Services) RegisterData(name string, entry *DataEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Datas[name] = entry
}

// Data looks up a named data source.
func (s *Services) Data(name string) (*DataEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.Datas[name]
	if !ok {
		return nil, fmt.Errorf("services: no data source named %q", name)
	}
	return entry, nil
}

// Close closes every registered data store, collecting and returning
// the first error encountered while still attempting to close the rest.
func (s *Services) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for name, entry := range s.Datas {
		if err := entry.Store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("services: closing data source %q: %w", name, err)
		}
	}
	return firstErr
}
