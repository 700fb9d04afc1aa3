package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tilecached/tilecached/internal/tileerr"
)

// geometryFamilies are the feature geometry families GeoJSON validation
// accepts (4.I): every feature must carry one of these.
var geometryFamilies = map[string]bool{
	"Polygon":        true,
	"MultiPolygon":   true,
	"LineString":     true,
	"MultiLineString": true,
	"Point":          true,
	"MultiPoint":     true,
}

// permissiveDefaultFeatureCollection is substituted when a GeoJSON file
// is missing locally but an origin is configured and the caller asked
// for a fallback rather than a hard failure.
var permissiveDefaultFeatureCollection = []byte(`{"type":"FeatureCollection","features":[]}`)

type geoJSONFeature struct {
	Type     string `json:"type"`
	Geometry struct {
		Type string `json:"type"`
	} `json:"geometry"`
}

type geoJSONDocument struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

// GeoJSONCache manages GeoJSON source files.
type GeoJSONCache struct {
	*Cache
}

// NewGeoJSONCache builds a GeoJSONCache rooted at dir.
func NewGeoJSONCache(dir string) *GeoJSONCache {
	return &GeoJSONCache{Cache: NewCache(KindGeoJSON, dir)}
}

// ReadOrDefault reads name; if it is absent and allowDefault is true, it
// returns the permissive default feature collection instead of failing.
func (g *GeoJSONCache) ReadOrDefault(ctx context.Context, name string, allowDefault bool) ([]byte, error) {
	data, err := g.Cache.Read(ctx, name)
	if err != nil {
		if allowDefault && errors.Is(err, tileerr.NotFound) {
			return permissiveDefaultFeatureCollection, nil
		}
		return nil, err
	}
	return data, nil
}

// ValidateGeoJSON checks that every feature in data has a geometry
// belonging to one of the polygon/line/circle families (a Point stands
// in for "circle", which GeoJSON has no native geometry type for).
func ValidateGeoJSON(data []byte) error {
	var doc geoJSONDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("assets: geojson: %w: %v", tileerr.SchemaInvalid, err)
	}
	for i, feature := range doc.Features {
		if !geometryFamilies[feature.Geometry.Type] {
			return fmt.Errorf("assets: geojson: %w: feature %d has unsupported geometry %q", tileerr.SchemaInvalid, i, feature.Geometry.Type)
		}
	}
	return nil
}
