package renderer

// #cgo LDFLAGS: -lmapnik
// #cgo CXXFLAGS: -std=c++14
import "C"

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"sync"

	mapnik "github.com/omniscale/go-mapnik/v2"

	"github.com/tilecached/tilecached/internal/tilemath"
)

const webMercatorSRS = "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs +over"

const earthRadius = 6378137.0

// registerOnce guards mapnik.RegisterDatasources, which Mapnik requires
// to be called exactly once per process.
var registerOnce sync.Once
var registerErr error

func registerDatasources(pluginDir string) error {
	registerOnce.Do(func() {
		registerErr = mapnik.RegisterDatasources(pluginDir)
	})
	return registerErr
}

// MapnikRasterizer is one native Mapnik map object sized for one tile
// (or metatile). It is not safe for concurrent use; callers obtain one
// per render from a Pool.
type MapnikRasterizer struct {
	mapObject *mapnik.Map
	tileSize  int
}

// NewMapnikRasterizer loads styleFile into a fresh Mapnik map object of
// tileSize x tileSize pixels, after registering datasources from
// pluginDir (a process-wide, once-only call).
func NewMapnikRasterizer(pluginDir, styleFile string, tileSize int) (*MapnikRasterizer, error) {
	if err := registerDatasources(pluginDir); err != nil {
		return nil, fmt.Errorf("renderer: register datasources: %w", err)
	}

	m := mapnik.NewSized(tileSize, tileSize)
	if styleFile != "" {
		if err := m.Load(styleFile); err != nil {
			m.Free()
			return nil, fmt.Errorf("renderer: load style: %w", err)
		}
	}

	return &MapnikRasterizer{mapObject: m, tileSize: tileSize}, nil
}

// RenderTile renders the Web Mercator extent of tile (z,x,y) and returns
// the raw RGBA image, at r.tileSize x r.tileSize.
func (r *MapnikRasterizer) RenderTile(z, x, y int32) (image.Image, error) {
	minX, minY, maxX, maxY := tileWebMercatorBounds(z, x, y)

	r.mapObject.SetSRS(webMercatorSRS)
	r.mapObject.ZoomTo(minX, minY, maxX, maxY)

	img, err := r.mapObject.RenderImage(mapnik.RenderOpts{Format: "png32"})
	if err != nil {
		return nil, fmt.Errorf("renderer: render tile: %w", err)
	}
	return img, nil
}

// RenderToFile renders the tile at (z,x,y) directly to outputPath.
func (r *MapnikRasterizer) RenderToFile(z, x, y int32, outputPath string) error {
	minX, minY, maxX, maxY := tileWebMercatorBounds(z, x, y)

	r.mapObject.SetSRS(webMercatorSRS)
	r.mapObject.ZoomTo(minX, minY, maxX, maxY)

	if err := r.mapObject.RenderToFile(mapnik.RenderOpts{Format: "png32"}, outputPath); err != nil {
		return fmt.Errorf("renderer: render to file: %w", err)
	}
	return nil
}

// Close releases the underlying Mapnik map object. A MapnikRasterizer
// must not be used after Close.
func (r *MapnikRasterizer) Close() error {
	if r.mapObject != nil {
		r.mapObject.Free()
		r.mapObject = nil
	}
	return nil
}

// SetBackgroundColor sets the map background (hex string like "#f8f4e8").
func (r *MapnikRasterizer) SetBackgroundColor(hexColor string) error {
	c, err := parseHexColor(hexColor)
	if err != nil {
		return fmt.Errorf("renderer: invalid background color: %w", err)
	}
	r.mapObject.SetBackgroundColor(c)
	return nil
}

// SetBufferSize sets the buffer around the tile used for label placement.
func (r *MapnikRasterizer) SetBufferSize(pixels int) {
	r.mapObject.SetBufferSize(pixels)
}

// LoadXML loads a Mapnik style given as an XML string, via a temp file
// since go-mapnik only loads styles from disk.
func (r *MapnikRasterizer) LoadXML(xmlString string) error {
	tmpFile, err := os.CreateTemp("", "tilecached-style-*.xml")
	if err != nil {
		return fmt.Errorf("renderer: create temp style file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.WriteString(xmlString); err != nil {
		tmpFile.Close()
		return fmt.Errorf("renderer: write temp style file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("renderer: close temp style file: %w", err)
	}

	if err := r.mapObject.Load(tmpPath); err != nil {
		return fmt.Errorf("renderer: load XML style: %w", err)
	}
	return nil
}

// tileWebMercatorBounds converts a tile coordinate to its Web Mercator
// (EPSG:3857) extent, in meters.
func tileWebMercatorBounds(z, x, y int32) (minX, minY, maxX, maxY float64) {
	lonW, latN := tilemath.LonLatFromXYZ(x, y, z, tilemath.PositionTopLeft)
	lonE, latS := tilemath.LonLatFromXYZ(x, y, z, tilemath.PositionBottomRight)

	minX, maxY = lonLatToWebMercator(lonW, latN)
	maxX, minY = lonLatToWebMercator(lonE, latS)
	return minX, minY, maxX, maxY
}

func lonLatToWebMercator(lon, lat float64) (x, y float64) {
	x = lon * earthRadius * math.Pi / 180.0
	latRad := lat * math.Pi / 180.0
	y = earthRadius * math.Log(math.Tan(math.Pi/4.0+latRad/2.0))
	return x, y
}

func parseHexColor(s string) (color.NRGBA, error) {
	if len(s) > 0 && s[0] == '#' {
		s = s[1:]
	}

	var r, g, b, a uint8 = 0, 0, 0, 255
	switch len(s) {
	case 6:
		if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
			return color.NRGBA{}, err
		}
	case 8:
		if _, err := fmt.Sscanf(s, "%02x%02x%02x%02x", &r, &g, &b, &a); err != nil {
			return color.NRGBA{}, err
		}
	default:
		return color.NRGBA{}, fmt.Errorf("renderer: invalid hex color length: %d", len(s))
	}
	return color.NRGBA{R: r, G: g, B: b, A: a}, nil
}
