// Package tilemath implements the XYZ/TMS tile coordinate math described
// in the tile-coordinate math component: lon/lat <-> tile conversions,
// bbox <-> tile-range expansion, and coverage enumeration. The
// lon/lat<->tile projection itself is delegated to paulmach/orb/maptile
// (the teacher's own choice in internal/tile/coords.go); this package
// adds the XYZ/TMS row flip and pixel-anchor/coverage semantics orb
// doesn't model.
package tilemath

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// TileSize is the reference tile-pixel size all math in this package
// assumes (256px tiles).
const TileSize = 256

// MaxLat is the Web Mercator latitude clamp (north and south).
const MaxLat = 85.051129

// Scheme distinguishes the two row-numbering conventions a store may use.
type Scheme int

const (
	// SchemeXYZ numbers rows from the top (north) down. All internal
	// structures use this convention.
	SchemeXYZ Scheme = iota
	// SchemeTMS numbers rows from the bottom (south) up.
	SchemeTMS
)

// Coords identifies a single tile. Invariants: 0 <= Z <= 22 and
// 0 <= X,Y < 2^Z.
type Coords struct {
	Z, X, Y int32
}

// String renders the slash-joined tile name "z/x/y".
func (c Coords) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

// Flip converts a row between XYZ and TMS. Applying it twice is the
// identity.
func Flip(z, y int32) int32 {
	return int32(1<<uint(z)) - 1 - y
}

// FlipForScheme converts the XYZ row y to the row a store of the given
// scheme expects on disk/in its index.
func FlipForScheme(s Scheme, z, y int32) int32 {
	if s == SchemeTMS {
		return Flip(z, y)
	}
	return y
}

// Position selects which corner of a tile's pixel box a lon/lat
// conversion anchors to.
type Position int

const (
	PositionTopLeft Position = iota
	PositionCenter
	PositionBottomRight
)

func clampLon(lon float64) float64 {
	if lon < -180 {
		return -180
	}
	if lon > 180 {
		return 180
	}
	return lon
}

func clampLat(lat float64) float64 {
	if lat < -MaxLat {
		return -MaxLat
	}
	if lat > MaxLat {
		return MaxLat
	}
	return lat
}

func clampCoord(v int32, z int32) int32 {
	max := int32(1<<uint(z)) - 1
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// XYZFromLonLatZ converts a (lon, lat) point at zoom z to a tile
// coordinate, clamping lon/lat to their legal domains and x/y to
// [0, 2^z-1].
func XYZFromLonLatZ(lon, lat float64, z int32) Coords {
	lon = clampLon(lon)
	lat = clampLat(lat)

	t := maptile.At(orb.Point{lon, lat}, maptile.Zoom(z))

	return Coords{
		Z: z,
		X: clampCoord(int32(t.X), z),
		Y: clampCoord(int32(t.Y), z),
	}
}

// LonLatFromXYZ is the inverse of XYZFromLonLatZ, anchored at the given
// pixel position within the tile. orb's tile Bound() gives the tile's
// geographic box as (Min: south-west, Max: north-east); PositionTopLeft
// is the tile's north-west corner and PositionBottomRight its
// south-east corner, matching the XYZ (north-down) row convention.
func LonLatFromXYZ(x, y, z int32, pos Position) (lon, lat float64) {
	bound := maptile.New(uint32(x), uint32(y), maptile.Zoom(z)).Bound()

	switch pos {
	case PositionTopLeft:
		return bound.Min.Lon(), bound.Max.Lat()
	case PositionBottomRight:
		return bound.Max.Lon(), bound.Min.Lat()
	default: // PositionCenter
		center := bound.Center()
		return center.Lon(), center.Lat()
	}
}

// Bound is an inclusive tile range at a single zoom level.
type Bound struct {
	Z          int32
	XMin, YMin int32
	XMax, YMax int32
}

// Total returns the number of tiles in the bound.
func (b Bound) Total() int64 {
	return int64(b.XMax-b.XMin+1) * int64(b.YMax-b.YMin+1)
}

// ForEach calls fn for every tile in the bound, in (x-major, y-major)
// order.
func (b Bound) ForEach(fn func(x, y int32)) {
	for x := b.XMin; x <= b.XMax; x++ {
		for y := b.YMin; y <= b.YMax; y++ {
			fn(x, y)
		}
	}
}

// BBox is a geographic bounding box: [lonMin, latMin, lonMax, latMax].
type BBox [4]float64

// BoundFromBBox expands a bbox at a given zoom to a tile Bound, using
// topLeft for the min corner and bottomRight for the max corner as
// specified for bboxFromTiles/coverage->tileBound.
func BoundFromBBox(bbox BBox, z int32, scheme Scheme) Bound {
	minTile := XYZFromLonLatZ(bbox[0], bbox[3], z) // topLeft: west, north
	maxTile := XYZFromLonLatZ(bbox[2], bbox[1], z) // bottomRight: east, south

	xMin, xMax := minTile.X, maxTile.X
	if xMin > xMax {
		xMin, xMax = xMax, xMin
	}
	yMin, yMax := minTile.Y, maxTile.Y
	if yMin > yMax {
		yMin, yMax = yMax, yMin
	}

	if scheme == SchemeTMS {
		yMin, yMax = Flip(z, yMax), Flip(z, yMin)
	}

	return Bound{Z: z, XMin: xMin, YMin: yMin, XMax: xMax, YMax: yMax}
}

// BBoxFromTiles returns the geographic bounding box covered by a Bound,
// in XYZ terms (the Bound itself may already have been flipped to TMS by
// the caller if needed).
func BBoxFromTiles(b Bound) BBox {
	lonMin, latMax := LonLatFromXYZ(b.XMin, b.YMin, b.Z, PositionTopLeft)
	lonMax, latMin := LonLatFromXYZ(b.XMax, b.YMax, b.Z, PositionBottomRight)
	return BBox{lonMin, latMin, lonMax, latMax}
}

// Coverage is a (zoom, bbox) pair that enumerates to a tile range.
type Coverage struct {
	Zoom int32
	BBox BBox
}

// Expand converts the coverage into its tile Bound for the given scheme.
func (c Coverage) Expand(scheme Scheme) Bound {
	return BoundFromBBox(c.BBox, c.Zoom, scheme)
}
