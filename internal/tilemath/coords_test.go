package tilemath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLonLatFromXYZ_TopLeftOrigin(t *testing.T) {
	lon, lat := LonLatFromXYZ(0, 0, 0, PositionTopLeft)
	assert.InDelta(t, -180.0, lon, 1e-6)
	assert.InDelta(t, MaxLat, lat, 1e-3)
}

func TestLonLatFromXYZ_Center(t *testing.T) {
	lon, lat := LonLatFromXYZ(1, 1, 1, PositionCenter)
	assert.InDelta(t, 90.0, lon, 1e-6)
	assert.Less(t, lat, 0.0)
	assert.InDelta(t, -66.51326, lat, 0.01)
}

func TestXYZFromLonLatZ_Clamps(t *testing.T) {
	c := XYZFromLonLatZ(200, 100, 3)
	assert.Equal(t, Coords{Z: 3, X: 7, Y: 0}, c)
}

func TestXYZLonLatRoundTrip(t *testing.T) {
	for z := int32(0); z <= 10; z++ {
		for x := int32(0); x <= 3 && x < int32(1)<<uint(z); x++ {
			for y := int32(0); y <= 3 && y < int32(1)<<uint(z); y++ {
				lon, lat := LonLatFromXYZ(x, y, z, PositionTopLeft)
				got := XYZFromLonLatZ(lon, lat, z)
				require.Equal(t, x, got.X, "z=%d x=%d y=%d", z, x, y)
				require.Equal(t, y, got.Y, "z=%d x=%d y=%d", z, x, y)
			}
		}
	}
}

func TestFlipIsInvolution(t *testing.T) {
	for z := int32(0); z <= 8; z++ {
		for y := int32(0); y < int32(1)<<uint(z); y++ {
			assert.Equal(t, y, Flip(z, Flip(z, y)))
		}
	}
}

func TestBoundFromBBox_ZeroZoomWholeWorld(t *testing.T) {
	cov := Coverage{Zoom: 0, BBox: BBox{-180, -MaxLat, 180, MaxLat}}
	b := cov.Expand(SchemeXYZ)
	assert.Equal(t, Bound{Z: 0, XMin: 0, YMin: 0, XMax: 0, YMax: 0}, b)
	assert.EqualValues(t, 1, b.Total())
}

func TestBound_ForEachMatchesTotal(t *testing.T) {
	b := Bound{Z: 5, XMin: 2, YMin: 3, XMax: 4, YMax: 6}
	count := 0
	b.ForEach(func(x, y int32) { count++ })
	assert.EqualValues(t, b.Total(), count)
}

func TestBBoxFromTilesCoversInput(t *testing.T) {
	bbox := BBox{10, 10, 20, 20}
	cov := Coverage{Zoom: 6, BBox: bbox}
	b := cov.Expand(SchemeXYZ)
	out := BBoxFromTiles(b)
	assert.LessOrEqual(t, out[0], bbox[0]+1e-6)
	assert.LessOrEqual(t, out[1], bbox[1]+1e-6)
	assert.GreaterOrEqual(t, out[2], bbox[2]-1e-6)
	assert.GreaterOrEqual(t, out[3], bbox[3]-1e-6)
}

func TestFlipForScheme(t *testing.T) {
	assert.Equal(t, int32(5), FlipForScheme(SchemeXYZ, 4, 5))
	assert.Equal(t, Flip(4, 5), FlipForScheme(SchemeTMS, 4, 5))
}
