package assets

import (
	"context"
	"fmt"
	"path/filepath"
)

// FontRangeSize is the fixed glyph-range width fonts are cached in:
// ranges run 0-255, 256-511, ... up to 65280-65535 (256 total ranges).
const FontRangeSize = 256

// FontRangeCount is the number of fixed ranges covering the full glyph
// ID space in steps of FontRangeSize.
const FontRangeCount = 65536 / FontRangeSize

// FontCache manages PBF glyph-range files named "<start>-<end>.pbf".
type FontCache struct {
	*Cache
}

// NewFontCache builds a FontCache rooted at dir.
func NewFontCache(dir string) *FontCache {
	return &FontCache{Cache: NewCache(KindFont, dir)}
}

// RangeFileName returns the fixed file name for the range starting at
// start, e.g. RangeFileName(256) -> "256-511.pbf".
func RangeFileName(start int) string {
	return fmt.Sprintf("%d-%d.pbf", start, start+FontRangeSize-1)
}

// RangeStart rounds down glyphID to the start of its fixed range.
func RangeStart(glyphID int) int {
	return (glyphID / FontRangeSize) * FontRangeSize
}

// ReadRange reads the glyph-range file covering glyphID for font id.
func (f *FontCache) ReadRange(ctx context.Context, id string, glyphID int) ([]byte, error) {
	start := RangeStart(glyphID)
	return f.Cache.Read(ctx, filepath.Join(id, RangeFileName(start)))
}

// Read implements renderer.AssetSource: id is the font name, file is
// the fixed "<start>-<end>.pbf" range file name. Shadows the embedded
// Cache.Read, which takes a single combined name.
func (f *FontCache) Read(ctx context.Context, id, file string) ([]byte, error) {
	return f.Cache.Read(ctx, filepath.Join(id, file))
}
