package assets

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// SpriteCache manages paired {id.json, id.png} sprite sheets, optionally
// at @2x, rooted under one Cache.
type SpriteCache struct {
	*Cache
}

// NewSpriteCache builds a SpriteCache rooted at dir.
func NewSpriteCache(dir string) *SpriteCache {
	return &SpriteCache{Cache: NewCache(KindSprite, dir)}
}

// spriteFile builds the on-disk file name for a sprite id, variant
// ("" or "@2x"), and extension (".json" or ".png").
func spriteFile(id, variant, ext string) string {
	return id + variant + ext
}

// ReadPair reads the index.json and sheet.png for id, at the given
// variant ("" for 1x, "@2x" for 2x).
func (s *SpriteCache) ReadPair(ctx context.Context, id, variant string) (indexJSON, sheetPNG []byte, err error) {
	indexJSON, err = s.Cache.Read(ctx, spriteFile(id, variant, ".json"))
	if err != nil {
		return nil, nil, fmt.Errorf("assets: sprite %s%s index: %w", id, variant, err)
	}
	sheetPNG, err = s.Cache.Read(ctx, spriteFile(id, variant, ".png"))
	if err != nil {
		return nil, nil, fmt.Errorf("assets: sprite %s%s sheet: %w", id, variant, err)
	}
	return indexJSON, sheetPNG, nil
}

// Read implements renderer.AssetSource: id is the sprite set name, file
// is the requested file within it (e.g. "sprite.json", "sprite@2x.png").
// Shadows the embedded Cache.Read, which takes a single combined name.
func (s *SpriteCache) Read(ctx context.Context, id, file string) ([]byte, error) {
	return s.Cache.Read(ctx, filepath.Join(id, file))
}

// IsSpriteAsset reports whether name looks like a sprite index or sheet
// file, optionally at @2x.
func IsSpriteAsset(name string) bool {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.TrimSuffix(base, "@2x")
	return base != "" && (strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".png"))
}
