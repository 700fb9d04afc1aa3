package renderer

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/gift"
	"github.com/gen2brain/webp"
)

// RenderRequest is one render call's parameters (4.G).
type RenderRequest struct {
	Zoom     int32
	CenterLon, CenterLat float64
	TileSize int // the caller-facing tile size, usually 256
	Scale    int // 1x, 2x, ...
}

// rasterPlan is the resolved zoom/size to actually hand the native
// rasterizer, after the zoom-0 256-tile hack and the off-by-one zoom
// convention adjustment.
type rasterPlan struct {
	rasterZoom   int32
	rasterWidth  int
	rasterHeight int
	downsampleTo int // 0 means no downsample
}

// planRaster resolves 4.G's zoom-0 256-tile hack: at tileSize=256 and
// z=0, the rasterizer renders at 512x512 and the result is downsampled;
// for every other zoom, z-1 is passed to the rasterizer to account for
// its internal zoom convention.
func planRaster(req RenderRequest) rasterPlan {
	size := req.TileSize * req.Scale

	if req.TileSize == 256 && req.Zoom == 0 {
		doubled := size * 2
		return rasterPlan{rasterZoom: 0, rasterWidth: doubled, rasterHeight: doubled, downsampleTo: size}
	}

	rasterZoom := req.Zoom
	if req.TileSize == 256 {
		rasterZoom = req.Zoom - 1
	}
	return rasterPlan{rasterZoom: rasterZoom, rasterWidth: size, rasterHeight: size}
}

// Finalize rasterizes one render request through r, applying the zoom-0
// hack and re-encoding to the requested format.
func Finalize(r *MapnikRasterizer, req RenderRequest, z, x, y int32, format string) ([]byte, error) {
	plan := planRaster(req)

	img, err := r.RenderTile(plan.rasterZoom, x, y)
	if err != nil {
		return nil, fmt.Errorf("renderer: finalize: %w", err)
	}

	if plan.downsampleTo != 0 {
		img = downsample(img, plan.downsampleTo, plan.downsampleTo)
	}

	return Encode(img, format)
}

// downsample resizes img to w x h using a Lanczos filter, matching the
// zoom-0 256-tile hack's "rasterize at 512, downsample to 256" step.
func downsample(img image.Image, w, h int) image.Image {
	g := gift.New(gift.Resize(w, h, gift.LanczosResampling))
	dst := image.NewNRGBA(g.Bounds(img.Bounds()))
	g.Draw(dst, img)
	return dst
}

// Encode re-encodes a raw rasterized image into the requested output
// format (4.G): PNG at level 9, JPEG at quality 100, WebP at quality
// 100, GIF at its package default. "pbf" is not a legal render output.
func Encode(img image.Image, format string) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("renderer: encode png: %w", err)
		}
	case "jpeg", "jpg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
			return nil, fmt.Errorf("renderer: encode jpeg: %w", err)
		}
	case "webp":
		if err := webp.Encode(&buf, img, webp.Options{Quality: 100}); err != nil {
			return nil, fmt.Errorf("renderer: encode webp: %w", err)
		}
	case "gif":
		if err := gif.Encode(&buf, img, nil); err != nil {
			return nil, fmt.Errorf("renderer: encode gif: %w", err)
		}
	default:
		return nil, fmt.Errorf("renderer: %q is not a legal render output format", format)
	}
	return buf.Bytes(), nil
}
