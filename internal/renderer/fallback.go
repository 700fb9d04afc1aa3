package renderer

// Fallback opaque tile payloads (4.F): returned by the request router
// when a sub-resource can't be resolved, so the rasterizer can still
// complete instead of failing the whole render. Each is a tiny 1x1
// image in its format (zero bytes for pbf): the PNG and GIF are fully
// transparent, the JPEG is solid white and the WebP is lossy.
var (
	// fallbackPNG is a 1x1 fully-transparent RGBA PNG.
	fallbackPNG = []byte{
		0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A,
		0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
		0x89, 0x00, 0x00, 0x00, 0x0E, 0x49, 0x44, 0x41,
		0x54, 0x78, 0xDA, 0x62, 0x60, 0x60, 0x60, 0x60,
		0x00, 0x0C, 0x00, 0x00, 0x05, 0x00, 0x01, 0x0A,
		0x7D, 0xA9, 0x34, 0x00, 0x00, 0x00, 0x00, 0x49,
		0x45, 0x4E, 0x44, 0xAE, 0x42, 0x60, 0x82,
	}

	// fallbackJPEG is a 1x1 solid white arithmetic-coded (SOF9) JPEG.
	fallbackJPEG = []byte{
		0xFF, 0xD8, 0xFF, 0xDB, 0x00, 0x43, 0x00, 0x03, 0x02, 0x02,
		0x02, 0x02, 0x02, 0x03, 0x02, 0x02, 0x02, 0x03, 0x03, 0x03,
		0x03, 0x04, 0x06, 0x04, 0x04, 0x04, 0x04, 0x04, 0x08, 0x06,
		0x06, 0x05, 0x06, 0x09, 0x08, 0x0A, 0x0A, 0x09, 0x08, 0x09,
		0x09, 0x0A, 0x0C, 0x0F, 0x0C, 0x0A, 0x0B, 0x0E, 0x0B, 0x09,
		0x09, 0x0D, 0x11, 0x0D, 0x0E, 0x0F, 0x10, 0x10, 0x11, 0x10,
		0x0A, 0x0C, 0x12, 0x13, 0x12, 0x10, 0x13, 0x0F, 0x10, 0x10,
		0x10, 0xFF, 0xC9, 0x00, 0x0B, 0x08, 0x00, 0x01, 0x00, 0x01,
		0x01, 0x01, 0x11, 0x00, 0xFF, 0xCC, 0x00, 0x06, 0x00, 0x10,
		0x10, 0x05, 0xFF, 0xDA, 0x00, 0x08, 0x01, 0x01, 0x00, 0x00,
		0x3F, 0x00, 0xD2, 0xCF, 0x20, 0xFF, 0xD9,
	}

	// fallbackGIF is a 1x1 transparent GIF89a.
	fallbackGIF = []byte{
		0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
		0x80, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF, 0xFF, 0xFF, 0x21,
		0xF9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2C, 0x00, 0x00,
		0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44,
		0x01, 0x00, 0x3B,
	}

	// fallbackWebP is a 1x1 lossy WebP.
	fallbackWebP = []byte{
		0x52, 0x49, 0x46, 0x46, 0x1A, 0x00, 0x00, 0x00, 0x57, 0x45,
		0x42, 0x50, 0x56, 0x50, 0x38, 0x20, 0x0E, 0x00, 0x00, 0x00,
		0x10, 0x01, 0x00, 0x9D, 0x01, 0x2A, 0x01, 0x00, 0x01, 0x00,
		0x02, 0x00, 0x34, 0x25, 0xA4, 0x00, 0x03, 0x70, 0x00, 0xFE,
		0xFB, 0xFD, 0x50, 0x00,
	}

	// fallbackPBF is an empty vector tile: zero bytes is a valid (empty)
	// protobuf message.
	fallbackPBF = []byte{}
)

// Fallback returns the fallback payload for a declared tile/image
// format. Unknown formats fall back to PNG, the most common raster
// format in this system.
func Fallback(format string) []byte {
	switch format {
	case "jpeg", "jpg":
		return fallbackJPEG
	case "gif":
		return fallbackGIF
	case "webp":
		return fallbackWebP
	case "pbf", "mvt":
		return fallbackPBF
	default:
		return fallbackPNG
	}
}
