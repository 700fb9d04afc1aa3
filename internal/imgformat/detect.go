// Package imgformat inspects raw tile bytes to identify their format and
// compression wrapping, per the byte-format detection component. The
// magic-byte sniffing itself is a handful of byte comparisons and stays
// on the standard library (see DESIGN.md); decoding a payload well
// enough to inspect its pixels reaches for golang.org/x/image's WebP
// decoder, the teacher's own choice for anything beyond PNG, and the
// standard library's image/draw.
package imgformat

import (
	"bytes"
	"image"
	"image/draw"
	"image/png"

	"golang.org/x/image/webp"
)

// Format is one of the recognized tile payload formats.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
	FormatWebP Format = "webp"
	FormatPBF  Format = "pbf"
)

// Encoding is the content-encoding a PBF payload may be wrapped in.
type Encoding string

const (
	EncodingNone    Encoding = ""
	EncodingGzip    Encoding = "gzip"
	EncodingDeflate Encoding = "deflate"
)

// Info is the result of detecting a byte payload's format.
type Info struct {
	Format      Format
	ContentType string
	Encoding    Encoding
}

var (
	pngMagic  = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	jpegStart = []byte{0xFF, 0xD8}
	jpegEnd   = []byte{0xFF, 0xD9}
	gifMagic1 = []byte("GIF89a")
	gifMagic2 = []byte("GIF87a")
	riffMagic = []byte("RIFF")
	webpMagic = []byte("WEBP")
	gzipMagic = []byte{0x1F, 0x8B}
	zlibMagic = []byte{0x78, 0x9C}
)

// Detect inspects the magic bytes of data and returns its format, MIME
// content-type, and (for PBF only) compression wrapping.
func Detect(data []byte) Info {
	switch {
	case bytes.HasPrefix(data, pngMagic):
		return Info{Format: FormatPNG, ContentType: "image/png"}
	case len(data) >= 4 && bytes.HasPrefix(data, jpegStart) && bytes.HasSuffix(data, jpegEnd):
		return Info{Format: FormatJPEG, ContentType: "image/jpeg"}
	case len(data) >= 6 && (bytes.HasPrefix(data, gifMagic1) || bytes.HasPrefix(data, gifMagic2)):
		return Info{Format: FormatGIF, ContentType: "image/gif"}
	case len(data) >= 12 && bytes.HasPrefix(data, riffMagic) && bytes.Equal(data[8:12], webpMagic):
		return Info{Format: FormatWebP, ContentType: "image/webp"}
	default:
		info := Info{Format: FormatPBF, ContentType: "application/x-protobuf"}
		switch {
		case bytes.HasPrefix(data, zlibMagic):
			info.Encoding = EncodingDeflate
		case bytes.HasPrefix(data, gzipMagic):
			info.Encoding = EncodingGzip
		}
		return info
	}
}

// IsFullyTransparent decodes data (PNG or WebP, per Detect) and reports
// whether every pixel's alpha channel is zero. Any other format, or
// undecodable data, returns false. This is the origin-fetch transparent
// tile check (4.E/4.H's storeTransparent gate); origins may hand back
// either format, so the WebP path falls back to golang.org/x/image/webp
// rather than only ever recognizing PNG.
func IsFullyTransparent(data []byte) bool {
	var img image.Image
	var err error

	switch Detect(data).Format {
	case FormatPNG:
		img, err = png.Decode(bytes.NewReader(data))
	case FormatWebP:
		img, err = webp.Decode(bytes.NewReader(data))
	default:
		return false
	}
	if err != nil {
		return false
	}

	b := img.Bounds()
	rgba, ok := img.(*image.NRGBA)
	if !ok {
		converted := image.NewNRGBA(b)
		draw.Draw(converted, b, img, b.Min, draw.Src)
		rgba = converted
	}

	for i := 3; i < len(rgba.Pix); i += 4 {
		if rgba.Pix[i] != 0 {
			return false
		}
	}
	return true
}
