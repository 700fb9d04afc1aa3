package imgformat

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectPNG(t *testing.T) {
	data := append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, 0, 0, 0)
	info := Detect(data)
	assert.Equal(t, FormatPNG, info.Format)
	assert.Equal(t, "image/png", info.ContentType)
}

func TestDetectJPEG(t *testing.T) {
	data := []byte{0xFF, 0xD8, 1, 2, 3, 0xFF, 0xD9}
	info := Detect(data)
	assert.Equal(t, FormatJPEG, info.Format)
}

func TestDetectGIF(t *testing.T) {
	info := Detect([]byte("GIF89a...."))
	assert.Equal(t, FormatGIF, info.Format)
	info = Detect([]byte("GIF87a...."))
	assert.Equal(t, FormatGIF, info.Format)
}

func TestDetectWebP(t *testing.T) {
	data := append([]byte("RIFF"), 0, 0, 0, 0)
	data = append(data, []byte("WEBP")...)
	info := Detect(data)
	assert.Equal(t, FormatWebP, info.Format)
}

func TestDetectPBFEncodings(t *testing.T) {
	assert.Equal(t, EncodingGzip, Detect([]byte{0x1F, 0x8B, 0, 0}).Encoding)
	assert.Equal(t, EncodingDeflate, Detect([]byte{0x78, 0x9C, 0, 0}).Encoding)
	plain := Detect([]byte{0x0A, 0x01, 0x02})
	assert.Equal(t, FormatPBF, plain.Format)
	assert.Equal(t, EncodingNone, plain.Encoding)
}

func TestIsFullyTransparentPNG(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.Set(x, y, color.NRGBA{R: 10, G: 20, B: 30, A: 0})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	assert.True(t, IsFullyTransparent(buf.Bytes()))

	img.Set(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	buf.Reset()
	require.NoError(t, png.Encode(&buf, img))
	assert.False(t, IsFullyTransparent(buf.Bytes()))
}

func TestIsFullyTransparentNonImage(t *testing.T) {
	assert.False(t, IsFullyTransparent([]byte{0x0A, 0x01, 0x02}))
}
