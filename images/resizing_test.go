package images

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 0, A: 255})
		}
	}

	return img
}

func getPNGBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, getTestImage(100, 60)))
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, getTestImage(100, 60), nil))

	var wp bytes.Buffer
	require.NoError(t, webp.Encode(&wp, getTestImage(100, 60), &webp.Options{Lossless: true}))

	tests := []struct {
		name   string
		data   []byte
		format ImageFormat
	}{
		{"jpeg", jpg.Bytes(), FormatJPEG},
		{"png", getPNGBytes(t), FormatPNG},
		{"webp", wp.Bytes(), FormatWebP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, format, err := Decode(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.format, format)
			assert.Equal(t, 100, img.Bounds().Dx())
			assert.Equal(t, 60, img.Bounds().Dy())
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	_, _, err := Decode(nil)
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, _, err = Decode([]byte("definitely not an image"))
	assert.Error(t, err)
}

func TestDecodeBase64(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString(getPNGBytes(t))

	img, err := DecodeBase64(raw)
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())

	img, err = DecodeBase64("data:image/png;base64," + raw)
	require.NoError(t, err)
	assert.Equal(t, 60, img.Bounds().Dy())

	_, err = DecodeBase64("%%%")
	assert.Error(t, err)
}

func TestLetterboxImage(t *testing.T) {
	canvas, lb := LetterboxImage(getTestImage(200, 100), 640, 640)
	assert.Equal(t, image.Rect(0, 0, 640, 640), canvas.Bounds())
	assert.InDelta(t, 3.2, lb.Scale, 1e-9)
	assert.Equal(t, 0.0, lb.PadX)
	assert.Equal(t, 160.0, lb.PadY)

	// The padding keeps the letterbox grey, the content keeps the source colour.
	assert.Equal(t, letterboxFill, canvas.RGBAAt(320, 10))
	assert.Equal(t, color.RGBA{R: 255, A: 255}, canvas.RGBAAt(320, 320))

	src := lb.Unmap(Rect{X1: 0, Y1: 160, X2: 640, Y2: 480})
	assert.InDelta(t, 0, src.X1, 1e-9)
	assert.InDelta(t, 0, src.Y1, 1e-9)
	assert.InDelta(t, 200, src.X2, 1e-9)
	assert.InDelta(t, 100, src.Y2, 1e-9)
}
