package images

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/nfnt/resize"
)

// letterboxFill is the grey used by ultralytics-style letterboxing.
var letterboxFill = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// Letterbox describes how a source image was fitted into a model input.
type Letterbox struct {
	// Scale applied to the source image.
	Scale float64
	// PadX, PadY are the offsets of the scaled image inside the canvas.
	PadX, PadY float64
}

// Unmap maps a box from model-input coordinates back to source-image
// coordinates.
func (l Letterbox) Unmap(r Rect) Rect {
	if l.Scale == 0 {
		return r
	}
	return Rect{
		X1: (r.X1 - l.PadX) / l.Scale,
		Y1: (r.Y1 - l.PadY) / l.Scale,
		X2: (r.X2 - l.PadX) / l.Scale,
		Y2: (r.Y2 - l.PadY) / l.Scale,
	}
}

// LetterboxImage resizes img to fit inside a width x height canvas while
// preserving the aspect ratio, padding the remainder.
//
// Arguments:
//   - img: The source image.
//   - width: The canvas width.
//   - height: The canvas height.
//
// Returns:
//   - *image.RGBA: The padded canvas.
//   - Letterbox: The transform needed to map boxes back to img.
func LetterboxImage(img image.Image, width, height int) (*image.RGBA, Letterbox) {
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: letterboxFill}, image.Point{}, draw.Src)

	b := img.Bounds()
	if b.Empty() || width <= 0 || height <= 0 {
		return canvas, Letterbox{}
	}

	scale := min(float64(width)/float64(b.Dx()), float64(height)/float64(b.Dy()))
	newW := max(1, int(float64(b.Dx())*scale))
	newH := max(1, int(float64(b.Dy())*scale))
	scaled := resize.Resize(uint(newW), uint(newH), img, resize.Bilinear)

	padX := (width - newW) / 2
	padY := (height - newH) / 2
	draw.Draw(canvas, image.Rect(padX, padY, padX+newW, padY+newH), scaled, scaled.Bounds().Min, draw.Src)

	return canvas, Letterbox{Scale: scale, PadX: float64(padX), PadY: float64(padY)}
}
