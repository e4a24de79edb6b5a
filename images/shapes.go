// Package images - Image geometry and decoding utilities.
package images

import (
	"image"
	"math"
)

// Rect is an axis-aligned bounding box in source-image pixel coordinates.
//
// Coordinates are floating point so that boxes reprojected through a
// homography keep their sub-pixel position.
type Rect struct {
	X1, Y1, X2, Y2 float64
}

// Valid reports whether the rectangle has x1 < x2 and y1 < y2 and no NaN or
// infinite coordinates.
func (r Rect) Valid() bool {
	for _, v := range [...]float64{r.X1, r.Y1, r.X2, r.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return r.X1 < r.X2 && r.Y1 < r.Y2
}

// Width returns the horizontal extent, or 0 for an inverted rectangle.
func (r Rect) Width() float64 {
	return math.Max(0, r.X2-r.X1)
}

// Height returns the vertical extent, or 0 for an inverted rectangle.
func (r Rect) Height() float64 {
	return math.Max(0, r.Y2-r.Y1)
}

// Area returns the rectangle area in square pixels.
func (r Rect) Area() float64 {
	return r.Width() * r.Height()
}

// Canon returns the rectangle with its corners ordered so that X1 <= X2 and
// Y1 <= Y2.
func (r Rect) Canon() Rect {
	if r.X1 > r.X2 {
		r.X1, r.X2 = r.X2, r.X1
	}
	if r.Y1 > r.Y2 {
		r.Y1, r.Y2 = r.Y2, r.Y1
	}
	return r
}

// FromRectangle converts an integral image.Rectangle into a Rect.
func FromRectangle(r image.Rectangle) Rect {
	r = r.Canon()
	return Rect{
		X1: float64(r.Min.X),
		Y1: float64(r.Min.Y),
		X2: float64(r.Max.X),
		Y2: float64(r.Max.Y),
	}
}

// ToRectangle converts the box to an image.Rectangle, rounding outward so that
// the integral box always covers the floating point one.
func (r Rect) ToRectangle() image.Rectangle {
	c := r.Canon()
	return image.Rect(
		int(math.Floor(c.X1)),
		int(math.Floor(c.Y1)),
		int(math.Ceil(c.X2)),
		int(math.Ceil(c.Y2)),
	)
}

// CalculateIoU computes the Intersection over Union of two boxes.
//
// IoU is the overlap metric used to decide whether two boxes describe the same
// object:
//
//	IoU = Area of Intersection / Area of Union
//
//	- 1.0 means the rectangles are identical.
//	- 0.0 means the rectangles don't overlap at all.
//	- 0.5 means the intersection is half the size of the area they cover combined.
//
// The intersection is bounded by the maximum of the top-left corners and the
// minimum of the bottom-right corners. When its width or height is zero or
// negative the boxes do not overlap and the result is 0. The union uses the
// inclusion-exclusion principle:
//
//	Area(Union) = Area(A) + Area(B) - Area(Intersection)
//
// A union area of 0 (two degenerate boxes) yields 0 rather than NaN.
//
// Arguments:
//   - r: The first rectangle.
//   - o: The other rectangle to compare against.
//
// Returns:
//   - float64: A value between 0.0 and 1.0 representing the IoU score.
//
// Example Usage:
// ```go
//
//	rect1 := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	rect2 := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//
//	iouScore := CalculateIoU(rect1, rect2) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float64 {
	ix1 := math.Max(r.X1, o.X1)
	iy1 := math.Max(r.Y1, o.Y1)
	ix2 := math.Min(r.X2, o.X2)
	iy2 := math.Min(r.Y2, o.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0.0
	}

	return interArea / unionArea
}
