package images

import (
	"math/rand"
	"testing"
)

// BenchmarkIoU_NonOverlapping tests performance with rectangles that don't overlap.
// This is the early-return path.
func BenchmarkIoU_NonOverlapping(b *testing.B) {
	rect1 := Rect{X1: 0, Y1: 0, X2: 100, Y2: 100}
	rect2 := Rect{X1: 200, Y1: 200, X2: 300, Y2: 300}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = CalculateIoU(rect1, rect2)
	}
}

// BenchmarkIoU_PartialOverlap tests the common duplicate check between a
// reprojected box and a native one.
func BenchmarkIoU_PartialOverlap(b *testing.B) {
	rect1 := Rect{X1: 0, Y1: 0, X2: 100, Y2: 100}
	rect2 := Rect{X1: 50.5, Y1: 50.25, X2: 150.5, Y2: 150.25}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = CalculateIoU(rect1, rect2)
	}
}

// BenchmarkIoU_AllPairs measures an all-pairs duplicate scan over two views
// of a crowded shelf.
func BenchmarkIoU_AllPairs(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	boxes := func(n int) []Rect {
		out := make([]Rect, n)
		for i := range out {
			x, y := rng.Float64()*1200, rng.Float64()*600
			out[i] = Rect{X1: x, Y1: y, X2: x + 20 + rng.Float64()*60, Y2: y + 40 + rng.Float64()*120}
		}
		return out
	}
	a, o := boxes(60), boxes(60)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, r := range a {
			for _, s := range o {
				_ = CalculateIoU(r, s)
			}
		}
	}
}
