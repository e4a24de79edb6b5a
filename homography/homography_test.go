package homography

import (
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-multiview/images"
)

// perspective is a mild projective transform of the kind seen between two
// shelf cameras a few degrees apart.
var perspective = Homography{
	{1.05, 0.02, 12},
	{-0.01, 0.98, -7},
	{0.0001, 0.00005, 1},
}

func grid(h Homography, n int, step float64) []Correspondence {
	out := make([]Correspondence, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			src := r2.Point{X: 10 + float64(i)*step, Y: 15 + float64(j)*step}
			dst, _ := h.Apply(src)
			out = append(out, Correspondence{Src: src, Dst: dst})
		}
	}
	return out
}

func assertHomographyNear(t *testing.T, want, got Homography, delta float64) {
	t.Helper()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			assert.InDelta(t, want[r][c], got[r][c], delta, "element [%d][%d]", r, c)
		}
	}
}

func TestApply(t *testing.T) {
	id := Identity()
	p, ok := id.Apply(r2.Point{X: 3, Y: 4})
	require.True(t, ok)
	assert.Equal(t, r2.Point{X: 3, Y: 4}, p)

	shift := Homography{{1, 0, 5}, {0, 1, -2}, {0, 0, 1}}
	p, ok = shift.Apply(r2.Point{X: 3, Y: 4})
	require.True(t, ok)
	assert.Equal(t, r2.Point{X: 8, Y: 2}, p)

	vanishing := Homography{{1, 0, 0}, {0, 1, 0}, {1, 0, 0}}
	_, ok = vanishing.Apply(r2.Point{X: 0, Y: 1})
	assert.False(t, ok)
}

func TestEstimate(t *testing.T) {
	tests := []struct {
		name string
		corr []Correspondence
	}{
		{
			name: "minimal four points",
			corr: grid(perspective, 2, 200),
		},
		{
			name: "overdetermined grid",
			corr: grid(perspective, 5, 60),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := Estimate(tt.corr)
			require.NoError(t, err)
			assertHomographyNear(t, perspective, h, 1e-6)
			for _, c := range tt.corr {
				assert.Less(t, h.ReprojectionError(c), 1e-6)
			}
		})
	}
}

func TestEstimate_Errors(t *testing.T) {
	_, err := Estimate(grid(perspective, 1, 10))
	assert.ErrorIs(t, err, ErrInsufficientCorrespondences)

	line := []Correspondence{
		{Src: r2.Point{X: 0, Y: 0}, Dst: r2.Point{X: 1, Y: 1}},
		{Src: r2.Point{X: 1, Y: 1}, Dst: r2.Point{X: 2, Y: 5}},
		{Src: r2.Point{X: 2, Y: 2}, Dst: r2.Point{X: 7, Y: 3}},
		{Src: r2.Point{X: 3, Y: 3}, Dst: r2.Point{X: 4, Y: 9}},
	}
	_, err = Estimate(line)
	assert.ErrorIs(t, err, ErrDegenerate)

	same := make([]Correspondence, 6)
	for i := range same {
		same[i] = Correspondence{Src: r2.Point{X: 5, Y: 5}, Dst: r2.Point{X: 9, Y: 9}}
	}
	_, err = Estimate(same)
	assert.ErrorIs(t, err, ErrDegenerate)
}

func TestEstimateRANSAC_RejectsOutliers(t *testing.T) {
	corr := grid(perspective, 8, 40)
	rng := rand.New(rand.NewSource(7))
	outliers := 0
	for i := range corr {
		if i%4 == 0 {
			corr[i].Dst = r2.Point{X: rng.Float64() * 500, Y: rng.Float64() * 500}
			outliers++
		}
	}

	model, err := EstimateRANSAC(corr, DefaultRANSACConfig())
	require.NoError(t, err)
	assertHomographyNear(t, perspective, model.H, 1e-4)
	assert.Len(t, model.Inliers, len(corr)-outliers)
	for i := range corr {
		assert.Equal(t, i%4 != 0, model.Mask[i], "mask %d", i)
	}
}

func TestEstimateRANSAC_Errors(t *testing.T) {
	_, err := EstimateRANSAC(grid(perspective, 1, 10), DefaultRANSACConfig())
	assert.ErrorIs(t, err, ErrInsufficientCorrespondences)

	var line []Correspondence
	for i := 0; i < 10; i++ {
		p := r2.Point{X: float64(i), Y: 2 * float64(i)}
		line = append(line, Correspondence{Src: p, Dst: p})
	}
	_, err = EstimateRANSAC(line, DefaultRANSACConfig())
	assert.ErrorIs(t, err, ErrDegenerate)
}

func TestEstimateRANSAC_Deterministic(t *testing.T) {
	corr := grid(perspective, 6, 50)
	corr[3].Dst = r2.Point{X: 999, Y: -50}

	a, err := EstimateRANSAC(corr, DefaultRANSACConfig())
	require.NoError(t, err)
	b, err := EstimateRANSAC(corr, DefaultRANSACConfig())
	require.NoError(t, err)
	assert.Equal(t, a.H, b.H)
	assert.Equal(t, a.Mask, b.Mask)
}

func TestReprojectBox(t *testing.T) {
	tests := []struct {
		name string
		h    Homography
		box  images.Rect
		want images.Rect
		ok   bool
	}{
		{
			name: "identity",
			h:    Identity(),
			box:  images.Rect{X1: 10, Y1: 20, X2: 30, Y2: 60},
			want: images.Rect{X1: 10, Y1: 20, X2: 30, Y2: 60},
			ok:   true,
		},
		{
			name: "translation and scale",
			h:    Homography{{2, 0, 5}, {0, 2, 1}, {0, 0, 1}},
			box:  images.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
			want: images.Rect{X1: 5, Y1: 1, X2: 25, Y2: 21},
			ok:   true,
		},
		{
			name: "mirror reorders corners",
			h:    Homography{{-1, 0, 100}, {0, 1, 0}, {0, 0, 1}},
			box:  images.Rect{X1: 10, Y1: 10, X2: 30, Y2: 40},
			want: images.Rect{X1: 70, Y1: 10, X2: 90, Y2: 40},
			ok:   true,
		},
		{
			name: "collapses to a line",
			h:    Homography{{1, 0, 0}, {0, 0, 5}, {0, 0, 1}},
			box:  images.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
			want: images.Rect{X1: 0, Y1: 5, X2: 10, Y2: 5},
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.h.ReprojectBox(tt.box)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestAdaptiveIterations(t *testing.T) {
	assert.Equal(t, 1, adaptiveIterations(10, 10, 0.99))
	assert.Greater(t, adaptiveIterations(5, 10, 0.99), adaptiveIterations(9, 10, 0.99))
}
