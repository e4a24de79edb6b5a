package fusion

import (
	"image"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-multiview/detector"
	"github.com/nvr-ai/go-multiview/homography"
	"github.com/nvr-ai/go-multiview/images"
	"github.com/nvr-ai/go-multiview/labels"
)

func box(l labels.Label, x1, y1, x2, y2 float64) detector.Detection {
	return detector.Detection{Label: l, Confidence: 0.9, Box: images.Rect{X1: x1, Y1: y1, X2: x2, Y2: y2}}
}

// shiftMatcher reports correspondences of a pure translation by (dx, dy).
func shiftMatcher(dx, dy float64) Matcher {
	return MatcherFunc(func(a, b image.Image) ([]homography.Correspondence, error) {
		var out []homography.Correspondence
		for i := 0; i < 5; i++ {
			for j := 0; j < 5; j++ {
				src := r2.Point{X: 20 + float64(i)*50, Y: 30 + float64(j)*40}
				out = append(out, homography.Correspondence{Src: src, Dst: src.Add(r2.Point{X: dx, Y: dy})})
			}
		}
		return out, nil
	})
}

// fewMatcher reports n correspondences.
func fewMatcher(n int) Matcher {
	return MatcherFunc(func(a, b image.Image) ([]homography.Correspondence, error) {
		out := make([]homography.Correspondence, n)
		for i := range out {
			p := r2.Point{X: float64(i * 10), Y: float64(i * i)}
			out[i] = homography.Correspondence{Src: p, Dst: p}
		}
		return out, nil
	})
}

func frame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 320, 240))
}

func TestDeduplicate_InclusiveThreshold(t *testing.T) {
	native := []detector.Detection{box(labels.Can, 0, 0, 10, 10)}
	cfg := DefaultGeometricConfig()

	tests := []struct {
		name      string
		projected detector.Detection
		dup       bool
	}{
		{name: "IoU exactly 0.5 is a duplicate", projected: box(labels.Can, 0, 0, 10, 5), dup: true},
		{name: "IoU 0.4999 is distinct", projected: box(labels.Can, 0, 0, 10, 4.999), dup: false},
		{name: "identical box is a duplicate", projected: box(labels.Can, 0, 0, 10, 10), dup: true},
		{name: "disjoint box is distinct", projected: box(labels.Can, 50, 50, 60, 60), dup: false},
		{name: "empty box is distinct", projected: box(labels.Can, 0, 0, 0, 0), dup: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept, duplicates := Deduplicate([]detector.Detection{tt.projected}, native, cfg)
			if tt.dup {
				assert.Equal(t, 1, duplicates)
				assert.Empty(t, kept)
			} else {
				assert.Equal(t, 0, duplicates)
				assert.Len(t, kept, 1)
			}
		})
	}
}

func TestDeduplicate_Modes(t *testing.T) {
	native := []detector.Detection{box(labels.Can, 0, 0, 10, 10)}
	projected := []detector.Detection{box(labels.Pepsi, 0, 0, 10, 10), box(labels.Can, 1, 0, 11, 10)}

	cfg := DefaultGeometricConfig()
	kept, dups := Deduplicate(projected, native, cfg)
	assert.Equal(t, 2, dups)
	assert.Empty(t, kept)

	cfg.ClassAware = true
	kept, dups = Deduplicate(projected, native, cfg)
	assert.Equal(t, 1, dups)
	require.Len(t, kept, 1)
	assert.Equal(t, labels.Pepsi, kept[0].Label)

	cfg.ClassAware = false
	cfg.OneToOne = true
	kept, dups = Deduplicate(projected, native, cfg)
	assert.Equal(t, 1, dups)
	assert.Len(t, kept, 1)
}

func TestGeometricFuser_Fuse(t *testing.T) {
	fuser := NewGeometricFuser(shiftMatcher(100, 0), DefaultGeometricConfig(), nil)

	a := View{Camera: "left", Image: frame(), Detections: []detector.Detection{
		box(labels.Can, 10, 10, 40, 60),   // seen by both
		box(labels.Bottle, 60, 10, 90, 80), // only visible from the left
	}}
	b := View{Camera: "right", Image: frame(), Detections: []detector.Detection{
		box(labels.Can, 111, 11, 141, 61), // the same can, slightly offset
		box(labels.Can, 200, 10, 230, 60), // only visible from the right
	}}

	res, err := fuser.Fuse(a, b)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Duplicates)
	require.Len(t, res.Kept, 1)
	assert.Equal(t, labels.Bottle, res.Kept[0].Label)
	assert.InDelta(t, 160, res.Kept[0].Box.X1, 1e-6)
	assert.Equal(t, Counts{labels.Can: 2, labels.Bottle: 1}, res.Counts)
	assert.Len(t, res.Model.Inliers, 25)

	// Count bounds for overlapping views.
	total := res.Counts.Total()
	assert.LessOrEqual(t, res.Duplicates, len(a.Detections))
	assert.GreaterOrEqual(t, total, max(len(a.Detections), len(b.Detections)))
	assert.LessOrEqual(t, total, len(a.Detections)+len(b.Detections))
}

func TestGeometricFuser_Errors(t *testing.T) {
	a := View{Camera: "left", Image: frame(), Detections: []detector.Detection{box(labels.Can, 0, 0, 10, 10)}}
	b := View{Camera: "right", Image: frame()}

	tests := []struct {
		name    string
		matcher Matcher
		source  View
		stage   string
		cause   error
	}{
		{
			name:    "fewer than four correspondences",
			matcher: fewMatcher(3),
			source:  a,
			stage:   StageHomography,
			cause:   homography.ErrInsufficientCorrespondences,
		},
		{
			name:    "collinear correspondences",
			matcher: MatcherFunc(func(x, y image.Image) ([]homography.Correspondence, error) {
				var out []homography.Correspondence
				for i := 0; i < 8; i++ {
					p := r2.Point{X: float64(i), Y: float64(i)}
					out = append(out, homography.Correspondence{Src: p, Dst: p})
				}
				return out, nil
			}),
			source: a,
			stage:  StageHomography,
			cause:  homography.ErrDegenerate,
		},
		{
			name:    "matcher failure",
			matcher: MatcherFunc(func(x, y image.Image) ([]homography.Correspondence, error) { return nil, errors.New("opencv") }),
			source:  a,
			stage:   StageMatch,
		},
		{
			name:    "missing image",
			matcher: shiftMatcher(0, 0),
			source:  View{Camera: "left"},
			stage:   StageMatch,
		},
		{
			name:    "no matcher",
			matcher: nil,
			source:  a,
			stage:   StageMatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fuser := NewGeometricFuser(tt.matcher, DefaultGeometricConfig(), nil)
			_, err := fuser.Fuse(tt.source, b)
			require.Error(t, err)

			var gerr *GeometricFusionError
			require.ErrorAs(t, err, &gerr)
			assert.Equal(t, tt.stage, gerr.Stage)
			assert.Equal(t, "left", gerr.Source)
			assert.Equal(t, "right", gerr.Target)
			if tt.cause != nil {
				assert.ErrorIs(t, err, tt.cause)
			}
		})
	}
}

func TestReproject_KeepsLabels(t *testing.T) {
	h := homography.Homography{{2, 0, 0}, {0, 2, 0}, {0, 0, 1}}
	out := Reproject(h, []detector.Detection{box(labels.Pepsi, 1, 1, 2, 3)})
	require.Len(t, out, 1)
	assert.Equal(t, labels.Pepsi, out[0].Label)
	assert.Equal(t, images.Rect{X1: 2, Y1: 2, X2: 4, Y2: 6}, out[0].Box)
}
