// Package features - Keypoint matching between two camera views.
package features

import (
	"github.com/golang/geo/r2"

	"github.com/nvr-ai/go-multiview/homography"
)

// Config tunes keypoint extraction and matching.
type Config struct {
	// MaxFeatures caps the number of keypoints kept per image, strongest first.
	MaxFeatures int `yaml:"max_features" toml:"max_features"`
	// Ratio is Lowe's ratio test bound: a match is kept when its distance is
	// strictly less than Ratio times the second-best distance.
	Ratio float64 `yaml:"ratio_test" toml:"ratio_test"`
}

// DefaultConfig returns a default matching configuration.
//
// Returns:
//   - Config: The default configuration.
func DefaultConfig() Config {
	return Config{
		MaxFeatures: 1000,
		Ratio:       0.75,
	}
}

// Neighbor is one candidate match for a query keypoint.
type Neighbor struct {
	Point    r2.Point
	Distance float64
}

// Candidates holds the nearest neighbors of one query keypoint, closest first.
type Candidates struct {
	Query     r2.Point
	Neighbors []Neighbor
}

// RatioTest keeps the unambiguous matches.
//
// Arguments:
//   - candidates: The k-nearest-neighbor matches of every query keypoint.
//   - ratio: The ratio bound, typically 0.75.
//
// Returns:
//   - []homography.Correspondence: Query point to best neighbor pairs whose best
//     distance is strictly less than ratio times the second best. Queries with
//     fewer than two neighbors are dropped.
func RatioTest(candidates []Candidates, ratio float64) []homography.Correspondence {
	out := make([]homography.Correspondence, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Neighbors) < 2 {
			continue
		}
		best, second := c.Neighbors[0], c.Neighbors[1]
		if best.Distance < ratio*second.Distance {
			out = append(out, homography.Correspondence{Src: c.Query, Dst: best.Point})
		}
	}
	return out
}
