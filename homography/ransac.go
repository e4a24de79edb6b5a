package homography

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// RANSACConfig tunes robust homography estimation.
type RANSACConfig struct {
	// InlierThreshold is the maximum reprojection error, in pixels, for a
	// correspondence to count as an inlier.
	InlierThreshold float64 `yaml:"inlier_threshold" toml:"inlier_threshold"`
	// MaxIterations caps the number of minimal samples drawn.
	MaxIterations int `yaml:"max_iterations" toml:"max_iterations"`
	// Confidence is the desired probability of drawing at least one
	// outlier-free sample; it shortens the run once a good model is found.
	Confidence float64 `yaml:"confidence" toml:"confidence"`
	// Seed makes sampling reproducible.
	Seed int64 `yaml:"seed" toml:"seed"`
}

// DefaultRANSACConfig returns a default RANSAC configuration.
//
// Returns:
//   - RANSACConfig: The default configuration.
func DefaultRANSACConfig() RANSACConfig {
	return RANSACConfig{
		InlierThreshold: 3.0,
		MaxIterations:   2000,
		Confidence:      0.995,
		Seed:            1,
	}
}

// Model is a homography fitted by RANSAC together with the correspondences
// that support it.
type Model struct {
	H       Homography
	Inliers []Correspondence
	// Mask is parallel to the input correspondences; true marks an inlier.
	Mask []bool
}

// EstimateRANSAC robustly fits a homography to noisy correspondences.
//
// Arguments:
//   - corr: The putative correspondences, typically after a ratio test.
//   - config: The RANSAC configuration.
//
// Returns:
//   - *Model: The refined homography and its inliers.
//   - error: ErrInsufficientCorrespondences when there are fewer than four
//     pairs, ErrDegenerate when no non-degenerate model gathers four inliers.
func EstimateRANSAC(corr []Correspondence, config RANSACConfig) (*Model, error) {
	if len(corr) < MinCorrespondences {
		return nil, errors.Wrapf(ErrInsufficientCorrespondences, "have %d, need %d", len(corr), MinCorrespondences)
	}
	if config.InlierThreshold <= 0 {
		config.InlierThreshold = DefaultRANSACConfig().InlierThreshold
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultRANSACConfig().MaxIterations
	}
	if config.Confidence <= 0 || config.Confidence >= 1 {
		config.Confidence = DefaultRANSACConfig().Confidence
	}

	rng := rand.New(rand.NewSource(config.Seed))

	var (
		best      Homography
		bestCount int
		found     bool
		sample    = make([]Correspondence, MinCorrespondences)
		limit     = config.MaxIterations
	)

	for iter := 0; iter < limit; iter++ {
		idx := rng.Perm(len(corr))[:MinCorrespondences]
		for i, j := range idx {
			sample[i] = corr[j]
		}
		if degenerateSample(sample) {
			continue
		}

		h, err := Estimate(sample)
		if err != nil {
			continue
		}

		count := countInliers(h, corr, config.InlierThreshold)
		if count > bestCount {
			best, bestCount, found = h, count, true
			limit = min(config.MaxIterations, adaptiveIterations(count, len(corr), config.Confidence))
		}
	}

	if !found || bestCount < MinCorrespondences {
		return nil, errors.Wrapf(ErrDegenerate, "best model has %d inliers", bestCount)
	}

	model := newModel(best, corr, config.InlierThreshold)

	// Refit on the full consensus set and keep it only if it does not lose support.
	if refined, err := Estimate(model.Inliers); err == nil {
		if candidate := newModel(refined, corr, config.InlierThreshold); len(candidate.Inliers) >= len(model.Inliers) {
			model = candidate
		}
	}

	return model, nil
}

func newModel(h Homography, corr []Correspondence, threshold float64) *Model {
	m := &Model{H: h, Mask: make([]bool, len(corr))}
	for i, c := range corr {
		if h.ReprojectionError(c) <= threshold {
			m.Mask[i] = true
			m.Inliers = append(m.Inliers, c)
		}
	}
	return m
}

func countInliers(h Homography, corr []Correspondence, threshold float64) int {
	n := 0
	for _, c := range corr {
		if h.ReprojectionError(c) <= threshold {
			n++
		}
	}
	return n
}

// adaptiveIterations returns the number of samples needed to draw an
// all-inlier minimal set with the given confidence at the observed inlier ratio.
func adaptiveIterations(inliers, total int, confidence float64) int {
	w := float64(inliers) / float64(total)
	p := math.Pow(w, MinCorrespondences)
	if p >= 1 {
		return 1
	}
	if p <= 0 {
		return math.MaxInt32
	}
	n := math.Log(1-confidence) / math.Log(1-p)
	if math.IsNaN(n) || n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Ceil(n))
}

// degenerateSample reports whether any three points of a minimal sample are
// collinear in either view.
func degenerateSample(sample []Correspondence) bool {
	for i := 0; i < len(sample); i++ {
		for j := i + 1; j < len(sample); j++ {
			for k := j + 1; k < len(sample); k++ {
				if nearlyCollinear(sample[i].Src, sample[j].Src, sample[k].Src) ||
					nearlyCollinear(sample[i].Dst, sample[j].Dst, sample[k].Dst) {
					return true
				}
			}
		}
	}
	return false
}

func nearlyCollinear(a, b, c r2.Point) bool {
	ab, ac := b.Sub(a), c.Sub(a)
	scale := ab.Norm() * ac.Norm()
	if scale < 1e-12 {
		return true
	}
	return math.Abs(ab.Cross(ac)) <= 1e-6*scale
}
