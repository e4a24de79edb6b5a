package fusion

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-multiview/homography"
)

// Strategy selects how per-camera results are reconciled.
type Strategy string

const (
	// StrategyMax takes the per-label maximum across cameras.
	StrategyMax Strategy = "max"
	// StrategyGeometric deduplicates boxes through homographies and falls
	// back to StrategyMax for camera pairs that cannot be registered.
	StrategyGeometric Strategy = "geometric"
)

// ParseStrategy converts a configuration string to a Strategy. The empty
// string selects StrategyMax.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyMax:
		return StrategyMax, nil
	case StrategyGeometric:
		return StrategyGeometric, nil
	}
	return "", errors.Errorf("unknown fusion strategy %q", s)
}

// Thresholds gathers every tunable threshold of the pipeline.
type Thresholds struct {
	// DetectionConfidence discards detections with a confidence strictly below it.
	DetectionConfidence float64 `yaml:"detection_confidence" toml:"detection_confidence" json:"detection_confidence"`
	// DuplicateIoU is the inclusive IoU at which a reprojected box is a duplicate.
	DuplicateIoU float64 `yaml:"duplicate_iou" toml:"duplicate_iou" json:"duplicate_iou"`
	// HomographyInlier is the RANSAC reprojection error bound in pixels.
	HomographyInlier float64 `yaml:"homography_inlier" toml:"homography_inlier" json:"homography_inlier"`
	// RatioTest is the nearest to second-nearest descriptor distance bound.
	RatioTest float64 `yaml:"ratio_test" toml:"ratio_test" json:"ratio_test"`
	// MinCorrespondences is the fewest matches a homography is fitted from.
	MinCorrespondences int `yaml:"min_correspondences" toml:"min_correspondences" json:"min_correspondences"`
}

// DefaultThresholds returns the default thresholds.
//
// Returns:
//   - Thresholds: The default thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DetectionConfidence: 0.5,
		DuplicateIoU:        0.5,
		HomographyInlier:    3.0,
		RatioTest:           0.75,
		MinCorrespondences:  homography.MinCorrespondences,
	}
}

// Validate reports the first out-of-range threshold.
func (t Thresholds) Validate() error {
	switch {
	case t.DetectionConfidence < 0 || t.DetectionConfidence > 1:
		return errors.Errorf("detection_confidence %v out of [0,1]", t.DetectionConfidence)
	case t.DuplicateIoU <= 0 || t.DuplicateIoU > 1:
		return errors.Errorf("duplicate_iou %v out of (0,1]", t.DuplicateIoU)
	case t.HomographyInlier <= 0:
		return errors.Errorf("homography_inlier %v must be positive", t.HomographyInlier)
	case t.RatioTest <= 0 || t.RatioTest > 1:
		return errors.Errorf("ratio_test %v out of (0,1]", t.RatioTest)
	case t.MinCorrespondences < homography.MinCorrespondences:
		return errors.Errorf("min_correspondences %d below %d", t.MinCorrespondences, homography.MinCorrespondences)
	}
	return nil
}

// withDefaults replaces every out-of-range threshold with its default.
//
// Returns:
//   - Thresholds: The usable thresholds.
//   - []string: The names of the replaced fields.
func (t Thresholds) withDefaults() (Thresholds, []string) {
	d := DefaultThresholds()
	var replaced []string
	if t.DetectionConfidence < 0 || t.DetectionConfidence > 1 {
		t.DetectionConfidence = d.DetectionConfidence
		replaced = append(replaced, "detection_confidence")
	}
	if t.DuplicateIoU <= 0 || t.DuplicateIoU > 1 {
		t.DuplicateIoU = d.DuplicateIoU
		replaced = append(replaced, "duplicate_iou")
	}
	if t.HomographyInlier <= 0 {
		t.HomographyInlier = d.HomographyInlier
		replaced = append(replaced, "homography_inlier")
	}
	if t.RatioTest <= 0 || t.RatioTest > 1 {
		t.RatioTest = d.RatioTest
		replaced = append(replaced, "ratio_test")
	}
	if t.MinCorrespondences < homography.MinCorrespondences {
		t.MinCorrespondences = d.MinCorrespondences
		replaced = append(replaced, "min_correspondences")
	}
	return t, replaced
}

// Geometric derives the geometric fusion configuration.
func (t Thresholds) Geometric() GeometricConfig {
	c := DefaultGeometricConfig()
	c.DuplicateIoU = t.DuplicateIoU
	c.MinCorrespondences = t.MinCorrespondences
	c.RANSAC.InlierThreshold = t.HomographyInlier
	return c
}
