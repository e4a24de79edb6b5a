package fusion

import (
	"image"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-multiview/detector"
	"github.com/nvr-ai/go-multiview/homography"
	"github.com/nvr-ai/go-multiview/images"
)

// Matcher finds point correspondences between two images of the same scene,
// with Src in a and Dst in b.
type Matcher interface {
	Match(a, b image.Image) ([]homography.Correspondence, error)
}

// MatcherFunc adapts a plain function to the Matcher interface.
type MatcherFunc func(a, b image.Image) ([]homography.Correspondence, error)

// Match calls f.
func (f MatcherFunc) Match(a, b image.Image) ([]homography.Correspondence, error) {
	return f(a, b)
}

// View is one camera frame together with its raw detections.
type View struct {
	Camera     string
	Image      image.Image
	Detections []detector.Detection
}

// GeometricConfig tunes homography-based deduplication.
type GeometricConfig struct {
	// DuplicateIoU is the inclusive IoU at or above which a reprojected box is
	// a duplicate of a native box.
	DuplicateIoU float64
	// MinCorrespondences is the fewest ratio-test matches worth fitting.
	MinCorrespondences int
	// ClassAware only compares boxes that carry the same label.
	ClassAware bool
	// OneToOne lets each native box absorb at most one reprojected box.
	OneToOne bool
	// RANSAC tunes the robust homography fit.
	RANSAC homography.RANSACConfig
}

// DefaultGeometricConfig returns a default geometric fusion configuration.
//
// Returns:
//   - GeometricConfig: The default configuration.
func DefaultGeometricConfig() GeometricConfig {
	return GeometricConfig{
		DuplicateIoU:       0.5,
		MinCorrespondences: homography.MinCorrespondences,
		RANSAC:             homography.DefaultRANSACConfig(),
	}
}

// GeometricResult is the outcome of fusing one view into another.
type GeometricResult struct {
	// Model is the homography from the source view into the target view.
	Model *homography.Model
	// Kept are the source detections, in target coordinates, that had no
	// duplicate among the target detections.
	Kept []detector.Detection
	// Duplicates is the number of source detections dropped.
	Duplicates int
	// Counts is the target's detections plus Kept, per label.
	Counts Counts
}

// GeometricFuser deduplicates detections across two overlapping views by
// registering them with a homography and comparing reprojected boxes.
type GeometricFuser struct {
	matcher Matcher
	config  GeometricConfig
	logger  *zap.Logger
}

// NewGeometricFuser creates a new geometric fuser.
//
// Arguments:
//   - matcher: The keypoint matcher used to register the views.
//   - config: The geometric fusion configuration.
//   - logger: The logger, or nil.
//
// Returns:
//   - *GeometricFuser: The fuser.
func NewGeometricFuser(matcher Matcher, config GeometricConfig, logger *zap.Logger) *GeometricFuser {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MinCorrespondences < homography.MinCorrespondences {
		config.MinCorrespondences = homography.MinCorrespondences
	}
	return &GeometricFuser{matcher: matcher, config: config, logger: logger}
}

// Register estimates the homography mapping a's image plane onto b's.
//
// Returns:
//   - *homography.Model: The fitted homography and its inliers.
//   - error: A *GeometricFusionError when the views cannot be registered.
func (g *GeometricFuser) Register(a, b View) (*homography.Model, error) {
	fail := func(stage string, err error) error {
		return &GeometricFusionError{Source: a.Camera, Target: b.Camera, Stage: stage, Err: err}
	}

	if g.matcher == nil {
		return nil, fail(StageMatch, errors.New("no matcher configured"))
	}
	if a.Image == nil || b.Image == nil {
		return nil, fail(StageMatch, errors.New("missing image"))
	}

	corr, err := g.matcher.Match(a.Image, b.Image)
	if err != nil {
		return nil, fail(StageMatch, err)
	}
	if len(corr) < g.config.MinCorrespondences {
		return nil, fail(StageHomography, errors.Wrapf(homography.ErrInsufficientCorrespondences,
			"have %d, need %d", len(corr), g.config.MinCorrespondences))
	}

	model, err := homography.EstimateRANSAC(corr, g.config.RANSAC)
	if err != nil {
		return nil, fail(StageHomography, err)
	}
	return model, nil
}

// Fuse deduplicates a's detections against b's. Every detection of a is
// reprojected into b; one that overlaps a detection of b with IoU at or above
// the duplicate threshold is dropped. b's own detections are always kept.
//
// Arguments:
//   - a: The source view.
//   - b: The target view whose coordinate frame the result is expressed in.
//
// Returns:
//   - *GeometricResult: The surviving detections and fused counts.
//   - error: A *GeometricFusionError when the views cannot be registered.
func (g *GeometricFuser) Fuse(a, b View) (*GeometricResult, error) {
	model, err := g.Register(a, b)
	if err != nil {
		return nil, err
	}

	kept, duplicates := Deduplicate(Reproject(model.H, a.Detections), b.Detections, g.config)

	counts := make(Counts)
	for _, d := range b.Detections {
		counts[d.Label]++
	}
	for _, d := range kept {
		counts[d.Label]++
	}

	g.logger.Debug("geometric fusion",
		zap.String("source", a.Camera),
		zap.String("target", b.Camera),
		zap.Int("inliers", len(model.Inliers)),
		zap.Int("duplicates", duplicates),
		zap.Int("kept", len(kept)),
	)

	return &GeometricResult{Model: model, Kept: kept, Duplicates: duplicates, Counts: counts}, nil
}

// Reproject maps every detection box through h. A box whose corners cannot be
// mapped keeps an empty box, which overlaps nothing.
func Reproject(h homography.Homography, dets []detector.Detection) []detector.Detection {
	out := make([]detector.Detection, len(dets))
	for i, d := range dets {
		box, ok := h.ReprojectBox(d.Box)
		if !ok {
			box = images.Rect{}
		}
		out[i] = detector.Detection{Label: d.Label, Confidence: d.Confidence, Box: box}
	}
	return out
}

// Deduplicate splits reprojected detections into those that duplicate a
// native detection and those that do not.
//
// Arguments:
//   - reprojected: Source detections already in the native coordinate frame.
//   - native: The detections observed directly in that frame.
//   - config: DuplicateIoU, ClassAware and OneToOne are honored.
//
// Returns:
//   - []detector.Detection: The reprojected detections that are kept.
//   - int: The number of reprojected detections dropped as duplicates.
func Deduplicate(reprojected, native []detector.Detection, config GeometricConfig) ([]detector.Detection, int) {
	claimed := make([]bool, len(native))
	kept := make([]detector.Detection, 0, len(reprojected))
	duplicates := 0

	for _, r := range reprojected {
		match := -1
		best := 0.0
		for j, n := range native {
			if config.ClassAware && r.Label != n.Label {
				continue
			}
			if config.OneToOne && claimed[j] {
				continue
			}
			iou := images.CalculateIoU(r.Box, n.Box)
			if iou >= config.DuplicateIoU && (match < 0 || iou > best) {
				match, best = j, iou
			}
		}
		if match < 0 {
			kept = append(kept, r)
			continue
		}
		claimed[match] = true
		duplicates++
	}
	return kept, duplicates
}
