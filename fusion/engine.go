package fusion

import (
	"context"
	"image"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nvr-ai/go-multiview/detector"
	"github.com/nvr-ai/go-multiview/labels"
)

// Frame is one camera's image for one fusion cycle.
type Frame struct {
	Camera string
	Image  image.Image
}

// Outcome is the result of one fusion cycle. It is always valid, possibly
// empty or built from fewer cameras than were supplied.
type Outcome struct {
	Strategy Strategy
	// Fused is the reconciled count per label.
	Fused Counts
	// Cameras holds each contributing camera's aggregated counts.
	Cameras map[string]Counts
	// Consistency compares the container totals with the fused total.
	Consistency Consistency
	// Fallbacks lists the "source->target" camera pairs that were fused with
	// the max heuristic because they could not be registered.
	Fallbacks []string
	// Duplicates is the number of detections dropped by geometric fusion.
	Duplicates int
	// Rejected lists labels refused by the vocabulary, one entry per detection.
	Rejected []labels.Label
	// Duration is the wall time of the cycle.
	Duration time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrategy selects the fusion strategy.
func WithStrategy(s Strategy) Option {
	return func(e *Engine) { e.strategy = s }
}

// WithThresholds replaces the default thresholds. Out-of-range values fall
// back to their defaults when the engine is built.
func WithThresholds(t Thresholds) Option {
	return func(e *Engine) { e.thresholds = t }
}

// WithVocabulary validates labels at the aggregation boundary.
func WithVocabulary(v *labels.Vocabulary) Option {
	return func(e *Engine) { e.vocabulary = v }
}

// WithReservedLabels replaces the container labels used by the consistency check.
func WithReservedLabels(r ReservedLabels) Option {
	return func(e *Engine) { e.reserved = r }
}

// WithDetector sets the detector used by Run.
func WithDetector(d detector.Detector) Option {
	return func(e *Engine) { e.detector = d }
}

// WithMatcher sets the keypoint matcher used by the geometric strategy.
func WithMatcher(m Matcher) Option {
	return func(e *Engine) { e.matcher = m }
}

// WithClassAwareDedup only treats boxes with the same label as duplicates.
func WithClassAwareDedup(on bool) Option {
	return func(e *Engine) { e.classAware = on }
}

// WithOneToOneDedup lets each reference box absorb at most one reprojected box.
func WithOneToOneDedup(on bool) Option {
	return func(e *Engine) { e.oneToOne = on }
}

// WithConcurrency bounds the number of cameras detected in parallel by Run.
// Zero or less means no bound.
func WithConcurrency(n int) Option {
	return func(e *Engine) { e.concurrency = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine runs the fusion pipeline: detect, aggregate, fuse and check. It holds
// no per-cycle state and is safe for concurrent use when its detector and
// matcher are.
type Engine struct {
	strategy    Strategy
	thresholds  Thresholds
	vocabulary  *labels.Vocabulary
	reserved    ReservedLabels
	detector    detector.Detector
	matcher     Matcher
	classAware  bool
	oneToOne    bool
	concurrency int
	logger      *zap.Logger
}

// NewEngine creates a new fusion engine.
//
// Arguments:
//   - opts: Options applied over the defaults: max strategy, default
//     thresholds, open vocabulary, bottle/can reserved labels.
//
// Returns:
//   - *Engine: The engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		strategy:   StrategyMax,
		thresholds: DefaultThresholds(),
		reserved:   DefaultReservedLabels(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if t, replaced := e.thresholds.withDefaults(); len(replaced) > 0 {
		e.logger.Warn("thresholds out of range, using defaults", zap.Strings("fields", replaced))
		e.thresholds = t
	}
	return e
}

// Strategy returns the configured strategy.
func (e *Engine) Strategy() Strategy { return e.strategy }

// Thresholds returns the configured thresholds.
func (e *Engine) Thresholds() Thresholds { return e.thresholds }

// Reserved returns the configured container labels.
func (e *Engine) Reserved() ReservedLabels { return e.reserved }

// FuseCounts fuses already aggregated per-camera counts with the max
// heuristic. Malformed or absent sets are dropped and reported; they never
// prevent fusion of the other cameras.
//
// Arguments:
//   - sets: The counts per camera id.
//
// Returns:
//   - *Outcome: The fused result, never nil.
//   - error: The accumulated *InputValidationError of dropped cameras, or nil.
func (e *Engine) FuseCounts(sets map[string]Counts) (*Outcome, error) {
	start := time.Now()
	out := &Outcome{Strategy: StrategyMax, Cameras: make(map[string]Counts, len(sets))}

	var errs error
	valid := make([]Counts, 0, len(sets))
	for _, camera := range sortedCameras(sets) {
		set := sets[camera]
		if err := e.validate(camera, set); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		out.Cameras[camera] = set.Clone()
		valid = append(valid, set)
	}

	out.Fused = FuseMax(valid...)
	e.finish(out, start)
	return out, errs
}

// FuseViews fuses views with the configured strategy. Under the geometric
// strategy the first view is the reference frame: every other view is
// reprojected into it and deduplicated against the boxes accumulated so far.
// A view that cannot be registered falls back to the max heuristic.
//
// Arguments:
//   - views: One view per camera, reference first.
//
// Returns:
//   - *Outcome: The fused result, never nil.
//   - error: The accumulated per-camera and per-pair errors, or nil.
func (e *Engine) FuseViews(views []View) (*Outcome, error) {
	if e.strategy != StrategyGeometric {
		sets := make(map[string]Counts, len(views))
		var errs error
		out := &Outcome{}
		for _, v := range views {
			if _, dup := sets[v.Camera]; dup {
				errs = multierr.Append(errs, &InputValidationError{Camera: v.Camera, Reason: "duplicate camera id"})
				continue
			}
			counts, rejected := AggregateWithVocabulary(v.Detections, e.thresholds.DetectionConfidence, e.vocabulary)
			sets[v.Camera] = counts
			out.Rejected = append(out.Rejected, rejected...)
		}
		fused, err := e.FuseCounts(sets)
		fused.Rejected = out.Rejected
		e.logRejected(fused.Rejected)
		return fused, multierr.Append(errs, err)
	}
	return e.fuseGeometric(views)
}

func (e *Engine) fuseGeometric(views []View) (*Outcome, error) {
	start := time.Now()
	out := &Outcome{Strategy: StrategyGeometric, Cameras: make(map[string]Counts, len(views))}
	if len(views) == 0 {
		out.Fused = make(Counts)
		e.finish(out, start)
		return out, nil
	}

	config := e.thresholds.Geometric()
	config.ClassAware = e.classAware
	config.OneToOne = e.oneToOne
	fuser := NewGeometricFuser(e.matcher, config, e.logger)

	var errs error
	filtered := make([]View, 0, len(views))
	for _, v := range views {
		if _, dup := out.Cameras[v.Camera]; dup {
			errs = multierr.Append(errs, &InputValidationError{Camera: v.Camera, Reason: "duplicate camera id"})
			continue
		}
		dets, rejected := filter(v.Detections, e.thresholds.DetectionConfidence, e.vocabulary)
		out.Rejected = append(out.Rejected, rejected...)
		out.Cameras[v.Camera] = countLabels(dets)
		filtered = append(filtered, View{Camera: v.Camera, Image: v.Image, Detections: dets})
	}
	e.logRejected(out.Rejected)

	reference := filtered[0]
	accumulated := append([]detector.Detection(nil), reference.Detections...)
	var fallback []Counts

	for _, v := range filtered[1:] {
		res, err := fuser.Fuse(v, View{Camera: reference.Camera, Image: reference.Image, Detections: accumulated})
		if err != nil {
			errs = multierr.Append(errs, err)
			pair := v.Camera + "->" + reference.Camera
			out.Fallbacks = append(out.Fallbacks, pair)
			fallback = append(fallback, out.Cameras[v.Camera])
			e.logger.Warn("geometric fusion failed, falling back to max heuristic",
				zap.String("pair", pair),
				zap.Error(err),
			)
			continue
		}
		accumulated = append(accumulated, res.Kept...)
		out.Duplicates += res.Duplicates
	}

	out.Fused = FuseMax(append(fallback, countLabels(accumulated))...)
	e.finish(out, start)
	return out, errs
}

// Run detects objects in every frame and fuses the results. Cameras whose
// frame is missing or whose detection fails are dropped and reported.
//
// Arguments:
//   - ctx: Cancels pending detections.
//   - frames: One frame per camera; under the geometric strategy the first
//     frame is the reference view.
//
// Returns:
//   - *Outcome: The fused result, nil only when ctx is done or no detector is set.
//   - error: The accumulated per-camera errors, or the context error.
func (e *Engine) Run(ctx context.Context, frames []Frame) (*Outcome, error) {
	if e.detector == nil {
		return nil, ErrNoDetector
	}

	results := make([][]detector.Detection, len(frames))
	failures := make([]error, len(frames))

	g, gctx := errgroup.WithContext(ctx)
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for i, f := range frames {
		g.Go(func() error {
			if f.Image == nil {
				failures[i] = &InputValidationError{Camera: f.Camera, Reason: "no frame"}
				return nil
			}
			dets, err := e.detector.Detect(gctx, f.Image)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				failures[i] = &InputValidationError{Camera: f.Camera, Reason: "detection failed", Err: err}
				return nil
			}
			results[i] = dets
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "running detectors")
	}

	var errs error
	views := make([]View, 0, len(frames))
	for i, f := range frames {
		if failures[i] != nil {
			errs = multierr.Append(errs, failures[i])
			e.logger.Warn("dropping camera", zap.String("camera", f.Camera), zap.Error(failures[i]))
			continue
		}
		views = append(views, View{Camera: f.Camera, Image: f.Image, Detections: results[i]})
	}

	out, err := e.FuseViews(views)
	return out, multierr.Append(errs, err)
}

func (e *Engine) validate(camera string, set Counts) error {
	if set == nil {
		err := &InputValidationError{Camera: camera, Reason: "absent detection set"}
		e.logger.Warn("dropping camera", zap.String("camera", camera), zap.Error(err))
		return err
	}
	if err := set.Validate(); err != nil {
		err = &InputValidationError{Camera: camera, Reason: "malformed detection set", Err: err}
		e.logger.Warn("dropping camera", zap.String("camera", camera), zap.Error(err))
		return err
	}
	return nil
}

func (e *Engine) finish(out *Outcome, start time.Time) {
	out.Consistency = CheckConsistency(out.Fused, e.reserved)
	out.Consistency.Log(e.logger)
	out.Duration = time.Since(start)
}

func (e *Engine) logRejected(rejected []labels.Label) {
	if len(rejected) == 0 {
		return
	}
	names := make([]string, len(rejected))
	for i, l := range rejected {
		names[i] = string(l)
	}
	e.logger.Warn("rejected labels outside the vocabulary", zap.Strings("labels", names))
}

func countLabels(dets []detector.Detection) Counts {
	out := make(Counts)
	for _, d := range dets {
		out[d.Label]++
	}
	return out
}

func sortedCameras(sets map[string]Counts) []string {
	out := make([]string, 0, len(sets))
	for c := range sets {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
