package fusion

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNoDetector is returned by Engine.Run when the engine was built without a detector.
var ErrNoDetector = errors.New("no detector configured")

// InputValidationError reports a camera whose input is malformed or absent.
// The camera is treated as contributing no detections.
type InputValidationError struct {
	Camera string
	Reason string
	Err    error
}

func (e *InputValidationError) Error() string {
	msg := fmt.Sprintf("camera %q: invalid input: %s", e.Camera, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *InputValidationError) Unwrap() error { return e.Err }

// Geometric fusion stages.
const (
	StageMatch      = "match"
	StageHomography = "homography"
)

// GeometricFusionError reports a camera pair whose views could not be
// registered. The pair falls back to count-heuristic fusion.
type GeometricFusionError struct {
	Source string
	Target string
	Stage  string
	Err    error
}

func (e *GeometricFusionError) Error() string {
	return fmt.Sprintf("geometric fusion %s->%s failed at %s: %v", e.Source, e.Target, e.Stage, e.Err)
}

// Unwrap returns the underlying cause.
func (e *GeometricFusionError) Unwrap() error { return e.Err }

// Cause returns the underlying cause for github.com/pkg/errors.
func (e *GeometricFusionError) Cause() error { return e.Err }
