// Package postprocess - Postprocessing utilities for model outputs.
package postprocess

import "github.com/nvr-ai/go-multiview/images"

// Result represents a single raw detection decoded from a model output.
type Result struct {
	// The bounding box of the result, in model-input coordinates.
	Box images.Rect
	// The confidence score of the result.
	Score float32
	// The predicted class index of the result.
	Class int
}
