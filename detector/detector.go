// Package detector - Object detector adapters producing per-frame detections.
package detector

import (
	"context"
	"image"
	"sync"

	"github.com/nvr-ai/go-multiview/images"
	"github.com/nvr-ai/go-multiview/labels"
)

// Detection is one observed object instance from one camera at one instant.
type Detection struct {
	Label      labels.Label `json:"label"`
	Confidence float64      `json:"confidence"`
	Box        images.Rect  `json:"bbox"`
}

// Detector runs an object detection model on a single image.
//
// Implementations must be safe to call from multiple goroutines, or be
// wrapped in a Handle.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// Func adapts a plain function to the Detector interface.
type Func func(ctx context.Context, img image.Image) ([]Detection, error)

// Detect calls f.
func (f Func) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	return f(ctx, img)
}

// Handle owns one detector and serializes access to it. A single Handle is
// shared read-only by every request in the process.
type Handle struct {
	mu       sync.Mutex
	detector Detector
}

// NewHandle wraps d.
func NewHandle(d Detector) *Handle {
	return &Handle{detector: d}
}

// Detect runs the wrapped detector while holding the handle lock. The context
// is checked before waiting and again after acquiring the lock.
func (h *Handle) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.detector.Detect(ctx, img)
}

// Close releases the wrapped detector if it holds native resources.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.detector.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
