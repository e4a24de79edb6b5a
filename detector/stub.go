package detector

import (
	"context"
	"image"
	"sync"
)

// Stub is a deterministic Detector returning canned detections.
//
// Calls cycle through Responses in order. When Err is set every call fails
// with it. ByBounds, when set, takes precedence and is keyed by the image
// bounds so that tests can tell cameras apart by frame size.
type Stub struct {
	Responses [][]Detection
	ByBounds  map[image.Rectangle][]Detection
	Err       error

	mu    sync.Mutex
	calls int
}

// NewStub returns a stub cycling through responses.
func NewStub(responses ...[]Detection) *Stub {
	return &Stub{Responses: responses}
}

// Detect returns the next canned response.
func (s *Stub) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.Err != nil {
		return nil, s.Err
	}
	if s.ByBounds != nil && img != nil {
		return clone(s.ByBounds[img.Bounds()]), nil
	}
	if len(s.Responses) == 0 {
		return nil, nil
	}
	return clone(s.Responses[(s.calls-1)%len(s.Responses)]), nil
}

// Calls returns how many times Detect was invoked.
func (s *Stub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func clone(in []Detection) []Detection {
	if in == nil {
		return nil
	}
	return append([]Detection(nil), in...)
}
