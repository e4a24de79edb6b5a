// Package capture - Continuous frame grabbing from a set of cameras, keeping the latest frame of each.
package capture

import (
	"image"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// ErrClosed is returned by a Source that has been closed or reached the end
// of its stream.
var ErrClosed = errors.New("capture: source closed")

// ErrNoFrame is returned when a live source yields no frame. The read may be
// retried.
var ErrNoFrame = errors.New("capture: no frame")

// Source yields frames from one camera.
type Source interface {
	// Read blocks until the next frame is available.
	Read() (image.Image, error)
	Close() error
}

// Frame is one captured image.
type Frame struct {
	Camera string
	Image  image.Image
	// Seq counts frames read from the camera, starting at 1.
	Seq uint64
	At  time.Time
}

// Slot holds the most recent frame of a camera. It is safe for one writer and
// any number of readers.
type Slot struct {
	latest atomic.Pointer[Frame]
}

// Store replaces the held frame.
func (s *Slot) Store(f *Frame) {
	s.latest.Store(f)
}

// Load returns the held frame, or nil before the first Store.
func (s *Slot) Load() *Frame {
	return s.latest.Load()
}
