package capture

import (
	"image"
	"os"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Device describes a capture device.
type Device struct {
	// Camera is the id frames are reported under.
	Camera string
	// Path is a device index ("0"), a stream URL or a video file.
	Path   string
	Width  int
	Height int
}

// File reports whether Path names a video file on disk. Reads from a file
// end at its last frame; device indices and stream URLs are read until closed.
func (d Device) File() bool {
	if _, err := strconv.Atoi(d.Path); err == nil {
		return false
	}
	info, err := os.Stat(d.Path)
	return err == nil && info.Mode().IsRegular()
}

// readFailure is the error for a read that produced no frame.
func (d Device) readFailure(grabbed bool) error {
	if d.File() {
		return errors.Wrapf(ErrClosed, "end of video file %q", d.Path)
	}
	if !grabbed {
		return errors.Wrapf(ErrNoFrame, "cannot read device %q", d.Path)
	}
	return errors.Wrapf(ErrNoFrame, "empty frame from device %q", d.Path)
}

// DeviceSource reads frames from an OpenCV video capture.
type DeviceSource struct {
	device Device
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	closed bool
}

// OpenDevice opens the capture device.
//
// Arguments:
//   - device: The device description.
//
// Returns:
//   - *DeviceSource: The opened source. Close it when done.
//   - error: An error if the device cannot be opened.
func OpenDevice(device Device) (*DeviceSource, error) {
	var target interface{} = device.Path
	if id, err := strconv.Atoi(device.Path); err == nil {
		target = id
	}

	vc, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return nil, errors.Wrapf(err, "opening capture device %q for camera %s", device.Path, device.Camera)
	}
	if device.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(device.Width))
	}
	if device.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(device.Height))
	}

	return &DeviceSource{device: device, vc: vc, mat: gocv.NewMat()}, nil
}

// Read grabs the next frame. A failed or empty read of a live device returns
// ErrNoFrame so the caller can back off and retry; a video file that has no
// more frames returns ErrClosed.
func (d *DeviceSource) Read() (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}
	if ok := d.vc.Read(&d.mat); !ok {
		return nil, d.device.readFailure(false)
	}
	if d.mat.Empty() {
		return nil, d.device.readFailure(true)
	}
	img, err := d.mat.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "converting frame")
	}
	return img, nil
}

// Close releases the device.
func (d *DeviceSource) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.mat.Close()
	return d.vc.Close()
}
