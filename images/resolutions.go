package images

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Resolution is a camera capture size.
type Resolution struct {
	Name   string `json:"name" yaml:"name"`
	Width  int    `json:"width" yaml:"width"`
	Height int    `json:"height" yaml:"height"`
}

// MegaPixels returns the pixel count in millions, rounded to two decimals.
func (r Resolution) MegaPixels() float64 {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return math.Round(float64(r.Width*r.Height)/1e4) / 100
}

// String returns a human-readable summary of the resolution.
func (r Resolution) String() string {
	return fmt.Sprintf("%s (%dx%d, %.2fMP)", r.Name, r.Width, r.Height, r.MegaPixels())
}

// Resolutions are the capture presets accepted by name, keyed by lower-case alias.
var Resolutions = map[string]Resolution{
	"360p":  {Name: "nHD", Width: 640, Height: 360},
	"480p":  {Name: "VGA", Width: 640, Height: 480},
	"540p":  {Name: "qHD", Width: 960, Height: 540},
	"720p":  {Name: "HD", Width: 1280, Height: 720},
	"1080p": {Name: "Full HD", Width: 1920, Height: 1080},
	"1440p": {Name: "QHD", Width: 2560, Height: 1440},
	"4k":    {Name: "4K UHD", Width: 3840, Height: 2160},
}

// ParseResolution resolves a preset alias such as "720p" or an explicit
// "WIDTHxHEIGHT" size.
//
// Arguments:
//   - s: The alias or size, case-insensitive.
//
// Returns:
//   - Resolution: The resolution.
//   - error: An error if s is neither a known alias nor a positive size.
func ParseResolution(s string) (Resolution, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if r, ok := Resolutions[key]; ok {
		return r, nil
	}

	w, h, ok := strings.Cut(key, "x")
	if !ok {
		return Resolution{}, errors.Errorf("unknown resolution %q", s)
	}
	width, errW := strconv.Atoi(w)
	height, errH := strconv.Atoi(h)
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		return Resolution{}, errors.Errorf("invalid resolution %q", s)
	}
	return Resolution{Name: key, Width: width, Height: height}, nil
}
