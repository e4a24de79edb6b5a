// Package dataset - Loading of captured multi-camera image sets from disk.
package dataset

import (
	"image"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-multiview/fusion"
	"github.com/nvr-ai/go-multiview/images"
)

// captureName matches files written by the capture rig, e.g.
// camera_1_20250217_113550.jpg or yolov11s_camera_0_20250217_113550.png.
var captureName = regexp.MustCompile(`(?:^|_)camera_([A-Za-z0-9-]+)_(.+)$`)

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
	// Camera is the camera id parsed from the file name, e.g. camera_1.
	Camera string
	// Timestamp is the capture time token of the file name.
	Timestamp string
}

// Decode decodes the image bytes.
func (f ImageFile) Decode() (image.Image, error) {
	img, _, err := images.Decode(f.Data)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", f.Path)
	}
	return img, nil
}

// Group is the set of images captured by all cameras at one timestamp.
type Group struct {
	Timestamp string
	// Files are ordered by camera id.
	Files []ImageFile
}

// Cameras returns the camera ids of the group.
func (g Group) Cameras() []string {
	out := make([]string, len(g.Files))
	for i, f := range g.Files {
		out[i] = f.Camera
	}
	return out
}

// Frames decodes the group into fusion frames. Undecodable files become
// frames without an image so the engine reports them per camera.
func (g Group) Frames() ([]fusion.Frame, error) {
	frames := make([]fusion.Frame, len(g.Files))
	var first error
	for i, f := range g.Files {
		frames[i].Camera = f.Camera
		img, err := f.Decode()
		if err != nil {
			if first == nil {
				first = err
			}
			continue
		}
		frames[i].Image = img
	}
	return frames, first
}

// ParseName splits a capture file name into camera id and timestamp.
//
// Arguments:
//   - name: The base file name.
//
// Returns:
//   - string: The camera id, e.g. camera_1.
//   - string: The timestamp token.
//   - bool: False when the name does not follow the capture naming scheme.
func ParseName(name string) (string, string, bool) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	m := captureName.FindStringSubmatch(stem)
	if m == nil {
		return "", "", false
	}
	return "camera_" + m[1], m[2], true
}

// CameraLess orders camera ids. Ids whose suffix after "camera_" is numeric
// compare by number, so camera_2 sorts before camera_10; numeric ids come
// before the rest, which compare as strings.
func CameraLess(a, b string) bool {
	na, errA := strconv.Atoi(strings.TrimPrefix(a, "camera_"))
	nb, errB := strconv.Atoi(strings.TrimPrefix(b, "camera_"))
	switch {
	case errA == nil && errB == nil:
		if na != nb {
			return na < nb
		}
		return a < b
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return a < b
}

// LoadDirectoryImageFiles reads all capture image files from a directory.
// Files that do not follow the capture naming scheme are skipped.
//
// Arguments:
//   - dir: Directory path containing image files.
//
// Returns:
//   - []ImageFile: The files, ordered by timestamp then camera.
//   - error: Error if loading fails.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", dir)
	}

	var files []ImageFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png", ".webp":
		default:
			continue
		}

		camera, ts, ok := ParseName(entry.Name())
		if !ok {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", path)
		}
		files = append(files, ImageFile{Path: path, Data: data, Camera: camera, Timestamp: ts})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].Timestamp != files[j].Timestamp {
			return files[i].Timestamp < files[j].Timestamp
		}
		return CameraLess(files[i].Camera, files[j].Camera)
	})

	return files, nil
}

// LoadGroups reads a directory and groups its capture files by timestamp.
//
// Arguments:
//   - dir: Directory path containing image files.
//
// Returns:
//   - []Group: One group per timestamp, in timestamp order.
//   - error: Error if loading fails.
func LoadGroups(dir string) ([]Group, error) {
	files, err := LoadDirectoryImageFiles(dir)
	if err != nil {
		return nil, err
	}

	var groups []Group
	for _, f := range files {
		if n := len(groups); n > 0 && groups[n-1].Timestamp == f.Timestamp {
			groups[n-1].Files = append(groups[n-1].Files, f)
			continue
		}
		groups = append(groups, Group{Timestamp: f.Timestamp, Files: []ImageFile{f}})
	}
	return groups, nil
}
