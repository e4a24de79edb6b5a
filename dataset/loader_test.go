package dataset

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseName(t *testing.T) {
	tests := []struct {
		name      string
		camera    string
		timestamp string
		ok        bool
	}{
		{name: "camera_1_20250217_113550.jpg", camera: "camera_1", timestamp: "20250217_113550", ok: true},
		{name: "yolov11s_camera_0_20250217_113550.jpg", camera: "camera_0", timestamp: "20250217_113550", ok: true},
		{name: "camera_top_1700000000.png", camera: "camera_top", timestamp: "1700000000", ok: true},
		{name: "frame-12.jpg"},
		{name: "camera_1.jpg"},
		{name: "mycamera_1_x.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			camera, ts, ok := ParseName(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.camera, camera)
			assert.Equal(t, tt.timestamp, ts)
		})
	}
}

func writePNG(t *testing.T, dir, name string, w int) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, 2))))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o600))
}

func TestLoadGroups(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "camera_1_20250217_113551.png", 1)
	writePNG(t, dir, "camera_0_20250217_113550.png", 2)
	writePNG(t, dir, "camera_2_20250217_113550.png", 3)
	writePNG(t, dir, "camera_1_20250217_113550.png", 4)
	writePNG(t, dir, "notes.png", 5)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "camera_3_20250217_113550.txt"), []byte("x"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "camera_4_20250217_113550.png"), 0o700))

	groups, err := LoadGroups(dir)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, "20250217_113550", groups[0].Timestamp)
	assert.Equal(t, []string{"camera_0", "camera_1", "camera_2"}, groups[0].Cameras())
	assert.Equal(t, []string{"camera_1"}, groups[1].Cameras())

	frames, err := groups[0].Frames()
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, "camera_1", frames[1].Camera)
	assert.Equal(t, 4, frames[1].Image.Bounds().Dx())
}

func TestLoadGroups_NumericCameraOrder(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "camera_10_20250217_113550.png", 1)
	writePNG(t, dir, "camera_2_20250217_113550.png", 2)
	writePNG(t, dir, "camera_front_20250217_113550.png", 3)
	writePNG(t, dir, "camera_1_20250217_113550.png", 4)

	groups, err := LoadGroups(dir)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"camera_1", "camera_2", "camera_10", "camera_front"}, groups[0].Cameras())

	frames, err := groups[0].Frames()
	require.NoError(t, err)
	assert.Equal(t, "camera_1", frames[0].Camera)
}

func TestCameraLess(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"camera_2", "camera_10", true},
		{"camera_10", "camera_2", false},
		{"camera_01", "camera_1", true},
		{"camera_9", "camera_back", true},
		{"camera_back", "camera_9", false},
		{"camera_back", "camera_front", true},
	}
	for _, tt := range tests {
		t.Run(tt.a+"<"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, CameraLess(tt.a, tt.b))
		})
	}
}

func TestGroupFrames_Undecodable(t *testing.T) {
	g := Group{Timestamp: "1", Files: []ImageFile{
		{Path: "a", Camera: "camera_0", Data: []byte("garbage")},
	}}
	frames, err := g.Frames()
	assert.Error(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "camera_0", frames[0].Camera)
	assert.Nil(t, frames[0].Image)
}

func TestLoadGroups_MissingDir(t *testing.T) {
	_, err := LoadGroups(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
