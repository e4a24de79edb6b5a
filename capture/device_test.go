package capture

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevice_ReadFailure(t *testing.T) {
	video := filepath.Join(t.TempDir(), "shelf.mp4")
	require.NoError(t, os.WriteFile(video, []byte("x"), 0o600))

	tests := []struct {
		name    string
		path    string
		grabbed bool
		file    bool
		want    error
	}{
		{name: "device index", path: "0", want: ErrNoFrame},
		{name: "device index empty frame", path: "2", grabbed: true, want: ErrNoFrame},
		{name: "stream url", path: "rtsp://10.0.0.2/stream", want: ErrNoFrame},
		{name: "missing path", path: filepath.Join(t.TempDir(), "absent.mp4"), want: ErrNoFrame},
		{name: "video file", path: video, file: true, want: ErrClosed},
		{name: "video file empty frame", path: video, grabbed: true, file: true, want: ErrClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Device{Camera: "camera1", Path: tt.path}
			assert.Equal(t, tt.file, d.File())
			assert.True(t, errors.Is(d.readFailure(tt.grabbed), tt.want))
		})
	}
}
