package images

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResolution(t *testing.T) {
	tests := []struct {
		in      string
		width   int
		height  int
		wantErr bool
	}{
		{in: "720p", width: 1280, height: 720},
		{in: " 4K ", width: 3840, height: 2160},
		{in: "800x600", width: 800, height: 600},
		{in: "800X600", width: 800, height: 600},
		{in: "8k", wantErr: true},
		{in: "0x600", wantErr: true},
		{in: "axb", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r, err := ParseResolution(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.width, r.Width)
			assert.Equal(t, tt.height, r.Height)
		})
	}
}

func TestResolution_MegaPixels(t *testing.T) {
	assert.InDelta(t, 2.07, Resolutions["1080p"].MegaPixels(), 1e-9)
	assert.InDelta(t, 0.31, Resolutions["480p"].MegaPixels(), 1e-9)
	assert.Zero(t, Resolution{Width: 0, Height: 1080}.MegaPixels())
	assert.Equal(t, "HD (1280x720, 0.92MP)", Resolutions["720p"].String())
}
