// Package images - Image definition and decoding for processing utilities.
package images

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"
	"strings"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
)

// ImageFormat represents supported image formats
type ImageFormat string

// ImageFormat constants
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
)

// ErrEmptyImage is returned when decoding zero bytes.
var ErrEmptyImage = errors.New("empty image data")

// Image represents an encoded image with its format.
type Image struct {
	// The format of the image.
	Format ImageFormat `json:"format" yaml:"format"`
	// The data of the image.
	Data []byte `json:"data" yaml:"data"`
}

// DetectFormat sniffs the encoded bytes and returns the matching format.
//
// Arguments:
//   - data: The encoded image bytes.
//
// Returns:
//   - ImageFormat: The detected format.
//   - error: An error if the content type is not a supported image format.
func DetectFormat(data []byte) (ImageFormat, error) {
	if len(data) == 0 {
		return "", ErrEmptyImage
	}
	switch ct := http.DetectContentType(data); ct {
	case "image/jpeg":
		return FormatJPEG, nil
	case "image/png":
		return FormatPNG, nil
	case "image/webp":
		return FormatWebP, nil
	default:
		return "", errors.Errorf("unsupported image content type: %s", ct)
	}
}

// Decode decodes JPEG, PNG or WebP bytes into an image.Image.
//
// Arguments:
//   - data: The encoded image bytes.
//
// Returns:
//   - image.Image: The decoded image.
//   - ImageFormat: The format the bytes were decoded as.
//   - error: An error if the format is unsupported or the bytes are corrupt.
func Decode(data []byte) (image.Image, ImageFormat, error) {
	format, err := DetectFormat(data)
	if err != nil {
		return nil, "", err
	}

	var img image.Image
	r := bytes.NewReader(data)
	switch format {
	case FormatJPEG:
		img, err = jpeg.Decode(r)
	case FormatPNG:
		img, err = png.Decode(r)
	case FormatWebP:
		img, err = webp.Decode(r)
	}
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to decode %s image", format)
	}

	return img, format, nil
}

// DecodeBase64 decodes a base64 encoded image, optionally prefixed with a
// data URL header such as "data:image/jpeg;base64,".
//
// Arguments:
//   - encoded: The base64 payload.
//
// Returns:
//   - image.Image: The decoded image.
//   - error: An error if the payload is not valid base64 or not a supported image.
func DecodeBase64(encoded string) (image.Image, error) {
	if i := strings.Index(encoded, ","); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, errors.Wrap(err, "invalid base64 image payload")
	}
	img, _, err := Decode(data)
	return img, err
}
