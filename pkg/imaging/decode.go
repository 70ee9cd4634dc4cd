// Package imaging turns raw downloaded bytes into decoded images.
//
// Decoding sniffs the format from the leading bytes, so callers never need to
// know whether an origin served PNG, JPEG, GIF, BMP or WebP.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	// Registered decoders.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrEmptyImage is returned when there are no bytes to decode.
var ErrEmptyImage = errors.New("empty image data")

// Decoder converts raw bytes into a renderable image.
type Decoder interface {
	Decode(data []byte) (*Image, error)
}

// Image is a decoded image together with the format it was sniffed as.
type Image struct {
	Format string
	Width  int
	Height int
	Pixels image.Image
}

// StdDecoder decodes every format registered with the image package.
type StdDecoder struct{}

// Decode implements Decoder.
func (StdDecoder) Decode(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	return &Image{
		Format: format,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Pixels: img,
	}, nil
}

// SniffFormat reports the registered format name of data without decoding the
// pixel data. Returns "" when the format is unknown.
func SniffFormat(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	return format
}
