// Package thumbnail renders JPEG previews of stored images.
package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultMaxDimension bounds the longer side of a thumbnail.
const DefaultMaxDimension = 480

// ContentType of every generated thumbnail.
const ContentType = "image/jpeg"

var ErrEmptyImage = errors.New("image has no pixels")

// Generate decodes a JPEG, PNG, GIF or WebP image from r and returns a JPEG
// whose longer side is at most maxDimension. Smaller images are re-encoded
// at their original size.
func Generate(r io.Reader, maxDimension int) ([]byte, error) {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}

	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, ErrEmptyImage
	}

	width, height := Dimensions(bounds.Dx(), bounds.Dy(), maxDimension)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if width == bounds.Dx() && height == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("failed to encode %s thumbnail: %w", format, err)
	}
	return buf.Bytes(), nil
}

// Dimensions scales width x height to fit in a maxDimension square,
// preserving the aspect ratio. Neither side drops below one pixel.
func Dimensions(width, height, maxDimension int) (int, int) {
	if width <= maxDimension && height <= maxDimension {
		return width, height
	}
	if width >= height {
		h := height * maxDimension / width
		if h < 1 {
			h = 1
		}
		return maxDimension, h
	}
	w := width * maxDimension / height
	if w < 1 {
		w = 1
	}
	return w, maxDimension
}
