// Package vision holds the pure-image half of the pipeline: decoding
// uploaded bytes, grayscale conversion, cropping and resizing face regions
// into fixed-size training samples.
package vision

import (
	"bytes"
	"fmt"
	"image"
	"os"

	// Registered decoders for the formats clients upload.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/facelocker/facelocker-server/internal/model"
)

// Decode parses uploaded image bytes. Undecodable payloads map to
// model.ErrInvalidImage so callers can distinguish bad input from I/O
// failures.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidImage, err)
	}
	return img, nil
}

// ToGray converts any image to 8-bit grayscale.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(b)
	draw.Draw(g, b, img, b.Min, draw.Src)
	return g
}

// ResizeGray scales a grayscale image to w×h.
func ResizeGray(g *image.Gray, w, h int) *image.Gray {
	if d := g.Bounds(); d.Dx() == w && d.Dy() == h {
		return g
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), g, g.Bounds(), draw.Src, nil)
	return dst
}

// CropGray extracts the region r as a standalone grayscale image.
func CropGray(g *image.Gray, r image.Rectangle) *image.Gray {
	r = r.Intersect(g.Bounds())
	dst := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), g, r.Min, draw.Src)
	return dst
}

// PrepareSample crops the detected face region and normalizes it to the
// model.SampleSize square every classifier is trained on.
func PrepareSample(g *image.Gray, face image.Rectangle) *image.Gray {
	return ResizeGray(CropGray(g, face), model.SampleSize, model.SampleSize)
}

// DecodeGrayFile reads and decodes an image file as grayscale.
func DecodeGrayFile(path string) (*image.Gray, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return ToGray(img), nil
}
