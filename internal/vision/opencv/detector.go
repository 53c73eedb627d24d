package opencv

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/facelocker/facelocker-server/internal/model"
)

var _ model.Detector = (*HaarDetector)(nil)

// HaarDetector finds faces with a Haar cascade classifier.
type HaarDetector struct {
	cascade      gocv.CascadeClassifier
	scaleFactor  float64
	minNeighbors int
}

// NewHaarDetector loads a cascade file. Detection sweeps the image pyramid
// by scaleFactor and keeps candidates with at least minNeighbors
// overlapping hits.
func NewHaarDetector(cascadeFile string, scaleFactor float64, minNeighbors int) (*HaarDetector, error) {
	cascade := gocv.NewCascadeClassifier()
	if !cascade.Load(cascadeFile) {
		cascade.Close()
		return nil, fmt.Errorf("failed to load cascade file %s", cascadeFile)
	}
	return &HaarDetector{
		cascade:      cascade,
		scaleFactor:  scaleFactor,
		minNeighbors: minNeighbors,
	}, nil
}

// Detect returns the face bounding boxes in a grayscale image.
func (d *HaarDetector) Detect(g *image.Gray) ([]image.Rectangle, error) {
	m, err := gocv.ImageGrayToMatGray(g)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer m.Close()

	rects := d.cascade.DetectMultiScaleWithParams(
		m, d.scaleFactor, d.minNeighbors, 0, image.Pt(0, 0), image.Pt(0, 0),
	)
	return rects, nil
}

// Close releases the cascade.
func (d *HaarDetector) Close() error {
	return d.cascade.Close()
}
