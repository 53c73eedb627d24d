// Package opencv adapts OpenCV (via gocv) to the classifier and detector
// interfaces in internal/model. It is the only package that touches gocv,
// so everything above it stays testable without an OpenCV runtime.
package opencv

import (
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"

	"github.com/facelocker/facelocker-server/internal/model"
)

var _ model.Classifier = (*LBPHClassifier)(nil)
var _ model.ClassifierFactory = (*LBPHFactory)(nil)

// LBPHClassifier wraps a trained LBPH face recognizer.
type LBPHClassifier struct {
	rec *contrib.LBPHFaceRecognizer
}

// LBPHFactory trains and loads LBPH classifiers.
type LBPHFactory struct{}

// NewLBPHFactory returns a factory producing LBPH classifiers.
func NewLBPHFactory() *LBPHFactory {
	return &LBPHFactory{}
}

// Train fits a recognizer on grayscale samples and their labels.
func (f *LBPHFactory) Train(samples []*image.Gray, labels []int) (model.Classifier, error) {
	if len(samples) == 0 {
		return nil, model.ErrNoSamples
	}
	if len(samples) != len(labels) {
		return nil, fmt.Errorf("got %d samples for %d labels", len(samples), len(labels))
	}

	mats := make([]gocv.Mat, 0, len(samples))
	defer func() {
		for _, m := range mats {
			m.Close()
		}
	}()
	for _, s := range samples {
		m, err := gocv.ImageGrayToMatGray(s)
		if err != nil {
			return nil, fmt.Errorf("failed to convert sample: %w", err)
		}
		mats = append(mats, m)
	}

	rec := contrib.NewLBPHFaceRecognizer()
	rec.Train(mats, labels)
	return &LBPHClassifier{rec: rec}, nil
}

// ReadFile loads a serialized recognizer from a .yml file.
func (f *LBPHFactory) ReadFile(path string) (model.Classifier, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	rec := contrib.NewLBPHFaceRecognizer()
	rec.LoadFile(path)
	return &LBPHClassifier{rec: rec}, nil
}

// Predict returns the best label and its distance for a prepared sample.
// Lower distance means a closer match.
func (c *LBPHClassifier) Predict(sample *image.Gray) (int, float64, error) {
	m, err := gocv.ImageGrayToMatGray(sample)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to convert sample: %w", err)
	}
	defer m.Close()

	resp := c.rec.PredictExtendedResponse(m)
	return int(resp.Label), float64(resp.Confidence), nil
}

// Serialize renders the recognizer in OpenCV's .yml format. gocv only
// exposes file-based persistence, so it round-trips through a temp file.
func (c *LBPHClassifier) Serialize() ([]byte, error) {
	tmp, err := os.CreateTemp("", "facelocker-*.yml")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	name := tmp.Name()
	tmp.Close()
	defer os.Remove(name)

	c.rec.SaveFile(name)
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read serialized model: %w", err)
	}
	return data, nil
}

// Close releases the underlying recognizer.
func (c *LBPHClassifier) Close() error {
	return c.rec.Close()
}
