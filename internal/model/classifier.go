package model

import "image"

// SampleSize is the canonical side length, in pixels, of the square
// grayscale samples classifiers are trained on and probed with.
const SampleSize = 100

// Classifier is one user's trained face model.
type Classifier interface {
	// Predict scores a canonical grayscale sample. Confidence carries
	// distance semantics: lower means more similar. The returned label is
	// the training-run label baked into the model.
	Predict(sample *image.Gray) (label int, confidence float64, err error)

	// Serialize returns the model as a storable artifact blob.
	Serialize() ([]byte, error)

	// Close releases any native resources held by the model.
	Close() error
}

// ClassifierFactory creates classifiers, either by training or by loading a
// previously serialized artifact.
type ClassifierFactory interface {
	// Train builds a classifier from parallel samples and labels. Every
	// sample must already be SampleSize x SampleSize grayscale. Returns
	// ErrNoSamples when the sample set is empty.
	Train(samples []*image.Gray, labels []int) (Classifier, error)

	// ReadFile deserializes a classifier from an artifact file. The
	// round-trip through Serialize and ReadFile preserves scoring behavior.
	ReadFile(path string) (Classifier, error)
}

// Detector finds face regions in a grayscale image. The production
// implementation wraps a Haar cascade parameterized by a pyramid scale
// factor and a minimum-neighbor count.
type Detector interface {
	Detect(img *image.Gray) ([]image.Rectangle, error)
}
