package service

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"math"
	"os"
	"sync/atomic"

	"github.com/facelocker/facelocker-server/internal/model"
)

// fakeClassifier is a deterministic stand-in for the LBPH recognizer: it
// remembers the mean pixel value per label and scores a probe by the
// distance between its mean and the closest remembered mean.
type fakeClassifier struct {
	Means map[int]float64 `json:"means"`
}

func grayMean(g *image.Gray) float64 {
	b := g.Bounds()
	sum := 0.0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sum += float64(g.GrayAt(x, y).Y)
		}
	}
	return sum / float64(b.Dx()*b.Dy())
}

func (c *fakeClassifier) Predict(sample *image.Gray) (int, float64, error) {
	probe := grayMean(sample)
	bestLabel, bestDist := -1, math.Inf(1)
	for label, mean := range c.Means {
		if d := math.Abs(probe - mean); d < bestDist {
			bestDist = d
			bestLabel = label
		}
	}
	if bestLabel < 0 {
		return 0, 0, fmt.Errorf("untrained classifier")
	}
	return bestLabel, bestDist, nil
}

func (c *fakeClassifier) Serialize() ([]byte, error) {
	return json.Marshal(c)
}

func (c *fakeClassifier) Close() error { return nil }

type fakeFactory struct{}

func (fakeFactory) Train(samples []*image.Gray, labels []int) (model.Classifier, error) {
	if len(samples) == 0 {
		return nil, model.ErrNoSamples
	}
	sums := map[int]float64{}
	counts := map[int]float64{}
	for i, s := range samples {
		sums[labels[i]] += grayMean(s)
		counts[labels[i]]++
	}
	means := map[int]float64{}
	for label, sum := range sums {
		means[label] = sum / counts[label]
	}
	return &fakeClassifier{Means: means}, nil
}

func (fakeFactory) ReadFile(path string) (model.Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := &fakeClassifier{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	return c, nil
}

// fakeDetector reports the whole image as one face, or nothing at all.
type fakeDetector struct {
	none bool
}

func (d fakeDetector) Detect(g *image.Gray) ([]image.Rectangle, error) {
	if d.none {
		return nil, nil
	}
	return []image.Rectangle{g.Bounds()}, nil
}

// countingBackend counts ListModels calls to verify rebuild laziness.
type countingBackend struct {
	model.Backend
	listModelCalls atomic.Int64
}

func (b *countingBackend) ListModels(ctx context.Context) ([]model.ModelRef, error) {
	b.listModelCalls.Add(1)
	return b.Backend.ListModels(ctx)
}
