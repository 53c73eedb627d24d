package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/facelocker/facelocker-server/internal/logger"
	"github.com/facelocker/facelocker-server/internal/model"
	"github.com/facelocker/facelocker-server/internal/vision"
)

// Face implements enrollment, training and recognition over a storage
// backend, a classifier factory, a face detector and the model cache.
type Face struct {
	storage   model.Backend
	factory   model.ClassifierFactory
	detector  model.Detector
	cache     *ModelCache
	threshold float64
	logger    *logger.Logger

	// trainMu serializes whole training runs. The cache has its own lock.
	trainMu sync.Mutex
}

// NewFace creates the face service. threshold is the maximum distance a
// recognition may have and still be accepted.
func NewFace(
	storage model.Backend,
	factory model.ClassifierFactory,
	detector model.Detector,
	cache *ModelCache,
	threshold float64,
	l *logger.Logger,
) *Face {
	return &Face{
		storage:   storage,
		factory:   factory,
		detector:  detector,
		cache:     cache,
		threshold: threshold,
		logger:    l,
	}
}

// SaveUserImage enrolls one image for the user. The filename continues the
// user's img{n}.jpg sequence; the cache is invalidated so the next
// recognition sees a fresh storage scan.
func (f *Face) SaveUserImage(ctx context.Context, user string, data []byte) (string, error) {
	existing, err := f.storage.ListUserImages(ctx, user)
	if err != nil {
		return "", fmt.Errorf("failed to list user images: %w", err)
	}

	filename := fmt.Sprintf("img%d.jpg", len(existing)+1)
	ref, err := f.storage.SaveImage(ctx, user, filename, data)
	if err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}

	f.cache.Invalidate()
	return ref, nil
}

// ListUsers returns all enrolled users.
func (f *Face) ListUsers(ctx context.Context) ([]string, error) {
	return f.storage.ListUsers(ctx)
}

// ListModels returns every stored model artifact.
func (f *Face) ListModels(ctx context.Context) ([]model.ModelRef, error) {
	return f.storage.ListModels(ctx)
}

// DeleteUser removes the user's images and models. Returns false when the
// user did not exist.
func (f *Face) DeleteUser(ctx context.Context, user string) (bool, error) {
	ok, err := f.storage.DeleteUser(ctx, user)
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	if ok {
		f.cache.Invalidate()
	}
	return ok, nil
}

// TrainAll retrains one classifier per enrolled user and reports a per-user
// outcome: "no-images", "no-valid-images", or the stored artifact reference.
// Runs are serialized; the cache is force-rebuilt before returning so
// subsequent recognitions see the new models.
func (f *Face) TrainAll(ctx context.Context) (map[string]string, error) {
	f.trainMu.Lock()
	defer f.trainMu.Unlock()

	users, err := f.storage.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	results := map[string]string{}
	for label, user := range users {
		outcome, err := f.trainUser(ctx, user, label)
		if err != nil {
			return nil, err
		}
		results[user] = outcome
	}

	if err := f.cache.Rebuild(ctx, true); err != nil {
		return nil, err
	}
	return results, nil
}

func (f *Face) trainUser(ctx context.Context, user string, label int) (string, error) {
	refs, err := f.storage.ListUserImages(ctx, user)
	if err != nil {
		return "", fmt.Errorf("failed to list user images: %w", err)
	}
	if len(refs) == 0 {
		return model.OutcomeNoImages, nil
	}

	samples := make([]*image.Gray, 0, len(refs))
	for _, ref := range refs {
		g, err := f.loadSample(ctx, ref)
		if err != nil {
			if errors.Is(err, model.ErrInvalidImage) {
				f.logger.Warn("skipping undecodable image", "user", user, "ref", ref)
				continue
			}
			return "", err
		}
		samples = append(samples, g)
	}
	if len(samples) == 0 {
		return model.OutcomeNoValidImages, nil
	}

	labels := make([]int, len(samples))
	for i := range labels {
		labels[i] = label
	}

	cls, err := f.factory.Train(samples, labels)
	if err != nil {
		return "", fmt.Errorf("failed to train classifier: %w", err)
	}
	defer cls.Close()

	data, err := cls.Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize classifier: %w", err)
	}

	filename := fmt.Sprintf("%s_trainer_%s.yml", user, uuid.NewString())
	modelRef, err := f.storage.SaveModel(ctx, user, filename, data)
	if err != nil {
		return "", fmt.Errorf("failed to save model: %w", err)
	}
	return modelRef, nil
}

// loadSample downloads one enrollment image and normalizes it to the
// canonical sample size. The temp file is removed on every path.
func (f *Face) loadSample(ctx context.Context, ref string) (*image.Gray, error) {
	path, err := f.storage.DownloadToLocal(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer os.Remove(path)

	g, err := vision.DecodeGrayFile(path)
	if err != nil {
		return nil, err
	}
	return vision.ResizeGray(g, model.SampleSize, model.SampleSize), nil
}

// Recognize scores a probe image against every cached classifier and applies
// the acceptance gate. Failures come back as structured outcomes, never
// errors, except for storage faults during a cache rebuild.
func (f *Face) Recognize(ctx context.Context, data []byte) (model.Recognition, error) {
	img, err := vision.Decode(data)
	if err != nil {
		return model.Recognition{Found: false, Error: model.ErrorInvalidImage}, nil
	}
	g := vision.ToGray(img)

	faces, err := f.detector.Detect(g)
	if err != nil {
		return model.Recognition{}, fmt.Errorf("failed to detect faces: %w", err)
	}
	if len(faces) == 0 {
		return model.Recognition{Found: false, Reason: model.ReasonNoFace}, nil
	}

	snap, err := f.cache.Read(ctx)
	if err != nil {
		return model.Recognition{}, err
	}
	if len(snap.Entries) == 0 {
		return model.Recognition{Found: false, Reason: model.ReasonNoModels}, nil
	}

	// Single global best across all regions and all classifiers.
	bestLabel := -1
	bestConfidence := math.Inf(1)
	for _, face := range faces {
		sample := vision.PrepareSample(g, face)
		for _, entry := range snap.Entries {
			_, confidence, err := entry.Classifier.Predict(sample)
			if err != nil {
				f.logger.Warn("classifier prediction failed", "label", entry.Label, "error", err)
				continue
			}
			if confidence < bestConfidence {
				bestConfidence = confidence
				bestLabel = entry.Label
			}
		}
	}
	if bestLabel < 0 {
		return model.Recognition{Found: false, Reason: model.ReasonNoPrediction}, nil
	}

	if bestConfidence >= f.threshold {
		return model.Recognition{
			Found:      false,
			Confidence: bestConfidence,
			Reason:     model.ReasonLowConfidence,
		}, nil
	}

	user, ok := snap.Labels[bestLabel]
	if !ok {
		user = model.UnknownUser
	}
	return model.Recognition{Found: true, User: user, Confidence: bestConfidence}, nil
}
