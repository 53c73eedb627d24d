package service

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facelocker/facelocker-server/internal/model"
	"github.com/facelocker/facelocker-server/internal/storage/local"
	"github.com/facelocker/facelocker-server/internal/testutil"
)

func uniformGray(t *testing.T, value uint8) *image.Gray {
	t.Helper()
	g := image.NewGray(image.Rect(0, 0, model.SampleSize, model.SampleSize))
	for i := range g.Pix {
		g.Pix[i] = value
	}
	return g
}

func photoBytes(t *testing.T, value uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 160, 120))
	for i := range img.Pix {
		img.Pix[i] = value
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type faceFixture struct {
	face    *Face
	cache   *ModelCache
	backend *local.Backend
}

func newFaceFixture(t *testing.T, detector model.Detector, threshold float64) faceFixture {
	t.Helper()
	backend, err := local.New(t.TempDir())
	require.NoError(t, err)
	l := testutil.MakeNoopLogger()
	cache := NewModelCache(backend, fakeFactory{}, l)
	face := NewFace(backend, fakeFactory{}, detector, cache, threshold, l)
	return faceFixture{face: face, cache: cache, backend: backend}
}

func TestFace_SaveUserImage_SequenceNumbers(t *testing.T) {
	ctx := context.Background()
	fx := newFaceFixture(t, fakeDetector{}, 130)

	for i, want := range []string{"img1.jpg", "img2.jpg", "img3.jpg"} {
		ref, err := fx.face.SaveUserImage(ctx, "alice", photoBytes(t, uint8(50*i)))
		require.NoError(t, err)
		assert.Equal(t, want, filepath.Base(ref))
	}

	refs, err := fx.backend.ListUserImages(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, refs, 3)
}

func TestFace_TrainAll_Outcomes(t *testing.T) {
	ctx := context.Background()
	fx := newFaceFixture(t, fakeDetector{}, 130)

	// alice: valid enrollment
	_, err := fx.face.SaveUserImage(ctx, "alice", photoBytes(t, 200))
	require.NoError(t, err)
	_, err = fx.face.SaveUserImage(ctx, "alice", photoBytes(t, 210))
	require.NoError(t, err)

	// bob: a single undecodable image
	_, err = fx.face.SaveUserImage(ctx, "bob", []byte("definitely not a photo"))
	require.NoError(t, err)

	// carol: exists in storage but owns no images
	_, err = fx.backend.SaveModel(ctx, "carol", "carol_trainer_old.yml", []byte("{}"))
	require.NoError(t, err)

	results, err := fx.face.TrainAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, strings.Contains(results["alice"], "trainer"), "alice outcome should be an artifact reference, got %q", results["alice"])
	assert.Equal(t, model.OutcomeNoValidImages, results["bob"])
	assert.Equal(t, model.OutcomeNoImages, results["carol"])
}

func TestFace_TrainAll_EmptyStore(t *testing.T) {
	fx := newFaceFixture(t, fakeDetector{}, 130)
	results, err := fx.face.TrainAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFace_Recognize_InvalidImage(t *testing.T) {
	fx := newFaceFixture(t, fakeDetector{}, 130)
	rec, err := fx.face.Recognize(context.Background(), []byte("garbage"))
	require.NoError(t, err)
	assert.False(t, rec.Found)
	assert.Equal(t, model.ErrorInvalidImage, rec.Error)
}

func TestFace_Recognize_NoFaceDetected(t *testing.T) {
	fx := newFaceFixture(t, fakeDetector{none: true}, 130)
	rec, err := fx.face.Recognize(context.Background(), photoBytes(t, 100))
	require.NoError(t, err)
	assert.False(t, rec.Found)
	assert.Equal(t, model.ReasonNoFace, rec.Reason)
}

func TestFace_Recognize_EmptyStoreNoModels(t *testing.T) {
	fx := newFaceFixture(t, fakeDetector{}, 130)
	rec, err := fx.face.Recognize(context.Background(), photoBytes(t, 100))
	require.NoError(t, err)
	assert.False(t, rec.Found)
	assert.Equal(t, model.ReasonNoModels, rec.Reason)
}

func TestFace_EnrollTrainRecognize(t *testing.T) {
	ctx := context.Background()
	fx := newFaceFixture(t, fakeDetector{}, 130)

	for i := 0; i < 5; i++ {
		_, err := fx.face.SaveUserImage(ctx, "alice", photoBytes(t, 200))
		require.NoError(t, err)
	}
	_, err := fx.face.SaveUserImage(ctx, "bob", photoBytes(t, 40))
	require.NoError(t, err)

	results, err := fx.face.TrainAll(ctx)
	require.NoError(t, err)
	require.Contains(t, results["alice"], "trainer")

	rec, err := fx.face.Recognize(ctx, photoBytes(t, 200))
	require.NoError(t, err)
	assert.True(t, rec.Found)
	assert.Equal(t, "alice", rec.User)
	assert.Less(t, rec.Confidence, 130.0)

	rec, err = fx.face.Recognize(ctx, photoBytes(t, 40))
	require.NoError(t, err)
	assert.True(t, rec.Found)
	assert.Equal(t, "bob", rec.User)
}

func TestFace_Recognize_LowConfidence(t *testing.T) {
	ctx := context.Background()
	fx := newFaceFixture(t, fakeDetector{}, 130)

	_, err := fx.face.SaveUserImage(ctx, "alice", photoBytes(t, 250))
	require.NoError(t, err)
	_, err = fx.face.TrainAll(ctx)
	require.NoError(t, err)

	// probe mean is 240 away from the trained mean, beyond the gate
	rec, err := fx.face.Recognize(ctx, photoBytes(t, 10))
	require.NoError(t, err)
	assert.False(t, rec.Found)
	assert.Equal(t, model.ReasonLowConfidence, rec.Reason)
	assert.GreaterOrEqual(t, rec.Confidence, 130.0)
}

func TestFace_Recognize_ThresholdMonotonicity(t *testing.T) {
	ctx := context.Background()

	recognizeAt := func(threshold float64) model.Recognition {
		fx := newFaceFixture(t, fakeDetector{}, threshold)
		_, err := fx.face.SaveUserImage(ctx, "alice", photoBytes(t, 200))
		require.NoError(t, err)
		_, err = fx.face.TrainAll(ctx)
		require.NoError(t, err)
		rec, err := fx.face.Recognize(ctx, photoBytes(t, 150))
		require.NoError(t, err)
		return rec
	}

	// probe distance is 50: accepted above it, rejected at or below
	assert.True(t, recognizeAt(60).Found)
	assert.False(t, recognizeAt(50).Found)
	assert.False(t, recognizeAt(10).Found)
}

func TestFace_DeleteUser_InvalidatesCache(t *testing.T) {
	ctx := context.Background()
	fx := newFaceFixture(t, fakeDetector{}, 130)

	_, err := fx.face.SaveUserImage(ctx, "alice", photoBytes(t, 200))
	require.NoError(t, err)
	_, err = fx.face.TrainAll(ctx)
	require.NoError(t, err)

	rec, err := fx.face.Recognize(ctx, photoBytes(t, 200))
	require.NoError(t, err)
	require.True(t, rec.Found)

	ok, err := fx.face.DeleteUser(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	users, err := fx.face.ListUsers(ctx)
	require.NoError(t, err)
	assert.NotContains(t, users, "alice")

	// next recognition rebuilds lazily and no longer sees alice's model
	rec, err = fx.face.Recognize(ctx, photoBytes(t, 200))
	require.NoError(t, err)
	assert.False(t, rec.Found)
	assert.Equal(t, model.ReasonNoModels, rec.Reason)
}

func TestFace_DeleteUser_Missing(t *testing.T) {
	fx := newFaceFixture(t, fakeDetector{}, 130)
	ok, err := fx.face.DeleteUser(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFace_SaveUserImage_InvalidatesCache(t *testing.T) {
	ctx := context.Background()
	fx := newFaceFixture(t, fakeDetector{}, 130)

	// load the (empty) cache once
	_, err := fx.cache.Read(ctx)
	require.NoError(t, err)

	_, err = fx.face.SaveUserImage(ctx, "alice", photoBytes(t, 200))
	require.NoError(t, err)
	_, err = fx.face.TrainAll(ctx)
	require.NoError(t, err)

	snap, err := fx.cache.Read(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Entries, 1)
}
