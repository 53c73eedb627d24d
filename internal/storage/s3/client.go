// Package s3 implements the storage backend on an S3-compatible object
// store. Keys follow <prefix>/<user>/<filename> for images and
// <prefix>/<user>/trainer/<filename> for model artifacts; references use the
// s3://bucket/key form.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/facelocker/facelocker-server/internal/model"
)

// Internal adapter interface to enable mocking without a real object store.
type minioAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// Wrapper to adapt *minio.Client to minioAPI.
type minioClientWrapper struct{ c *minio.Client }

func (w minioClientWrapper) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return w.c.BucketExists(ctx, bucketName)
}
func (w minioClientWrapper) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return w.c.MakeBucket(ctx, bucketName, opts)
}
func (w minioClientWrapper) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return w.c.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
}
func (w minioClientWrapper) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	obj, err := w.c.GetObject(ctx, bucketName, objectName, opts)
	if err != nil {
		return nil, err
	}
	return obj, nil
}
func (w minioClientWrapper) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return w.c.RemoveObject(ctx, bucketName, objectName, opts)
}
func (w minioClientWrapper) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	return w.c.ListObjects(ctx, bucketName, opts)
}

var _ model.Backend = (*Client)(nil)

// Client is the S3-compatible storage backend.
type Client struct {
	api    minioAPI
	bucket string
	prefix string
}

// NewClient creates a storage backend using a real *minio.Client instance.
func NewClient(ctx context.Context, client *minio.Client, bucket, prefix string) (*Client, error) {
	return NewClientWithAPI(ctx, minioClientWrapper{c: client}, bucket, prefix)
}

// NewClientWithAPI allows injecting a mockable API (used in tests).
func NewClientWithAPI(ctx context.Context, api minioAPI, bucket, prefix string) (*Client, error) {
	c := &Client{
		api:    api,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}

	if err := c.ensureBucketExists(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	return c, nil
}

func (c *Client) ensureBucketExists(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := c.api.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// key joins non-empty parts under the configured prefix.
func (c *Client) key(parts ...string) string {
	all := make([]string, 0, len(parts)+1)
	if c.prefix != "" {
		all = append(all, c.prefix)
	}
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			all = append(all, p)
		}
	}
	return strings.Join(all, "/")
}

func (c *Client) ref(key string) string {
	return fmt.Sprintf("s3://%s/%s", c.bucket, key)
}

// parseRef splits an s3://bucket/key reference.
func parseRef(ref string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(ref, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 reference: %s", ref)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed s3 reference: %s", ref)
	}
	return bucket, key, nil
}

// list drains a recursive listing under the given key prefix.
func (c *Client) list(ctx context.Context, prefix string) ([]string, error) {
	ch := c.api.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	keys := []string{}
	for obj := range ch {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// SaveImage writes image bytes under the user's prefix.
func (c *Client) SaveImage(ctx context.Context, user, filename string, data []byte) (string, error) {
	key := c.key(user, filename)
	if _, err := c.api.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{}); err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	return c.ref(key), nil
}

// ListUsers returns the distinct first path segments below the prefix.
func (c *Client) ListUsers(ctx context.Context) ([]string, error) {
	base := ""
	if c.prefix != "" {
		base = c.prefix + "/"
	}
	keys, err := c.list(ctx, base)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	users := []string{}
	for _, key := range keys {
		rel := strings.TrimPrefix(key, base)
		user, _, _ := strings.Cut(rel, "/")
		if user == "" {
			continue
		}
		if _, ok := seen[user]; !ok {
			seen[user] = struct{}{}
			users = append(users, user)
		}
	}
	sort.Strings(users)
	return users, nil
}

// ListUserImages returns the user's image references, sorted.
func (c *Client) ListUserImages(ctx context.Context, user string) ([]string, error) {
	keys, err := c.list(ctx, c.key(user)+"/")
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, key := range keys {
		if isImage(key) {
			out = append(out, c.ref(key))
		}
	}
	sort.Strings(out)
	return out, nil
}

// SaveModel writes a model artifact under the user's trainer prefix.
func (c *Client) SaveModel(ctx context.Context, user, filename string, data []byte) (string, error) {
	key := c.key(user, "trainer", filename)
	if _, err := c.api.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{}); err != nil {
		return "", fmt.Errorf("failed to upload model: %w", err)
	}
	return c.ref(key), nil
}

// ListModels returns every .yml object under a trainer prefix. The owning
// user is the path segment immediately preceding "trainer".
func (c *Client) ListModels(ctx context.Context) ([]model.ModelRef, error) {
	base := ""
	if c.prefix != "" {
		base = c.prefix + "/"
	}
	keys, err := c.list(ctx, base)
	if err != nil {
		return nil, err
	}
	out := []model.ModelRef{}
	for _, key := range keys {
		if strings.ToLower(path.Ext(key)) != ".yml" {
			continue
		}
		user := userFromKey(key)
		if user == "" {
			continue
		}
		out = append(out, model.ModelRef{User: user, Ref: c.ref(key)})
	}
	return out, nil
}

// DownloadToLocal materializes the referenced object as a temporary file.
func (c *Client) DownloadToLocal(ctx context.Context, ref string) (string, error) {
	_, key, err := parseRef(ref)
	if err != nil {
		return "", err
	}

	obj, err := c.api.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", model.ErrNotFound
		}
		return "", fmt.Errorf("failed to get object: %w", err)
	}
	defer obj.Close()

	tmp, err := os.CreateTemp("", "facelocker-*"+path.Ext(key))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, obj); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", model.ErrNotFound
		}
		return "", fmt.Errorf("failed to download object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return tmp.Name(), nil
}

// DeleteUser removes every object under the user's prefix. Objects that
// vanish mid-scan are ignored.
func (c *Client) DeleteUser(ctx context.Context, user string) (bool, error) {
	keys, err := c.list(ctx, c.key(user)+"/")
	if err != nil {
		return false, err
	}
	if len(keys) == 0 {
		return false, nil
	}

	var errs []error
	for _, key := range keys {
		err := c.api.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{})
		if err != nil && minio.ToErrorResponse(err).Code != "NoSuchKey" {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", key, err))
		}
	}
	return true, errors.Join(errs...)
}

func userFromKey(key string) string {
	parts := strings.Split(key, "/")
	for i := len(parts) - 1; i > 0; i-- {
		if parts[i] == "trainer" {
			return parts[i-1]
		}
	}
	return ""
}

func isImage(key string) bool {
	switch strings.ToLower(path.Ext(key)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}
