// Package local implements the storage backend on the local filesystem.
// Layout: <base>/<user>/imgN.jpg for enrollment images and
// <base>/<user>/trainer/*.yml for model artifacts.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/facelocker/facelocker-server/internal/model"
)

var _ model.Backend = (*Backend)(nil)

// Backend stores images and model artifacts under a base directory.
type Backend struct {
	base string
}

// New creates the base directory if needed and returns a Backend rooted there.
func New(base string) (*Backend, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Backend{base: base}, nil
}

// SaveImage writes image bytes under the user's directory.
func (b *Backend) SaveImage(_ context.Context, user, filename string, data []byte) (string, error) {
	dir := filepath.Join(b.base, user)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create user directory: %w", err)
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return path, nil
}

// ListUsers returns the names of user directories under the base.
func (b *Backend) ListUsers(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.base)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read base directory: %w", err)
	}
	users := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			users = append(users, e.Name())
		}
	}
	return users, nil
}

// ListUserImages returns the user's image file paths, sorted.
func (b *Backend) ListUserImages(_ context.Context, user string) ([]string, error) {
	dir := filepath.Join(b.base, user)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user directory: %w", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if isImage(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// SaveModel writes a model artifact into the user's trainer directory.
func (b *Backend) SaveModel(_ context.Context, user, filename string, data []byte) (string, error) {
	dir := filepath.Join(b.base, user, "trainer")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create trainer directory: %w", err)
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write model: %w", err)
	}
	return path, nil
}

// ListModels returns every .yml artifact under any user's trainer directory.
func (b *Backend) ListModels(ctx context.Context) ([]model.ModelRef, error) {
	users, err := b.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(users)

	out := []model.ModelRef{}
	for _, user := range users {
		dir := filepath.Join(b.base, user, "trainer")
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read trainer directory: %w", err)
		}
		for _, e := range entries {
			if !e.IsDir() && strings.ToLower(filepath.Ext(e.Name())) == ".yml" {
				out = append(out, model.ModelRef{User: user, Ref: filepath.Join(dir, e.Name())})
			}
		}
	}
	return out, nil
}

// DownloadToLocal copies the referenced file to a temporary one so the
// caller can unconditionally remove what it gets back. Handing out the
// original path would let training runs delete enrollment data.
func (b *Backend) DownloadToLocal(_ context.Context, ref string) (string, error) {
	src, err := os.Open(ref)
	if os.IsNotExist(err) {
		return "", model.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", ref, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "facelocker-*"+filepath.Ext(ref))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to copy %s: %w", ref, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return tmp.Name(), nil
}

// DeleteUser removes the user's directory with everything in it.
func (b *Backend) DeleteUser(_ context.Context, user string) (bool, error) {
	dir := filepath.Join(b.base, user)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return false, nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, fmt.Errorf("failed to remove user directory: %w", err)
	}
	return true, nil
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}
