// Package azure implements the storage backend on an Azure blob container.
// Blob names follow <prefix>/<user>/<filename> and
// <prefix>/<user>/trainer/<filename>; references use the
// azure://container/blob form.
package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/facelocker/facelocker-server/internal/model"
)

// Internal adapter interface to enable mocking without a real blob account.
// It narrows the azblob client to the flat operations the backend needs;
// the wrapper drains list pagers so fakes can return plain slices.
type azureAPI interface {
	EnsureContainer(ctx context.Context, container string) error
	Upload(ctx context.Context, container, blob string, data []byte) error
	List(ctx context.Context, container, prefix string) ([]string, error)
	Download(ctx context.Context, container, blob string) (io.ReadCloser, error)
	Delete(ctx context.Context, container, blob string) error
}

// Wrapper to adapt *azblob.Client to azureAPI.
type azClientWrapper struct{ c *azblob.Client }

func (w azClientWrapper) EnsureContainer(ctx context.Context, container string) error {
	_, err := w.c.CreateContainer(ctx, container, nil)
	if bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return nil
	}
	return err
}

func (w azClientWrapper) Upload(ctx context.Context, container, blob string, data []byte) error {
	_, err := w.c.UploadBuffer(ctx, container, blob, data, nil)
	return err
}

func (w azClientWrapper) List(ctx context.Context, container, prefix string) ([]string, error) {
	opts := &azblob.ListBlobsFlatOptions{}
	if prefix != "" {
		opts.Prefix = &prefix
	}
	names := []string{}
	pager := w.c.NewListBlobsFlatPager(container, opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				names = append(names, *item.Name)
			}
		}
	}
	return names, nil
}

func (w azClientWrapper) Download(ctx context.Context, container, blob string) (io.ReadCloser, error) {
	resp, err := w.c.DownloadStream(ctx, container, blob, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (w azClientWrapper) Delete(ctx context.Context, container, blob string) error {
	_, err := w.c.DeleteBlob(ctx, container, blob, nil)
	return err
}

var _ model.Backend = (*Client)(nil)

// Client is the Azure blob-container storage backend.
type Client struct {
	api       azureAPI
	container string
	prefix    string
}

// NewClient creates a storage backend from a connection string, creating
// the container when it does not exist yet.
func NewClient(ctx context.Context, connectionString, container, prefix string) (*Client, error) {
	azc, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure client: %w", err)
	}
	return NewClientWithAPI(ctx, azClientWrapper{c: azc}, container, prefix)
}

// NewClientWithAPI allows injecting a mockable API (used in tests).
func NewClientWithAPI(ctx context.Context, api azureAPI, container, prefix string) (*Client, error) {
	c := &Client{
		api:       api,
		container: container,
		prefix:    strings.Trim(prefix, "/"),
	}

	if err := c.api.EnsureContainer(ctx, container); err != nil {
		return nil, fmt.Errorf("failed to ensure container exists: %w", err)
	}

	return c, nil
}

func (c *Client) blobName(parts ...string) string {
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

func (c *Client) ref(blob string) string {
	return fmt.Sprintf("azure://%s/%s", c.container, blob)
}

func parseRef(ref string) (container, blob string, err error) {
	rest, ok := strings.CutPrefix(ref, "azure://")
	if !ok {
		return "", "", fmt.Errorf("not an azure reference: %s", ref)
	}
	container, blob, ok = strings.Cut(rest, "/")
	if !ok || container == "" || blob == "" {
		return "", "", fmt.Errorf("malformed azure reference: %s", ref)
	}
	return container, blob, nil
}

// SaveImage writes image bytes under the user's prefix.
func (c *Client) SaveImage(ctx context.Context, user, filename string, data []byte) (string, error) {
	blob := c.blobName(user, filename)
	if err := c.api.Upload(ctx, c.container, blob, data); err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	return c.ref(blob), nil
}

// ListUsers returns the distinct first path segments below the prefix.
func (c *Client) ListUsers(ctx context.Context) ([]string, error) {
	base := ""
	if c.prefix != "" {
		base = c.prefix + "/"
	}
	names, err := c.api.List(ctx, c.container, base)
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}
	seen := map[string]struct{}{}
	users := []string{}
	for _, name := range names {
		rel := strings.TrimPrefix(name, base)
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
	names, err := c.api.List(ctx, c.container, c.blobName(user)+"/")
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}
	out := []string{}
	for _, name := range names {
		if isImage(name) {
			out = append(out, c.ref(name))
		}
	}
	sort.Strings(out)
	return out, nil
}

// SaveModel writes a model artifact under the user's trainer prefix.
func (c *Client) SaveModel(ctx context.Context, user, filename string, data []byte) (string, error) {
	blob := c.blobName(user, "trainer", filename)
	if err := c.api.Upload(ctx, c.container, blob, data); err != nil {
		return "", fmt.Errorf("failed to upload model: %w", err)
	}
	return c.ref(blob), nil
}

// ListModels returns every .yml blob under a trainer prefix. The owning
// user is the path segment immediately preceding "trainer".
func (c *Client) ListModels(ctx context.Context) ([]model.ModelRef, error) {
	base := ""
	if c.prefix != "" {
		base = c.prefix + "/"
	}
	names, err := c.api.List(ctx, c.container, base)
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}
	out := []model.ModelRef{}
	for _, name := range names {
		if strings.ToLower(path.Ext(name)) != ".yml" {
			continue
		}
		user := userFromBlob(name)
		if user == "" {
			continue
		}
		out = append(out, model.ModelRef{User: user, Ref: c.ref(name)})
	}
	return out, nil
}

// DownloadToLocal materializes the referenced blob as a temporary file.
func (c *Client) DownloadToLocal(ctx context.Context, ref string) (string, error) {
	container, blob, err := parseRef(ref)
	if err != nil {
		return "", err
	}

	body, err := c.api.Download(ctx, container, blob)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return "", model.ErrNotFound
		}
		return "", fmt.Errorf("failed to download blob: %w", err)
	}
	defer body.Close()

	tmp, err := os.CreateTemp("", "facelocker-*"+path.Ext(blob))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to download blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return tmp.Name(), nil
}

// DeleteUser removes every blob under the user's prefix. Blobs that vanish
// mid-scan are ignored.
func (c *Client) DeleteUser(ctx context.Context, user string) (bool, error) {
	names, err := c.api.List(ctx, c.container, c.blobName(user)+"/")
	if err != nil {
		return false, fmt.Errorf("failed to list blobs: %w", err)
	}
	if len(names) == 0 {
		return false, nil
	}

	var errs []error
	for _, name := range names {
		err := c.api.Delete(ctx, c.container, name)
		if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", name, err))
		}
	}
	return true, errors.Join(errs...)
}

func userFromBlob(name string) string {
	parts := strings.Split(name, "/")
	for i := len(parts) - 1; i > 0; i-- {
		if parts[i] == "trainer" {
			return parts[i-1]
		}
	}
	return ""
}

func isImage(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}
