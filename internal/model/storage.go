package model

import "context"

// ModelRef locates one trained model artifact in storage.
type ModelRef struct {
	User string `json:"user"`
	Ref  string `json:"ref"`
}

// Backend is the uniform contract over a content store holding per-user
// enrollment images and trained model artifacts. Implementations must be
// safe for concurrent use.
//
// References returned by Save/List operations are opaque (a filesystem path
// for the local backend, an s3:// or azure:// URI for remote ones) and are
// only meaningful to the backend that produced them.
type Backend interface {
	// SaveImage writes image bytes under the user's namespace, creating it
	// if absent. An existing file with the same name is overwritten.
	SaveImage(ctx context.Context, user, filename string, data []byte) (string, error)

	// ListUsers enumerates namespaces containing at least one object.
	// An empty store yields an empty slice, not an error.
	ListUsers(ctx context.Context) ([]string, error)

	// ListUserImages returns the user's image references (.jpg, .jpeg, .png),
	// sorted lexicographically.
	ListUserImages(ctx context.Context, user string) ([]string, error)

	// SaveModel writes a model artifact into the user's trainer sub-namespace.
	SaveModel(ctx context.Context, user, filename string, data []byte) (string, error)

	// ListModels returns every .yml artifact under any trainer sub-namespace,
	// with the owning user recovered from the reference path.
	ListModels(ctx context.Context) ([]ModelRef, error)

	// DownloadToLocal materializes the referenced object as a local temporary
	// file and returns its path. The caller owns the file and must remove it
	// after use. Returns ErrNotFound when the reference does not exist.
	DownloadToLocal(ctx context.Context, ref string) (string, error)

	// DeleteUser removes every object under the user's namespace, images and
	// models alike. Returns false when the user had no objects. Deletion is
	// best-effort with respect to concurrent listings.
	DeleteUser(ctx context.Context, user string) (bool, error)
}
