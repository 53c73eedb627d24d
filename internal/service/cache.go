// Package service implements the face pipeline: enrollment, training,
// the in-memory model cache and recognition queries.
package service

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/facelocker/facelocker-server/internal/logger"
	"github.com/facelocker/facelocker-server/internal/model"
)

// Entry pairs a loaded classifier with its cache label.
type Entry struct {
	Classifier model.Classifier
	Label      int
}

// Snapshot is a consistent view of the cache for one recognition query.
// The label dictionary maps cache labels back to usernames.
type Snapshot struct {
	Entries []Entry
	Labels  map[int]string
}

// ModelCache lazily materializes every stored model artifact as a loaded
// classifier. A populated cache serves reads without touching storage;
// mutations invalidate it so the next read rebuilds.
type ModelCache struct {
	storage model.Backend
	factory model.ClassifierFactory
	logger  *logger.Logger

	mu      sync.Mutex
	loaded  bool
	entries []Entry
	labels  map[int]string
}

// NewModelCache creates an empty, unloaded cache.
func NewModelCache(storage model.Backend, factory model.ClassifierFactory, l *logger.Logger) *ModelCache {
	return &ModelCache{
		storage: storage,
		factory: factory,
		logger:  l,
	}
}

// Read returns a snapshot of the cache, populating it first when needed.
// The snapshot stays valid after later invalidations; superseded
// classifiers are intentionally never closed under a snapshot.
func (c *ModelCache) Read(ctx context.Context) (Snapshot, error) {
	if err := c.Rebuild(ctx, false); err != nil {
		return Snapshot{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		Entries: make([]Entry, len(c.entries)),
		Labels:  make(map[int]string, len(c.labels)),
	}
	copy(snap.Entries, c.entries)
	for k, v := range c.labels {
		snap.Labels[k] = v
	}
	return snap, nil
}

// Invalidate marks the cache stale. The next Read rebuilds from storage.
func (c *ModelCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
}

// Rebuild populates the cache from storage. With force it reloads even when
// already populated; without, a populated cache is a no-op. Labels are
// assigned densely from zero in artifact enumeration order. Artifacts that
// fail to download or deserialize are skipped with a warning, never fatal.
func (c *ModelCache) Rebuild(ctx context.Context, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded && !force {
		return nil
	}

	refs, err := c.storage.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}

	// A user may own several artifacts from overlapping training runs; the
	// lexicographically last reference wins.
	winner := map[string]string{}
	order := []string{}
	for _, ref := range refs {
		prev, ok := winner[ref.User]
		if !ok {
			order = append(order, ref.User)
		}
		if !ok || ref.Ref > prev {
			winner[ref.User] = ref.Ref
		}
	}

	entries := []Entry{}
	labels := map[int]string{}
	for _, user := range order {
		cls, err := c.load(ctx, winner[user])
		if err != nil {
			c.logger.Warn("skipping model artifact", "user", user, "ref", winner[user], "error", err)
			continue
		}
		label := len(entries)
		entries = append(entries, Entry{Classifier: cls, Label: label})
		labels[label] = user
	}

	c.entries = entries
	c.labels = labels
	c.loaded = true
	return nil
}

func (c *ModelCache) load(ctx context.Context, ref string) (model.Classifier, error) {
	path, err := c.storage.DownloadToLocal(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to download model: %w", err)
	}
	defer os.Remove(path)

	cls, err := c.factory.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	return cls, nil
}
