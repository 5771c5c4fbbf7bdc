package vectordb

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/philippgille/chromem-go"
)

// LockFileName is created in the database directory while a delete runs.
// chromem-go skips files at the root of its directory when loading.
const LockFileName = ".vecview.lock"

const lockRetryDelay = 100 * time.Millisecond

// Snapshot cache defaults for ChromemConfig.
const (
	DefaultSnapshotCacheSize = 8
	DefaultSnapshotTTL       = 5 * time.Minute
)

// ChromemConfig configures the embedded chromem-go backend.
type ChromemConfig struct {
	Path     string // persistence directory of the database
	Compress bool   // documents are stored as .gob.gz
	InMemory bool   // ignore Path and use a non-persistent database

	SnapshotCacheSize int           // collections kept exported in memory
	SnapshotTTL       time.Duration // lifetime of an exported collection
}

// ChromemClient reads a chromem-go database.
type ChromemClient struct {
	config ChromemConfig

	mu   sync.RWMutex
	db   *chromem.DB
	lock *flock.Flock

	snapshots *expirable.LRU[string, *chromemSnapshot]
}

// chromemSnapshot is a collection's documents sorted by ID.
// It stays valid while the collection's document count is unchanged.
type chromemSnapshot struct {
	count   int
	records []Record
}

// NewChromemClient opens the database described by config.
func NewChromemClient(config ChromemConfig) (*ChromemClient, error) {
	if config.SnapshotCacheSize <= 0 {
		config.SnapshotCacheSize = DefaultSnapshotCacheSize
	}
	if config.SnapshotTTL <= 0 {
		config.SnapshotTTL = DefaultSnapshotTTL
	}
	c := &ChromemClient{
		config:    config,
		snapshots: expirable.NewLRU[string, *chromemSnapshot](config.SnapshotCacheSize, nil, config.SnapshotTTL),
	}

	if config.InMemory {
		c.db = chromem.NewDB()
		return c, nil
	}

	if config.Path == "" {
		return nil, fmt.Errorf("%w: chromem path is empty", ErrInvalidConfig)
	}

	db, err := chromem.NewPersistentDB(config.Path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("failed to open chromem database at %s: %w", config.Path, err)
	}
	c.db = db
	c.lock = flock.New(filepath.Join(config.Path, LockFileName))

	return c, nil
}

// DB exposes the underlying database.
func (c *ChromemClient) DB() *chromem.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

// Path returns the persistence directory, or "" for an in-memory database.
func (c *ChromemClient) Path() string {
	if c.config.InMemory {
		return ""
	}
	return c.config.Path
}

// ListCollections returns every collection sorted by name
func (c *ChromemClient) ListCollections(ctx context.Context) ([]Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names := make([]string, 0)
	for name := range c.DB().ListCollections() {
		names = append(names, name)
	}
	sort.Strings(names)

	collections := make([]Collection, len(names))
	for i, name := range names {
		collections[i] = &chromemCollection{client: c, name: name}
	}
	return collections, nil
}

// GetCollection returns the named collection
func (c *ChromemClient) GetCollection(ctx context.Context, name string) (Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.DB().GetCollection(name, nil) == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return &chromemCollection{client: c, name: name}, nil
}

// DeleteCollection removes the collection and its directory.
// Persistent databases are locked for the duration of the delete.
func (c *ChromemClient) DeleteCollection(ctx context.Context, name string) error {
	if c.lock != nil {
		locked, err := c.lock.TryLockContext(ctx, lockRetryDelay)
		if err != nil {
			return fmt.Errorf("failed to lock database: %w", err)
		}
		if !locked {
			return fmt.Errorf("failed to lock database: %s", c.lock.Path())
		}
		defer func() { _ = c.lock.Unlock() }()
	}

	db := c.DB()
	if db.GetCollection(name, nil) == nil {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	if err := db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", name, err)
	}

	c.dropSnapshot(name)
	return nil
}

// Reload re-reads the database from its persistence directory.
func (c *ChromemClient) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.config.InMemory {
		return nil
	}

	db, err := chromem.NewPersistentDB(c.config.Path, c.config.Compress)
	if err != nil {
		return fmt.Errorf("failed to reload chromem database: %w", err)
	}

	c.mu.Lock()
	c.db = db
	c.mu.Unlock()

	c.snapshots.Purge()
	return nil
}

// Close releases the lock file handle.
func (c *ChromemClient) Close() error {
	if c.lock != nil {
		return c.lock.Close()
	}
	return nil
}

func (c *ChromemClient) dropSnapshot(name string) {
	c.snapshots.Remove(name)
}

// snapshot returns the sorted records of a collection, exporting it when the
// cached copy is missing or stale. The export is cached only when retain is
// set.
func (c *ChromemClient) snapshot(name string, retain bool) ([]Record, error) {
	db := c.DB()
	coll := db.GetCollection(name, nil)
	if coll == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	count := coll.Count()

	snap, ok := c.snapshots.Get(name)
	if ok && snap.count == count {
		return snap.records, nil
	}

	records, err := exportCollection(db, name)
	if err != nil {
		return nil, err
	}

	if retain {
		c.snapshots.Add(name, &chromemSnapshot{count: len(records), records: records})
	}
	return records, nil
}

// exportedDB mirrors the gob layout written by chromem.DB.ExportToWriter.
type exportedDB struct {
	Collections map[string]*exportedCollection
}

type exportedCollection struct {
	Name      string
	Metadata  map[string]string
	Documents map[string]*chromem.Document
}

func exportCollection(db *chromem.DB, name string) ([]Record, error) {
	var buf bytes.Buffer
	if err := db.ExportToWriter(&buf, false, "", name); err != nil {
		return nil, fmt.Errorf("failed to export collection %s: %w", name, err)
	}

	var exported exportedDB
	if err := gob.NewDecoder(&buf).Decode(&exported); err != nil {
		return nil, fmt.Errorf("failed to decode collection %s: %w", name, err)
	}

	coll, ok := exported.Collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	records := make([]Record, 0, len(coll.Documents))
	for id, doc := range coll.Documents {
		if doc == nil {
			continue
		}
		meta := make(map[string]any, len(doc.Metadata))
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		if doc.ID != "" {
			id = doc.ID
		}
		records = append(records, Record{
			ID:        id,
			Document:  doc.Content,
			Metadata:  meta,
			Embedding: doc.Embedding,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	return records, nil
}

type chromemCollection struct {
	client *ChromemClient
	name   string
}

func (c *chromemCollection) Name() string {
	return c.name
}

func (c *chromemCollection) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	coll := c.client.DB().GetCollection(c.name, nil)
	if coll == nil {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, c.name)
	}
	return coll.Count(), nil
}

func (c *chromemCollection) Get(ctx context.Context, opts GetOptions) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Reads of the single leading record are metadata probes and are not cached.
	retain := opts.Limit != 1 || opts.Offset != 0
	records, err := c.client.snapshot(c.name, retain)
	if err != nil {
		return nil, err
	}

	selected := page(records, opts.Limit, opts.Offset)
	out := make([]Record, len(selected))
	for i, r := range selected {
		out[i] = project(r, opts.Include)
	}
	return out, nil
}

func (c *chromemCollection) Query(ctx context.Context, embedding []float32, n int) ([]Match, error) {
	coll := c.client.DB().GetCollection(c.name, nil)
	if coll == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, c.name)
	}

	count := coll.Count()
	if count == 0 || n <= 0 {
		return []Match{}, nil
	}
	if n > count {
		n = count
	}

	records, err := c.client.snapshot(c.name, true)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 && len(records[0].Embedding) != len(embedding) {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, len(records[0].Embedding), len(embedding))
	}

	results, err := coll.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to query collection %s: %w", c.name, err)
	}

	matches := make([]Match, len(results))
	for i, r := range results {
		meta := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			meta[k] = v
		}
		matches[i] = Match{
			Record: Record{ID: r.ID, Document: r.Content, Metadata: meta, Embedding: r.Embedding},
			Score:  r.Similarity,
		}
	}
	return matches, nil
}

// project drops the parts of r not selected by include.
func project(r Record, include Include) Record {
	out := Record{ID: r.ID}
	if include.Has(IncludeDocuments) {
		out.Document = r.Document
	}
	if include.Has(IncludeMetadatas) {
		out.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	if include.Has(IncludeEmbeddings) {
		out.Embedding = r.Embedding
	}
	return out
}
