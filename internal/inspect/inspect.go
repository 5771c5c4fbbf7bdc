// Package inspect renders the contents of a single collection: the source
// file it came from, its embedding configuration, and every chunk in
// document order.
package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/Yates-Labs/vecview/internal/vectordb"
)

// Common errors for inspection
var (
	ErrInvalidCollection = errors.New("no valid collection selected")
	ErrEmptyCollection   = errors.New("collection is empty")
)

// Metadata keys written by the ingesting application
const (
	KeyFilename        = "name"
	KeyFileID          = "file_id"
	KeyHash            = "hash"
	KeySource          = "source"
	KeyStartIndex      = "start_index"
	KeyEmbeddingConfig = "embedding_config"
)

// Config controls segment fetching and caching.
type Config struct {
	BatchSize    int           // records per Get call (default 500)
	Workers      int           // concurrent Get calls (default 10)
	PreviewChars int           // characters of content shown per segment (default 200)
	CacheSize    int           // collections kept in the segment cache (default 64)
	CacheTTL     time.Duration // segment cache expiry (default 5m)
}

func (c *Config) defaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.Workers <= 0 {
		c.Workers = 10
	}
	if c.PreviewChars <= 0 {
		c.PreviewChars = 200
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 64
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Minute
	}
}

// FileInfo identifies the source file of a collection.
type FileInfo struct {
	Filename string `json:"filename"`
	FileID   string `json:"file_id"`
	Hash     string `json:"hash,omitempty"`
	Source   string `json:"source,omitempty"`
}

// EmbeddingConfig is the embedding engine recorded with the chunks.
type EmbeddingConfig struct {
	Engine string `json:"engine,omitempty"`
	Model  string `json:"model,omitempty"`
}

// Segment is one chunk of the source file.
type Segment struct {
	ID            string         `json:"id"`
	StartIndex    int            `json:"start_index"`
	HasStartIndex bool           `json:"has_start_index"`
	Content       string         `json:"content"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// CollectionInfo is everything shown for a collection.
type CollectionInfo struct {
	Name      string           `json:"name"`
	File      *FileInfo        `json:"file,omitempty"`
	Embedding *EmbeddingConfig `json:"embedding_config,omitempty"`
	Count     int              `json:"count"`
	Dimension int              `json:"dimension,omitempty"`
	Segments  []Segment        `json:"segments"`
}

// Inspector reads collections through a vector database client.
type Inspector struct {
	client vectordb.Client
	config Config
	logger *slog.Logger
	cache  *expirable.LRU[string, []Segment]
}

// New creates an Inspector.
func New(client vectordb.Client, config Config, logger *slog.Logger) *Inspector {
	config.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Inspector{
		client: client,
		config: config,
		logger: logger,
		cache:  expirable.NewLRU[string, []Segment](config.CacheSize, nil, config.CacheTTL),
	}
}

// Config returns the effective configuration.
func (i *Inspector) Config() Config {
	return i.config
}

// Info loads the file info, stats and all segments of a collection.
func (i *Inspector) Info(ctx context.Context, name string) (*CollectionInfo, error) {
	if name == "" {
		i.logger.Warn("invalid collection name")
		return nil, ErrInvalidCollection
	}
	i.logger.Info("loading collection info", slog.String("collection", name))

	coll, err := i.client.GetCollection(ctx, name)
	if err != nil {
		return nil, err
	}

	var (
		count int
		first []vectordb.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		first, err = coll.Get(gctx, vectordb.GetOptions{Limit: 1, Include: vectordb.IncludeAll})
		return err
	})
	g.Go(func() error {
		var err error
		count, err = coll.Count(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		i.logger.Error("failed to load collection",
			slog.String("collection", name),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("loading collection %s: %w", name, err)
	}

	if len(first) == 0 {
		i.logger.Warn("collection is empty", slog.String("collection", name))
		return nil, ErrEmptyCollection
	}

	info := &CollectionInfo{
		Name:      name,
		Count:     count,
		Dimension: len(first[0].Embedding),
	}
	info.File, info.Embedding = fileInfo(first)

	segments, err := i.segments(ctx, coll, count)
	if err != nil {
		return nil, err
	}
	info.Segments = segments

	i.logger.Debug("loaded collection info",
		slog.String("collection", name),
		slog.Int("segments", len(segments)))
	return info, nil
}

// Raw reconstructs the source file of a collection.
func (i *Inspector) Raw(ctx context.Context, name string) (string, error) {
	segments, err := i.Segments(ctx, name)
	if err != nil {
		return "", err
	}
	i.logger.Debug("rebuilt file content", slog.String("collection", name))
	return RenderRaw(segments), nil
}

// Segments returns every segment of a collection sorted by start index.
func (i *Inspector) Segments(ctx context.Context, name string) ([]Segment, error) {
	if name == "" {
		i.logger.Warn("invalid collection name")
		return nil, ErrInvalidCollection
	}
	i.logger.Info("loading collection segments", slog.String("collection", name))

	coll, err := i.client.GetCollection(ctx, name)
	if err != nil {
		return nil, err
	}

	count, err := coll.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting collection %s: %w", name, err)
	}
	if count == 0 {
		i.logger.Warn("collection is empty", slog.String("collection", name))
		return nil, ErrEmptyCollection
	}

	segments, err := i.segments(ctx, coll, count)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, ErrEmptyCollection
	}
	return segments, nil
}

// Evict drops cached segments of the named collections.
func (i *Inspector) Evict(names ...string) {
	for _, name := range names {
		i.cache.Remove(name)
	}
}

// Purge drops every cached collection.
func (i *Inspector) Purge() {
	i.cache.Purge()
}

// segments fetches count records in parallel batches. A cached result is
// reused while its length still matches count.
func (i *Inspector) segments(ctx context.Context, coll vectordb.Collection, count int) ([]Segment, error) {
	name := coll.Name()
	if cached, ok := i.cache.Get(name); ok && len(cached) == count {
		return cached, nil
	}

	size := i.config.BatchSize
	numBatches := (count + size - 1) / size
	batches := make([][]vectordb.Record, numBatches)

	i.logger.Info("fetching segments",
		slog.String("collection", name),
		slog.Int("count", count),
		slog.Int("batches", numBatches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.config.Workers)
	for b := 0; b < numBatches; b++ {
		g.Go(func() error {
			records, err := coll.Get(gctx, vectordb.GetOptions{
				Limit:   size,
				Offset:  b * size,
				Include: vectordb.IncludeDocuments | vectordb.IncludeMetadatas,
			})
			if err != nil {
				return err
			}
			batches[b] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		i.logger.Error("failed to fetch segments",
			slog.String("collection", name),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("fetching segments of %s: %w", name, err)
	}

	segments := make([]Segment, 0, count)
	for _, batch := range batches {
		for _, r := range batch {
			segments = append(segments, toSegment(r))
		}
	}
	SortSegments(segments)

	i.cache.Add(name, segments)
	return segments, nil
}

func toSegment(r vectordb.Record) Segment {
	start, ok := vectordb.MetaInt(r.Metadata, KeyStartIndex)
	return Segment{
		ID:            r.ID,
		StartIndex:    start,
		HasStartIndex: ok,
		Content:       r.Document,
		Metadata:      r.Metadata,
	}
}

// SortSegments orders segments by start index; missing indexes count as 0.
// Ties keep ID order so output is deterministic.
func SortSegments(segments []Segment) {
	sort.SliceStable(segments, func(a, b int) bool {
		if segments[a].StartIndex != segments[b].StartIndex {
			return segments[a].StartIndex < segments[b].StartIndex
		}
		return segments[a].ID < segments[b].ID
	})
}

// fileInfo takes the first record carrying both file_id and name.
func fileInfo(records []vectordb.Record) (*FileInfo, *EmbeddingConfig) {
	for _, r := range records {
		fileID := vectordb.MetaString(r.Metadata, KeyFileID)
		filename := vectordb.MetaString(r.Metadata, KeyFilename)
		if fileID == "" || filename == "" {
			continue
		}

		file := &FileInfo{
			Filename: filename,
			FileID:   fileID,
			Hash:     vectordb.MetaString(r.Metadata, KeyHash),
			Source:   vectordb.MetaString(r.Metadata, KeySource),
		}
		return file, parseEmbeddingConfig(r.Metadata[KeyEmbeddingConfig])
	}
	return nil, nil
}

// parseEmbeddingConfig accepts a JSON string or an already decoded object.
// Malformed values are ignored.
func parseEmbeddingConfig(v any) *EmbeddingConfig {
	var raw []byte
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		if val == "" {
			return nil
		}
		raw = []byte(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return nil
		}
		raw = b
	}

	var cfg EmbeddingConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil
	}
	if cfg.Engine == "" && cfg.Model == "" {
		return nil
	}
	return &cfg
}
