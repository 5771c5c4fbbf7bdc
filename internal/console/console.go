// Package console ties the catalog and the inspector together into the
// operations offered by every vecview front end.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Yates-Labs/vecview/internal/catalog"
	"github.com/Yates-Labs/vecview/internal/inspect"
	"github.com/Yates-Labs/vecview/internal/observability"
	"github.com/Yates-Labs/vecview/internal/vectordb"
)

// Common errors for console operations
var (
	ErrNoFilename      = errors.New("no filename selected")
	ErrUnknownFilename = errors.New("no collections found for filename")
	ErrNoEmbedder      = errors.New("search requires an embedding provider")
	ErrEmptyQuery      = errors.New("search text is empty")
)

// Embedder turns query text into a vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// View is the rendered state of one collection.
type View struct {
	Collection string                  `json:"collection"`
	Info       *inspect.CollectionInfo `json:"info"`
	Text       string                  `json:"text"`
	Raw        string                  `json:"raw"`
}

// DeleteResult reports a delete by filename.
type DeleteResult struct {
	Filename  string   `json:"filename"`
	Deleted   []string `json:"deleted"`
	Failed    []string `json:"failed,omitempty"`
	Attempted int      `json:"attempted"`
}

// Message renders the result as a status line.
func (r DeleteResult) Message() string {
	return fmt.Sprintf("deleted %d/%d collections", len(r.Deleted), r.Attempted)
}

// Console is the façade over a vector database used by the CLI, the
// interactive browser and the HTTP API.
type Console struct {
	client    vectordb.Client
	catalog   *catalog.Catalog
	inspector *inspect.Inspector
	embedder  Embedder
	logger    *slog.Logger
}

// Option configures a Console.
type Option func(*Console)

// WithEmbedder enables Search.
func WithEmbedder(e Embedder) Option {
	return func(c *Console) {
		c.embedder = e
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Console) {
		c.logger = logger
	}
}

// New creates a Console.
func New(client vectordb.Client, cat *catalog.Catalog, insp *inspect.Inspector, opts ...Option) *Console {
	c := &Console{
		client:    client,
		catalog:   cat,
		inspector: insp,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Catalog returns the filename catalog.
func (c *Console) Catalog() *catalog.Catalog {
	return c.catalog
}

// Inspector returns the collection inspector.
func (c *Console) Inspector() *inspect.Inspector {
	return c.inspector
}

// ListCollections returns collection names in sorted order.
func (c *Console) ListCollections(ctx context.Context) ([]string, error) {
	c.logger.Info("listing collections")

	colls, err := c.client.ListCollections(ctx)
	if err != nil {
		c.logger.Error("failed to list collections", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing collections: %w", err)
	}

	names := make([]string, len(colls))
	for i, coll := range colls {
		names[i] = coll.Name()
	}
	c.logger.Debug("found collections", slog.Int("count", len(names)))
	return names, nil
}

// Count returns the number of records in a collection.
func (c *Console) Count(ctx context.Context, name string) (int, error) {
	if name == "" {
		return 0, inspect.ErrInvalidCollection
	}
	coll, err := c.client.GetCollection(ctx, name)
	if err != nil {
		return 0, err
	}
	return coll.Count(ctx)
}

// RefreshFiles loads or refreshes the filename mapping and returns the
// sorted filenames.
func (c *Console) RefreshFiles(ctx context.Context, force bool) ([]string, catalog.Summary, error) {
	c.logger.Info("refreshing filename list", slog.Bool("force", force))

	summary, err := c.catalog.Refresh(ctx, force)
	if err != nil {
		return nil, catalog.Summary{}, err
	}
	return c.catalog.Filenames(), summary, nil
}

// Filenames returns the currently mapped filenames.
func (c *Console) Filenames() []string {
	return c.catalog.Filenames()
}

// CollectionsByFilename returns the collections derived from filename.
func (c *Console) CollectionsByFilename(filename string) []string {
	collections := c.catalog.Collections(filename)
	c.logger.Debug("collections for filename",
		slog.String("filename", filename),
		slog.Int("count", len(collections)))
	return collections
}

// Progress returns the filename scan progress.
func (c *Console) Progress() catalog.Progress {
	return c.catalog.Progress()
}

// ViewCollection loads the info view and the reconstructed file content.
func (c *Console) ViewCollection(ctx context.Context, name string) (*View, error) {
	info, err := c.inspector.Info(ctx, name)
	if err != nil {
		return nil, err
	}

	raw, err := c.inspector.Raw(ctx, name)
	if err != nil {
		return nil, err
	}

	return &View{
		Collection: name,
		Info:       info,
		Text:       inspect.RenderInfo(info, c.inspector.Config().PreviewChars),
		Raw:        raw,
	}, nil
}

// ViewFile shows the first collection mapped to filename.
func (c *Console) ViewFile(ctx context.Context, filename string) (*View, error) {
	if filename == "" {
		c.logger.Warn("no filename selected")
		return nil, ErrNoFilename
	}

	collections := c.catalog.Collections(filename)
	if len(collections) == 0 {
		c.logger.Warn("no collections for filename", slog.String("filename", filename))
		return nil, fmt.Errorf("%w: %s", ErrUnknownFilename, filename)
	}

	view, err := c.ViewCollection(ctx, collections[0])
	if err != nil {
		return nil, err
	}
	c.logger.Debug("viewed file",
		slog.String("filename", filename),
		slog.String("collection", collections[0]))
	return view, nil
}

// DeleteFile deletes every collection mapped to filename. Individual
// failures do not stop the loop; failed collections stay mapped so the
// delete can be retried. A collection that is already gone counts as
// deleted.
func (c *Console) DeleteFile(ctx context.Context, filename string) (result DeleteResult, err error) {
	if filename == "" {
		c.logger.Warn("no filename selected")
		return DeleteResult{}, ErrNoFilename
	}

	collections := c.catalog.Collections(filename)
	if len(collections) == 0 {
		c.logger.Warn("no collections for filename", slog.String("filename", filename))
		return DeleteResult{}, fmt.Errorf("%w: %s", ErrUnknownFilename, filename)
	}

	c.logger.Info("deleting collections for filename",
		slog.String("filename", filename),
		slog.Int("collections", len(collections)))

	result = DeleteResult{Filename: filename, Attempted: len(collections)}
	defer func() {
		if len(result.Deleted) == 0 {
			return
		}
		// Collections not reached before cancellation stay mapped too.
		deleted := make(map[string]bool, len(result.Deleted))
		for _, name := range result.Deleted {
			deleted[name] = true
		}
		var remaining []string
		for _, name := range collections {
			if !deleted[name] {
				remaining = append(remaining, name)
			}
		}
		c.catalog.Replace(filename, remaining)
		c.inspector.Evict(result.Deleted...)
		c.logger.Info("updated filename mapping",
			slog.String("filename", filename),
			slog.Int("remaining", len(remaining)))
	}()

	for _, name := range collections {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		err := c.client.DeleteCollection(ctx, name)
		switch {
		case err == nil:
		case errors.Is(err, vectordb.ErrCollectionNotFound):
			c.logger.Warn("collection already deleted", slog.String("collection", name))
		default:
			result.Failed = append(result.Failed, name)
			observability.DeletesTotal.WithLabelValues("failed").Inc()
			c.logger.Error("failed to delete collection",
				slog.String("collection", name),
				slog.String("error", err.Error()))
			continue
		}
		result.Deleted = append(result.Deleted, name)
		observability.DeletesTotal.WithLabelValues("deleted").Inc()
		c.logger.Debug("deleted collection", slog.String("collection", name))
	}

	c.logger.Info("delete finished",
		slog.String("filename", filename),
		slog.Int("deleted", len(result.Deleted)),
		slog.Int("attempted", result.Attempted))
	return result, nil
}

// Search embeds text and returns the n nearest records of a collection.
func (c *Console) Search(ctx context.Context, collection, text string, n int) ([]vectordb.Match, error) {
	if c.embedder == nil {
		return nil, ErrNoEmbedder
	}
	if collection == "" {
		return nil, inspect.ErrInvalidCollection
	}
	if text == "" {
		return nil, ErrEmptyQuery
	}

	coll, err := c.client.GetCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	vec, err := c.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	c.logger.Info("searching collection",
		slog.String("collection", collection),
		slog.Int("top_k", n))
	return coll.Query(ctx, vec, n)
}

// Reload re-reads persisted state and drops every cached view.
func (c *Console) Reload(ctx context.Context) error {
	if r, ok := c.client.(vectordb.Reloader); ok {
		if err := r.Reload(ctx); err != nil {
			return err
		}
	}
	c.catalog.Invalidate()
	c.inspector.Purge()
	c.logger.Info("reloaded database")
	return nil
}

// Close closes the underlying client.
func (c *Console) Close() error {
	return c.client.Close()
}
