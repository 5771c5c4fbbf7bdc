package console

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yates-Labs/vecview/internal/catalog"
	"github.com/Yates-Labs/vecview/internal/inspect"
	"github.com/Yates-Labs/vecview/internal/vectordb"
	"github.com/Yates-Labs/vecview/internal/vectordb/vectordbtest"
)

type staticEmbedder struct {
	vec []float32
	err error
}

func (e staticEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.vec, e.err
}

func newConsole(t *testing.T, client vectordb.Client, opts ...Option) *Console {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cat := catalog.New(client, catalog.Config{}, logger)
	insp := inspect.New(client, inspect.Config{}, logger)
	return New(client, cat, insp, append([]Option{WithLogger(logger)}, opts...)...)
}

func fixture(t *testing.T) *vectordbtest.FaultyClient {
	t.Helper()
	return vectordbtest.NewFaultyClient(vectordbtest.NewChromem(t, map[string][]vectordbtest.Chunk{
		"c1": vectordbtest.FileChunks("report.pdf", 2),
		"c2": vectordbtest.FileChunks("report.pdf", 3),
		"c3": vectordbtest.FileChunks("notes.md", 1),
	}))
}

func TestConsole_ListAndRefresh(t *testing.T) {
	c := newConsole(t, fixture(t))
	ctx := context.Background()

	names, err := c.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2", "c3"}, names)

	files, summary, err := c.RefreshFiles(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"notes.md", "report.pdf"}, files)
	assert.Equal(t, 3, summary.Collections)
	assert.Equal(t, []string{"c1", "c2"}, c.CollectionsByFilename("report.pdf"))
	assert.Equal(t, 3, c.Progress().Total)
}

func TestConsole_Count(t *testing.T) {
	c := newConsole(t, fixture(t))
	ctx := context.Background()

	n, err := c.Count(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = c.Count(ctx, "")
	assert.ErrorIs(t, err, inspect.ErrInvalidCollection)

	_, err = c.Count(ctx, "missing")
	assert.ErrorIs(t, err, vectordb.ErrCollectionNotFound)
}

func TestConsole_ViewFile(t *testing.T) {
	c := newConsole(t, fixture(t))
	ctx := context.Background()

	_, _, err := c.RefreshFiles(ctx, false)
	require.NoError(t, err)

	view, err := c.ViewFile(ctx, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "c1", view.Collection)
	assert.Contains(t, view.Text, "Filename: report.pdf")
	assert.Contains(t, view.Raw, "report.pdf part 0\nreport.pdf part 1")

	_, err = c.ViewFile(ctx, "")
	assert.ErrorIs(t, err, ErrNoFilename)

	_, err = c.ViewFile(ctx, "missing.txt")
	assert.ErrorIs(t, err, ErrUnknownFilename)
}

func TestConsole_DeleteFile(t *testing.T) {
	client := fixture(t)
	c := newConsole(t, client)
	ctx := context.Background()

	_, _, err := c.RefreshFiles(ctx, false)
	require.NoError(t, err)

	result, err := c.DeleteFile(ctx, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, result.Deleted)
	assert.Empty(t, result.Failed)
	assert.Equal(t, "deleted 2/2 collections", result.Message())

	assert.Equal(t, []string{"notes.md"}, c.Filenames())
	names, err := c.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c3"}, names)
}

func TestConsole_DeleteFilePartialFailure(t *testing.T) {
	client := fixture(t)
	client.FailDelete("c2", errors.New("permission denied"))
	c := newConsole(t, client)
	ctx := context.Background()

	_, _, err := c.RefreshFiles(ctx, false)
	require.NoError(t, err)

	result, err := c.DeleteFile(ctx, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, result.Deleted)
	assert.Equal(t, []string{"c2"}, result.Failed)
	assert.Equal(t, "deleted 1/2 collections", result.Message())

	assert.Equal(t, []string{"c2"}, c.CollectionsByFilename("report.pdf"))
}

func TestConsole_DeleteFileAllFailed(t *testing.T) {
	client := fixture(t)
	client.FailDelete("c3", errors.New("locked"))
	c := newConsole(t, client)
	ctx := context.Background()

	_, _, err := c.RefreshFiles(ctx, false)
	require.NoError(t, err)

	result, err := c.DeleteFile(ctx, "notes.md")
	require.NoError(t, err)
	assert.Equal(t, "deleted 0/1 collections", result.Message())
	assert.Equal(t, []string{"c3"}, c.CollectionsByFilename("notes.md"))
}

func TestConsole_DeleteFileValidation(t *testing.T) {
	c := newConsole(t, fixture(t))

	_, err := c.DeleteFile(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoFilename)

	_, err = c.DeleteFile(context.Background(), "unknown.txt")
	assert.ErrorIs(t, err, ErrUnknownFilename)
}

func TestConsole_Search(t *testing.T) {
	ctx := context.Background()

	c := newConsole(t, fixture(t))
	_, err := c.Search(ctx, "c1", "hello", 1)
	assert.ErrorIs(t, err, ErrNoEmbedder)

	c = newConsole(t, fixture(t), WithEmbedder(staticEmbedder{vec: []float32{1, 2, 0.5}}))
	matches, err := c.Search(ctx, "c2", "part 1", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "report.pdf-0001", matches[0].ID)

	_, err = c.Search(ctx, "c2", "", 2)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = c.Search(ctx, "nope", "x", 2)
	assert.ErrorIs(t, err, vectordb.ErrCollectionNotFound)

	embedErr := errors.New("quota exceeded")
	c = newConsole(t, fixture(t), WithEmbedder(staticEmbedder{err: embedErr}))
	_, err = c.Search(ctx, "c1", "x", 1)
	assert.ErrorIs(t, err, embedErr)
}

func TestConsole_ReloadInvalidatesCatalog(t *testing.T) {
	client := fixture(t)
	c := newConsole(t, client)
	ctx := context.Background()

	_, _, err := c.RefreshFiles(ctx, false)
	require.NoError(t, err)
	require.NoError(t, c.Reload(ctx))

	_, summary, err := c.RefreshFiles(ctx, false)
	require.NoError(t, err)
	assert.False(t, summary.Cached)
	assert.EqualValues(t, 2, client.ListCalls.Load())
}

func TestConsole_DeleteFileCancelledMidway(t *testing.T) {
	client := fixture(t)
	c := newConsole(t, client)

	_, _, err := c.RefreshFiles(context.Background(), false)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	client.AfterDelete(func(string) { cancel() })

	result, err := c.DeleteFile(ctx, "report.pdf")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"c1"}, result.Deleted)
	assert.Equal(t, []string{"c2"}, c.CollectionsByFilename("report.pdf"))

	client.AfterDelete(nil)
	result, err = c.DeleteFile(context.Background(), "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "deleted 1/1 collections", result.Message())
	assert.NotContains(t, c.Filenames(), "report.pdf")
}

func TestConsole_DeleteFileAlreadyGone(t *testing.T) {
	client := fixture(t)
	c := newConsole(t, client)
	ctx := context.Background()

	_, _, err := c.RefreshFiles(ctx, false)
	require.NoError(t, err)
	require.NoError(t, client.DeleteCollection(ctx, "c1"))

	result, err := c.DeleteFile(ctx, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, result.Deleted)
	assert.Empty(t, result.Failed)
	assert.NotContains(t, c.Filenames(), "report.pdf")
}
