package inspect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yates-Labs/vecview/internal/vectordb"
	"github.com/Yates-Labs/vecview/internal/vectordb/vectordbtest"
)

func newInspector(t *testing.T, client vectordb.Client, cfg Config) *Inspector {
	t.Helper()
	return New(client, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// shuffledChunks returns chunks whose IDs sort in the reverse of their
// start_index order.
func shuffledChunks(n int) []vectordbtest.Chunk {
	chunks := make([]vectordbtest.Chunk, n)
	for i := range chunks {
		chunks[i] = vectordbtest.Chunk{
			ID:      fmt.Sprintf("id-%03d", n-i),
			Content: fmt.Sprintf("line %d", i),
			Metadata: map[string]string{
				"name":        "story.txt",
				"file_id":     "f-1",
				"start_index": fmt.Sprintf("%d", i*10),
			},
			Embedding: []float32{1, 2, 3, 4},
		}
	}
	return chunks
}

func TestInspector_Info(t *testing.T) {
	client := vectordbtest.NewChromem(t, map[string][]vectordbtest.Chunk{
		"docs": vectordbtest.FileChunks("report.pdf", 3),
	})
	insp := newInspector(t, client, Config{})

	info, err := insp.Info(context.Background(), "docs")
	require.NoError(t, err)

	assert.Equal(t, "docs", info.Name)
	assert.Equal(t, 3, info.Count)
	assert.Equal(t, 3, info.Dimension)
	require.NotNil(t, info.File)
	assert.Equal(t, "report.pdf", info.File.Filename)
	assert.Equal(t, "file-report.pdf", info.File.FileID)
	assert.Equal(t, "hash-report.pdf", info.File.Hash)
	assert.Equal(t, "/uploads/report.pdf", info.File.Source)
	require.NotNil(t, info.Embedding)
	assert.Equal(t, "openai", info.Embedding.Engine)
	assert.Equal(t, "text-embedding-3-small", info.Embedding.Model)
	require.Len(t, info.Segments, 3)
	assert.Equal(t, 200, info.Segments[2].StartIndex)
}

func TestInspector_SegmentsSortedAcrossBatches(t *testing.T) {
	client := vectordbtest.NewChromem(t, map[string][]vectordbtest.Chunk{
		"story": shuffledChunks(23),
	})
	insp := newInspector(t, client, Config{BatchSize: 5, Workers: 3})

	segments, err := insp.Segments(context.Background(), "story")
	require.NoError(t, err)
	require.Len(t, segments, 23)

	for i, seg := range segments {
		assert.Equal(t, i*10, seg.StartIndex)
		assert.Equal(t, fmt.Sprintf("line %d", i), seg.Content)
	}
}

func TestInspector_MissingStartIndexSortsFirst(t *testing.T) {
	client := vectordbtest.NewChromem(t, map[string][]vectordbtest.Chunk{
		"mixed": {
			{ID: "a", Content: "second", Metadata: map[string]string{"start_index": "5"}, Embedding: []float32{1, 0}},
			{ID: "b", Content: "first", Metadata: map[string]string{}, Embedding: []float32{0, 1}},
		},
	})
	insp := newInspector(t, client, Config{})

	info, err := insp.Info(context.Background(), "mixed")
	require.NoError(t, err)
	assert.Nil(t, info.File)

	require.Len(t, info.Segments, 2)
	assert.Equal(t, "first", info.Segments[0].Content)
	assert.False(t, info.Segments[0].HasStartIndex)
	assert.True(t, info.Segments[1].HasStartIndex)
}

func TestInspector_Raw(t *testing.T) {
	client := vectordbtest.NewChromem(t, map[string][]vectordbtest.Chunk{
		"story": shuffledChunks(3),
	})
	insp := newInspector(t, client, Config{})

	raw, err := insp.Raw(context.Background(), "story")
	require.NoError(t, err)

	rule := strings.Repeat("=", 50)
	expected := "Full file content:\n" + rule + "\n\nline 0\nline 1\nline 2\n\n" + rule
	assert.Equal(t, expected, raw)
}

func TestInspector_Errors(t *testing.T) {
	client := vectordbtest.NewChromem(t, nil)
	_, err := client.DB().CreateCollection("empty", nil, nil)
	require.NoError(t, err)
	insp := newInspector(t, client, Config{})
	ctx := context.Background()

	_, err = insp.Info(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidCollection)

	_, err = insp.Raw(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidCollection)

	_, err = insp.Info(ctx, "missing")
	assert.ErrorIs(t, err, vectordb.ErrCollectionNotFound)

	_, err = insp.Info(ctx, "empty")
	assert.ErrorIs(t, err, ErrEmptyCollection)

	_, err = insp.Raw(ctx, "empty")
	assert.ErrorIs(t, err, ErrEmptyCollection)
}

func TestInspector_FetchErrorPropagates(t *testing.T) {
	inner := vectordbtest.NewChromem(t, map[string][]vectordbtest.Chunk{
		"docs": vectordbtest.FileChunks("a.txt", 2),
	})
	client := vectordbtest.NewFaultyClient(inner)
	readErr := errors.New("read failed")
	client.FailGet("docs", readErr)

	insp := newInspector(t, client, Config{})
	_, err := insp.Raw(context.Background(), "docs")
	assert.ErrorIs(t, err, readErr)
}

func TestInspector_SegmentCache(t *testing.T) {
	inner := vectordbtest.NewChromem(t, map[string][]vectordbtest.Chunk{
		"docs": vectordbtest.FileChunks("a.txt", 4),
	})
	client := vectordbtest.NewFaultyClient(inner)
	insp := newInspector(t, client, Config{BatchSize: 2})
	ctx := context.Background()

	_, err := insp.Segments(ctx, "docs")
	require.NoError(t, err)
	calls := client.GetCalls.Load()
	assert.EqualValues(t, 2, calls)

	_, err = insp.Segments(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, calls, client.GetCalls.Load(), "cached segments should not be refetched")

	insp.Evict("docs")
	_, err = insp.Segments(ctx, "docs")
	require.NoError(t, err)
	assert.Greater(t, client.GetCalls.Load(), calls)

	// A changed count invalidates the cached copy.
	calls = client.GetCalls.Load()
	vectordbtest.Seed(t, inner.DB(), "docs", []vectordbtest.Chunk{{ID: "zz", Content: "new", Embedding: []float32{1, 1, 1}}})
	segments, err := insp.Segments(ctx, "docs")
	require.NoError(t, err)
	assert.Len(t, segments, 5)
	assert.Greater(t, client.GetCalls.Load(), calls)
}

func TestParseEmbeddingConfig(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  *EmbeddingConfig
	}{
		{"json string", `{"engine": "ollama", "model": "nomic"}`, &EmbeddingConfig{Engine: "ollama", Model: "nomic"}},
		{"decoded object", map[string]any{"engine": "openai"}, &EmbeddingConfig{Engine: "openai"}},
		{"malformed", `{engine`, nil},
		{"empty object", `{}`, nil},
		{"empty string", "", nil},
		{"nil", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseEmbeddingConfig(tt.value))
		})
	}
}
