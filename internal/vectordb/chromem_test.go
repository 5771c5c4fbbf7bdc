package vectordb_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yates-Labs/vecview/internal/vectordb"
	"github.com/Yates-Labs/vecview/internal/vectordb/vectordbtest"
)

func TestChromemClient_ListCollectionsSorted(t *testing.T) {
	client := vectordbtest.NewChromem(t, map[string][]vectordbtest.Chunk{
		"c-beta":  vectordbtest.FileChunks("b.txt", 1),
		"c-alpha": vectordbtest.FileChunks("a.txt", 1),
		"c-gamma": vectordbtest.FileChunks("c.txt", 1),
	})

	colls, err := client.ListCollections(context.Background())
	require.NoError(t, err)
	require.Len(t, colls, 3)

	names := []string{colls[0].Name(), colls[1].Name(), colls[2].Name()}
	assert.Equal(t, []string{"c-alpha", "c-beta", "c-gamma"}, names)
}

func TestChromemClient_GetCollectionNotFound(t *testing.T) {
	client := vectordbtest.NewChromem(t, nil)

	_, err := client.GetCollection(context.Background(), "missing")
	assert.ErrorIs(t, err, vectordb.ErrCollectionNotFound)

	err = client.DeleteCollection(context.Background(), "missing")
	assert.ErrorIs(t, err, vectordb.ErrCollectionNotFound)
}

func TestChromemCollection_GetPaging(t *testing.T) {
	ctx := context.Background()
	client := vectordbtest.NewChromem(t, map[string][]vectordbtest.Chunk{
		"docs": vectordbtest.FileChunks("report.pdf", 7),
	})

	coll, err := client.GetCollection(ctx, "docs")
	require.NoError(t, err)

	count, err := coll.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, count)

	seen := map[string]bool{}
	for offset := 0; offset < count; offset += 3 {
		records, err := coll.Get(ctx, vectordb.GetOptions{Limit: 3, Offset: offset, Include: vectordb.IncludeDocuments})
		require.NoError(t, err)
		for _, r := range records {
			assert.False(t, seen[r.ID], "record %s returned twice", r.ID)
			seen[r.ID] = true
			assert.NotEmpty(t, r.Document)
			assert.Nil(t, r.Metadata)
			assert.Nil(t, r.Embedding)
		}
	}
	assert.Len(t, seen, 7)

	records, err := coll.Get(ctx, vectordb.GetOptions{Offset: 10, Include: vectordb.IncludeAll})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestChromemCollection_GetIncludeAll(t *testing.T) {
	ctx := context.Background()
	client := vectordbtest.NewChromem(t, map[string][]vectordbtest.Chunk{
		"docs": vectordbtest.FileChunks("notes.md", 2),
	})

	coll, err := client.GetCollection(ctx, "docs")
	require.NoError(t, err)

	records, err := coll.Get(ctx, vectordb.GetOptions{Limit: 1, Include: vectordb.IncludeAll})
	require.NoError(t, err)
	require.Len(t, records, 1)

	first := records[0]
	assert.Equal(t, "notes.md-0000", first.ID)
	assert.Equal(t, "notes.md", vectordb.MetaString(first.Metadata, "name"))
	assert.Len(t, first.Embedding, 3)
}

func TestChromemCollection_SnapshotRefreshedAfterAdd(t *testing.T) {
	ctx := context.Background()
	client := vectordbtest.NewChromem(t, map[string][]vectordbtest.Chunk{
		"docs": vectordbtest.FileChunks("a.txt", 2),
	})

	coll, err := client.GetCollection(ctx, "docs")
	require.NoError(t, err)

	records, err := coll.Get(ctx, vectordb.GetOptions{Include: vectordb.IncludeDocuments})
	require.NoError(t, err)
	require.Len(t, records, 2)

	vectordbtest.Seed(t, client.DB(), "docs", []vectordbtest.Chunk{
		{ID: "zz", Content: "late", Embedding: []float32{0, 1, 0}},
	})

	records, err = coll.Get(ctx, vectordb.GetOptions{Include: vectordb.IncludeDocuments})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "zz", records[2].ID)
}

func TestChromemCollection_Query(t *testing.T) {
	ctx := context.Background()
	client := vectordbtest.NewChromem(t, map[string][]vectordbtest.Chunk{
		"docs": {
			{ID: "x", Content: "along x", Embedding: []float32{1, 0, 0}},
			{ID: "y", Content: "along y", Embedding: []float32{0, 1, 0}},
		},
	})

	coll, err := client.GetCollection(ctx, "docs")
	require.NoError(t, err)

	matches, err := coll.Query(ctx, []float32{0.9, 0.1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "x", matches[0].ID)
	assert.Greater(t, matches[0].Score, matches[1].Score)

	_, err = coll.Query(ctx, []float32{1, 0}, 1)
	assert.ErrorIs(t, err, vectordb.ErrDimensionMismatch)
}

func TestChromemClient_PersistentDeleteAndReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	client, err := vectordb.NewChromemClient(vectordb.ChromemConfig{Path: dir})
	require.NoError(t, err)
	defer client.Close()

	vectordbtest.Seed(t, client.DB(), "keep", vectordbtest.FileChunks("keep.txt", 2))
	vectordbtest.Seed(t, client.DB(), "drop", vectordbtest.FileChunks("drop.txt", 2))

	require.NoError(t, client.DeleteCollection(ctx, "drop"))
	_, err = os.Stat(filepath.Join(dir, vectordb.LockFileName))
	assert.NoError(t, err, "lock file should exist after a delete")

	other, err := vectordb.NewChromemClient(vectordb.ChromemConfig{Path: dir})
	require.NoError(t, err)
	defer other.Close()

	colls, err := other.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, colls, 1)
	assert.Equal(t, "keep", colls[0].Name())

	// A collection written by another process shows up after Reload.
	vectordbtest.Seed(t, other.DB(), "added", vectordbtest.FileChunks("added.txt", 1))
	colls, err = client.ListCollections(ctx)
	require.NoError(t, err)
	assert.Len(t, colls, 1)

	require.NoError(t, client.Reload(ctx))
	colls, err = client.ListCollections(ctx)
	require.NoError(t, err)
	assert.Len(t, colls, 2)
}

func TestOpen_UnsupportedBackend(t *testing.T) {
	_, err := vectordb.Open(context.Background(), vectordb.Config{Backend: "weaviate"})
	assert.ErrorIs(t, err, vectordb.ErrUnsupportedBackend)
}

func TestOpen_ChromemRequiresPath(t *testing.T) {
	_, err := vectordb.Open(context.Background(), vectordb.Config{Backend: vectordb.BackendChromem})
	assert.ErrorIs(t, err, vectordb.ErrInvalidConfig)
}
