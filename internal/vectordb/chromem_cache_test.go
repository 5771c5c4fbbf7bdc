package vectordb

import (
	"context"
	"fmt"
	"testing"

	"github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCollections(t *testing.T, c *ChromemClient, n int) {
	t.Helper()
	for i := range n {
		coll, err := c.DB().GetOrCreateCollection(fmt.Sprintf("c%02d", i), nil, nil)
		require.NoError(t, err)
		for j := range 3 {
			require.NoError(t, coll.AddDocument(context.Background(), chromem.Document{
				ID:        fmt.Sprintf("d%d", j),
				Content:   "chunk",
				Metadata:  map[string]string{"name": "f.txt"},
				Embedding: []float32{1, float32(j), 0},
			}))
		}
	}
}

func TestChromemClient_MetadataProbeNotCached(t *testing.T) {
	c, err := NewChromemClient(ChromemConfig{InMemory: true})
	require.NoError(t, err)
	seedCollections(t, c, 4)

	ctx := context.Background()
	colls, err := c.ListCollections(ctx)
	require.NoError(t, err)

	for _, coll := range colls {
		records, err := coll.Get(ctx, GetOptions{Limit: 1, Include: IncludeMetadatas})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "f.txt", MetaString(records[0].Metadata, "name"))
	}
	assert.Zero(t, c.snapshots.Len())

	_, err = colls[0].Get(ctx, GetOptions{Limit: 2, Include: IncludeDocuments})
	require.NoError(t, err)
	assert.Equal(t, 1, c.snapshots.Len())
}

func TestChromemClient_SnapshotCacheBounded(t *testing.T) {
	c, err := NewChromemClient(ChromemConfig{InMemory: true, SnapshotCacheSize: 2})
	require.NoError(t, err)
	seedCollections(t, c, 5)

	ctx := context.Background()
	colls, err := c.ListCollections(ctx)
	require.NoError(t, err)

	for _, coll := range colls {
		records, err := coll.Get(ctx, GetOptions{Include: IncludeAll})
		require.NoError(t, err)
		assert.Len(t, records, 3)
	}
	assert.Equal(t, 2, c.snapshots.Len())

	require.NoError(t, c.DeleteCollection(ctx, "c04"))
	assert.Equal(t, 1, c.snapshots.Len())
}
