package inspect

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderInfo(t *testing.T) {
	info := &CollectionInfo{
		Name:      "docs",
		File:      &FileInfo{Filename: "a.txt", FileID: "f1"},
		Embedding: &EmbeddingConfig{Engine: "openai"},
		Count:     2,
		Dimension: 1536,
		Segments: []Segment{
			{ID: "s1", Content: "hello", StartIndex: 0, HasStartIndex: true},
			{ID: "s2", Content: strings.Repeat("é", 250)},
		},
	}

	out := RenderInfo(info, 200)

	expectedHead := "File info:\n" +
		"Filename: a.txt\n" +
		"File ID: f1\n" +
		"File hash: unknown\n" +
		"File path: unknown\n" +
		"\nEmbedding config:\n" +
		"Engine: openai\n" +
		"Model: unknown\n" +
		"\nCollection stats:\n" +
		"Documents: 2\n" +
		"Vector dimension: 1536\n" +
		"\nSegments (all):\n"
	assert.True(t, strings.HasPrefix(out, expectedHead), out)

	rule := strings.Repeat("-", 50)
	assert.Contains(t, out, "\nSegment #1:\nSegment ID: s1\nStart index: 0\nContent: hello...\n"+rule+"\n")
	assert.Contains(t, out, "\nSegment #2:\nSegment ID: s2\nStart index: unknown\nContent: "+strings.Repeat("é", 200)+"...\n")
}

func TestRenderInfo_NoFileInfo(t *testing.T) {
	out := RenderInfo(&CollectionInfo{Count: 0}, 0)

	assert.Contains(t, out, "Filename: unknown\n")
	assert.NotContains(t, out, "Embedding config:")
	assert.NotContains(t, out, "Vector dimension:")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "abc", Preview("abc", 5))
	assert.Equal(t, "ab", Preview("abc", 2))
	assert.Equal(t, "日本", Preview("日本語", 2))
}

func TestRenderRaw_Empty(t *testing.T) {
	rule := strings.Repeat("=", 50)
	assert.Equal(t, "Full file content:\n"+rule+"\n\n\n\n"+rule, RenderRaw(nil))
}
