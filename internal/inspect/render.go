package inspect

import (
	"fmt"
	"strings"
)

const unknown = "unknown"

var (
	segmentRule = strings.Repeat("-", 50)
	contentRule = strings.Repeat("=", 50)
)

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}

// Preview returns the first n characters of s.
func Preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// RenderInfo formats a collection as the text shown in the info view.
func RenderInfo(info *CollectionInfo, previewChars int) string {
	if previewChars <= 0 {
		previewChars = 200
	}

	file := info.File
	if file == nil {
		file = &FileInfo{}
	}

	var b strings.Builder
	b.WriteString("File info:\n")
	fmt.Fprintf(&b, "Filename: %s\n", orUnknown(file.Filename))
	fmt.Fprintf(&b, "File ID: %s\n", orUnknown(file.FileID))
	fmt.Fprintf(&b, "File hash: %s\n", orUnknown(file.Hash))
	fmt.Fprintf(&b, "File path: %s\n", orUnknown(file.Source))

	if info.Embedding != nil {
		b.WriteString("\nEmbedding config:\n")
		fmt.Fprintf(&b, "Engine: %s\n", orUnknown(info.Embedding.Engine))
		fmt.Fprintf(&b, "Model: %s\n", orUnknown(info.Embedding.Model))
	}

	b.WriteString("\nCollection stats:\n")
	fmt.Fprintf(&b, "Documents: %d\n", info.Count)
	if info.Dimension > 0 {
		fmt.Fprintf(&b, "Vector dimension: %d\n", info.Dimension)
	}

	b.WriteString("\nSegments (all):\n")
	for i, seg := range info.Segments {
		start := unknown
		if seg.HasStartIndex {
			start = fmt.Sprintf("%d", seg.StartIndex)
		}
		fmt.Fprintf(&b, "\nSegment #%d:\n", i+1)
		fmt.Fprintf(&b, "Segment ID: %s\n", seg.ID)
		fmt.Fprintf(&b, "Start index: %s\n", start)
		fmt.Fprintf(&b, "Content: %s...\n", Preview(seg.Content, previewChars))
		b.WriteString(segmentRule + "\n")
	}

	return b.String()
}

// RenderRaw joins segment contents into the reconstructed file.
func RenderRaw(segments []Segment) string {
	parts := make([]string, len(segments))
	for i, seg := range segments {
		parts[i] = seg.Content
	}
	return "Full file content:\n" + contentRule + "\n\n" + strings.Join(parts, "\n") + "\n\n" + contentRule
}
