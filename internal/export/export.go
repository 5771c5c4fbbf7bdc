// Package export writes the segments of a collection to a file format.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Yates-Labs/vecview/internal/inspect"
)

// Format represents supported export formats
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ErrUnsupportedFormat is returned for formats other than json and csv.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ContentType returns the MIME type written for format.
func ContentType(format string) (string, error) {
	switch Format(strings.ToLower(format)) {
	case FormatJSON:
		return "application/json", nil
	case FormatCSV:
		return "text/csv; charset=utf-8", nil
	default:
		return "", fmt.Errorf("%w: %s (supported: json, csv)", ErrUnsupportedFormat, format)
	}
}

// SegmentExport is one exported segment
type SegmentExport struct {
	Index      int            `json:"index"`
	ID         string         `json:"id"`
	StartIndex *int           `json:"start_index"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ExportSegments writes segments in the given format
func ExportSegments(segments []inspect.Segment, format string, writer io.Writer) error {
	exports := make([]SegmentExport, len(segments))
	for i, seg := range segments {
		exports[i] = toExport(i, seg)
	}

	switch Format(strings.ToLower(format)) {
	case FormatJSON:
		return exportJSON(exports, writer)
	case FormatCSV:
		return exportCSV(exports, writer)
	default:
		return fmt.Errorf("%w: %s (supported: json, csv)", ErrUnsupportedFormat, format)
	}
}

func toExport(i int, seg inspect.Segment) SegmentExport {
	out := SegmentExport{
		Index:    i + 1,
		ID:       seg.ID,
		Content:  seg.Content,
		Metadata: seg.Metadata,
	}
	if seg.HasStartIndex {
		start := seg.StartIndex
		out.StartIndex = &start
	}
	return out
}

// exportJSON writes segments as an indented JSON array
func exportJSON(exports []SegmentExport, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exports)
}

// exportCSV writes index,id,start_index,content rows with a header
func exportCSV(exports []SegmentExport, writer io.Writer) error {
	w := csv.NewWriter(writer)
	if err := w.Write([]string{"index", "id", "start_index", "content"}); err != nil {
		return err
	}
	for _, e := range exports {
		start := ""
		if e.StartIndex != nil {
			start = strconv.Itoa(*e.StartIndex)
		}
		if err := w.Write([]string{strconv.Itoa(e.Index), e.ID, start, e.Content}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
