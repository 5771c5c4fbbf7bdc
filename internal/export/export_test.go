package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/Yates-Labs/vecview/internal/inspect"
)

func createTestSegments() []inspect.Segment {
	return []inspect.Segment{
		{ID: "s1", StartIndex: 0, HasStartIndex: true, Content: "first, with comma", Metadata: map[string]any{"name": "a.txt"}},
		{ID: "s2", Content: "second\nline"},
	}
}

func TestExportSegments_JSON(t *testing.T) {
	var buf bytes.Buffer

	err := ExportSegments(createTestSegments(), "json", &buf)
	if err != nil {
		t.Fatalf("ExportSegments failed: %v", err)
	}

	var exports []SegmentExport
	if err := json.Unmarshal(buf.Bytes(), &exports); err != nil {
		t.Fatalf("Failed to parse JSON output: %v", err)
	}

	if len(exports) != 2 {
		t.Fatalf("Expected 2 segments, got %d", len(exports))
	}
	if exports[0].Index != 1 || exports[0].ID != "s1" {
		t.Errorf("Expected segment #1 s1, got #%d %s", exports[0].Index, exports[0].ID)
	}
	if exports[0].StartIndex == nil || *exports[0].StartIndex != 0 {
		t.Errorf("Expected start index 0, got %v", exports[0].StartIndex)
	}
	if exports[1].StartIndex != nil {
		t.Errorf("Expected missing start index, got %d", *exports[1].StartIndex)
	}
	if exports[0].Metadata["name"] != "a.txt" {
		t.Errorf("Expected metadata name a.txt, got %v", exports[0].Metadata["name"])
	}
}

func TestExportSegments_CSV(t *testing.T) {
	var buf bytes.Buffer

	err := ExportSegments(createTestSegments(), "CSV", &buf)
	if err != nil {
		t.Fatalf("ExportSegments failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse CSV output: %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("Expected header + 2 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != "index,id,start_index,content" {
		t.Errorf("Unexpected header: %v", rows[0])
	}
	if rows[1][3] != "first, with comma" {
		t.Errorf("Expected quoted content to round-trip, got %q", rows[1][3])
	}
	if rows[2][2] != "" || rows[2][3] != "second\nline" {
		t.Errorf("Unexpected second row: %q", rows[2])
	}
}

func TestExportSegments_UnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer

	err := ExportSegments(createTestSegments(), "xml", &buf)
	if err == nil {
		t.Fatal("Expected error for unsupported format, got nil")
	}
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got: %v", err)
	}
}

func TestContentType(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"json", "application/json"},
		{"CSV", "text/csv; charset=utf-8"},
	}
	for _, tt := range tests {
		got, err := ContentType(tt.format)
		if err != nil {
			t.Fatalf("ContentType(%q) failed: %v", tt.format, err)
		}
		if got != tt.want {
			t.Errorf("ContentType(%q) = %q, want %q", tt.format, got, tt.want)
		}
	}

	if _, err := ContentType("yaml"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got: %v", err)
	}
}
