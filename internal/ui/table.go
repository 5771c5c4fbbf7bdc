package ui

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Yates-Labs/vecview/internal/vectordb"
)

type column struct {
	title string
	width int
	style lipgloss.Style
	right bool
}

// CollectionRow is one line of the collections table.
type CollectionRow struct {
	Name      string
	Documents int
}

// FileRow is one line of the files table.
type FileRow struct {
	Filename    string
	Collections []string
}

// RenderCollections writes the collections table.
func RenderCollections(w io.Writer, rows []CollectionRow) {
	s := DefaultStyles()
	cols := []column{
		{title: "COLLECTION", width: 48, style: s.Primary},
		{title: "DOCUMENTS", width: 12, style: s.Number, right: true},
	}

	total := 0
	cells := make([][]string, len(rows))
	for i, r := range rows {
		cells[i] = []string{r.Name, strconv.Itoa(r.Documents)}
		total += r.Documents
	}

	renderTable(w, s, cols, cells)
	fmt.Fprintln(w)
	fmt.Fprintln(w, s.Summary.Render(fmt.Sprintf("Total: %d collections, %d documents", len(rows), total)))
}

// RenderFiles writes the filename table followed by the refresh summary.
func RenderFiles(w io.Writer, rows []FileRow, summary string) {
	s := DefaultStyles()
	cols := []column{
		{title: "FILENAME", width: 40, style: s.Primary},
		{title: "COLLECTIONS", width: 13, style: s.Number, right: true},
		{title: "FIRST COLLECTION", width: 40, style: s.Text},
	}

	cells := make([][]string, len(rows))
	for i, r := range rows {
		first := ""
		if len(r.Collections) > 0 {
			first = r.Collections[0]
		}
		cells[i] = []string{r.Filename, strconv.Itoa(len(r.Collections)), first}
	}

	renderTable(w, s, cols, cells)
	fmt.Fprintln(w)
	fmt.Fprintln(w, s.Summary.Render(summary))
}

// RenderMatches writes search results with a content preview.
func RenderMatches(w io.Writer, matches []vectordb.Match, previewChars int) {
	s := DefaultStyles()
	cols := []column{
		{title: "#", width: 5, style: s.Number, right: true},
		{title: "SCORE", width: 9, style: s.Number, right: true},
		{title: "ID", width: 28, style: s.Primary},
		{title: "CONTENT", width: 60, style: s.Text},
	}

	cells := make([][]string, len(matches))
	for i, m := range matches {
		content := strings.Join(strings.Fields(m.Document), " ")
		if previewChars > 0 {
			content = truncate(content, previewChars)
		}
		cells[i] = []string{
			strconv.Itoa(i + 1),
			fmt.Sprintf("%.4f", m.Score),
			m.ID,
			content,
		}
	}

	renderTable(w, s, cols, cells)
	fmt.Fprintln(w)
	fmt.Fprintln(w, s.Summary.Render(fmt.Sprintf("Total: %d matches", len(matches))))
}

func renderTable(w io.Writer, s Styles, cols []column, rows [][]string) {
	headerStyle := s.Header.Padding(0, 1)

	headers := make([]string, len(cols))
	separatorParts := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = headerStyle.Width(c.width).Render(c.title)
		separatorParts[i] = strings.Repeat("─", c.width)
	}
	fmt.Fprintln(w, strings.Join(headers, s.Border.Render("│")))
	fmt.Fprintln(w, s.Border.Render(strings.Join(separatorParts, "┼")))

	for _, row := range rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			style := c.style.Padding(0, 1).Width(c.width)
			if c.right {
				style = style.Align(lipgloss.Right)
			}
			cells[i] = style.Render(truncate(row[i], c.width-2))
		}
		fmt.Fprintln(w, strings.Join(cells, s.Border.Render("│")))
	}
}

// truncate shortens s to n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
