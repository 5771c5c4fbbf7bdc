package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Yates-Labs/vecview/internal/catalog"
	"github.com/Yates-Labs/vecview/internal/console"
	"github.com/Yates-Labs/vecview/internal/export"
	"github.com/Yates-Labs/vecview/internal/inspect"
	"github.com/Yates-Labs/vecview/internal/vectordb"
)

type errorResponse struct {
	Error string `json:"error"`
}

type filesResponse struct {
	Filenames []string     `json:"filenames"`
	Files     []fileEntry  `json:"files"`
	Summary   summaryEntry `json:"summary"`
}

type fileEntry struct {
	Filename    string   `json:"filename"`
	Collections []string `json:"collections"`
}

type summaryEntry struct {
	catalog.Summary
	Message string `json:"message"`
}

type fileResponse struct {
	Filename    string        `json:"filename"`
	Collections []string      `json:"collections"`
	View        *console.View `json:"view"`
}

type deleteResponse struct {
	console.DeleteResult
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	names, err := s.console.ListCollections(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"collections": names})
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	view, err := s.console.ViewCollection(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	raw, err := s.console.Inspector().Raw(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(raw))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = string(export.FormatJSON)
	}
	contentType, err := export.ContentType(format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	name := r.PathValue("name")
	segments, err := s.console.Inspector().Segments(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+"."+format))
	if err := export.ExportSegments(segments, format, w); err != nil {
		s.logger.Error("export failed", slog.String("collection", name), slog.String("error", err.Error()))
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	k := s.config.DefaultTopK
	if v := q.Get("k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "k must be a positive integer"})
			return
		}
		k = n
	}

	matches, err := s.console.Search(r.Context(), r.PathValue("name"), q.Get("q"), k)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]vectordb.Match{"matches": matches})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	force := parseBool(q.Get("refresh")) || parseBool(q.Get("force"))

	filenames, summary, err := s.console.RefreshFiles(r.Context(), force)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	files := make([]fileEntry, len(filenames))
	for i, name := range filenames {
		files[i] = fileEntry{Filename: name, Collections: s.console.CollectionsByFilename(name)}
	}
	writeJSON(w, http.StatusOK, filesResponse{
		Filenames: filenames,
		Files:     files,
		Summary:   summaryEntry{Summary: summary, Message: summary.String()},
	})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	if err := s.ensureCatalog(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}

	view, err := s.console.ViewFile(r.Context(), filename)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fileResponse{
		Filename:    filename,
		Collections: s.console.CollectionsByFilename(filename),
		View:        view,
	})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := s.ensureCatalog(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.console.DeleteFile(r.Context(), r.PathValue("filename"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if len(result.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, deleteResponse{DeleteResult: result, Message: result.Message()})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.console.Progress())
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.console.Reload(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// ensureCatalog loads the filename mapping on first use.
func (s *Server) ensureCatalog(ctx context.Context) error {
	if s.console.Catalog().Initialized() {
		return nil
	}
	_, _, err := s.console.RefreshFiles(ctx, false)
	return err
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	} else {
		s.logger.Debug("request rejected",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, inspect.ErrInvalidCollection),
		errors.Is(err, console.ErrNoFilename),
		errors.Is(err, console.ErrEmptyQuery),
		errors.Is(err, vectordb.ErrDimensionMismatch),
		errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, vectordb.ErrCollectionNotFound),
		errors.Is(err, console.ErrUnknownFilename):
		return http.StatusNotFound
	case errors.Is(err, inspect.ErrEmptyCollection):
		return http.StatusUnprocessableEntity
	case errors.Is(err, console.ErrNoEmbedder):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
