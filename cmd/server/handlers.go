package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/brunobiangulo/ragline"
	"github.com/brunobiangulo/ragline/retrieval"
)

type handler struct {
	engine *ragline.Engine
}

func newHandler(e *ragline.Engine) *handler {
	return &handler{engine: e}
}

// POST /ingest
// Accepts multipart file upload or JSON with file path.
func (h *handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	if err := r.ParseMultipartForm(100 << 20); err == nil { // 100MB max
		file, header, ferr := r.FormFile("file")
		if ferr == nil {
			defer file.Close()

			safeName := filepath.Base(header.Filename)
			tmpPath := filepath.Join(os.TempDir(), safeName)
			dst, cerr := os.Create(tmpPath)
			if cerr != nil {
				writeError(w, http.StatusInternalServerError, "failed to process file")
				slog.Error("creating temp file", "error", cerr)
				return
			}
			if _, cerr := io.Copy(dst, file); cerr != nil {
				dst.Close()
				writeError(w, http.StatusInternalServerError, "failed to save file")
				slog.Error("saving uploaded file", "error", cerr)
				return
			}
			dst.Close()
			defer os.Remove(tmpPath)

			result, ierr := h.engine.IndexDocument(ctx, tmpPath)
			if ierr != nil {
				writeError(w, http.StatusInternalServerError, "ingestion failed")
				slog.Error("ingest error", "error", ierr)
				return
			}

			writeJSON(w, http.StatusOK, result)
			return
		}
	}

	var req struct {
		Path         string                 `json:"path"`
		ForceReindex bool                   `json:"forceReindex,omitempty"`
		CollectionID string                 `json:"collectionId,omitempty"`
		Metadata     map[string]interface{} `json:"metadata,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: expected multipart file or JSON with 'path'")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	absPath, err := filepath.Abs(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(absPath)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusBadRequest, "path must be an existing file")
		return
	}

	var opts []ragline.IngestOption
	if req.ForceReindex {
		opts = append(opts, ragline.WithForceReindex())
	}
	if req.CollectionID != "" {
		opts = append(opts, ragline.WithCollectionID(req.CollectionID))
	}
	if req.Metadata != nil {
		opts = append(opts, ragline.WithIngestMetadata(req.Metadata))
	}

	result, err := h.engine.IndexDocument(ctx, absPath, opts...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ingestion failed")
		slog.Error("ingest error", "path", absPath, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// POST /search
func (h *handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req struct {
		Query     string  `json:"query"`
		Limit     int     `json:"limit,omitempty"`
		Threshold float64 `json:"threshold,omitempty"`
		Rerank    *bool   `json:"rerank,omitempty"`
		Expand    bool    `json:"expand,omitempty"`
		HyDE      bool    `json:"hyde,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	resp, err := h.engine.Search(ctx, retrieval.SearchRequest{
		Query:     req.Query,
		Limit:     req.Limit,
		Threshold: req.Threshold,
		Rerank:    req.Rerank,
		Expand:    req.Expand,
		HyDE:      req.HyDE,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		slog.Error("search error", "query", req.Query, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// POST /ask
func (h *handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	var req struct {
		Question  string  `json:"question"`
		Limit     int     `json:"limit,omitempty"`
		Threshold float64 `json:"threshold,omitempty"`
		Model     string  `json:"model,omitempty"`
		Rerank    bool    `json:"rerank,omitempty"`
		Verify    bool    `json:"verify,omitempty"`
		Expand    bool    `json:"expand,omitempty"`
		HyDE      bool    `json:"hyde,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	answer, err := h.engine.Ask(ctx, ragline.AskRequest{
		Question:  req.Question,
		Limit:     req.Limit,
		Threshold: req.Threshold,
		Model:     req.Model,
		Rerank:    req.Rerank,
		Verify:    req.Verify,
		Expand:    req.Expand,
		HyDE:      req.HyDE,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ask failed")
		slog.Error("ask error", "question", req.Question, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

// DELETE /documents/{id}
func (h *handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	if err := h.engine.DeleteDocument(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "document not found")
		slog.Error("delete error", "document_id", id, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GET /documents/{id}
func (h *handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	doc, err := h.engine.GetDocument(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// GET /documents
func (h *handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.engine.ListDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		slog.Error("list documents error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
	})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf("%s", msg)})
}
