package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/adverant/nexus/tablescan-worker/internal/processor"
	"github.com/adverant/nexus/tablescan-worker/internal/storage"
)

func (s *Server) handleCreateExport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	var req processor.ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	// IDs are always server assigned.
	req.JobID = uuid.NewString()
	if err := req.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	raw, err := json.Marshal(req)
	if err != nil {
		jsonError(w, "failed to encode request", http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	rec := &storage.ExportRecord{
		ID:        req.JobID,
		Status:    storage.StatusQueued,
		ChannelID: req.ChannelID,
		Request:   raw,
		Filename:  req.Filename(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Put(r.Context(), rec); err != nil {
		s.log.Error("failed to store export", "id", rec.ID, "error", err)
		jsonError(w, "failed to store export", http.StatusInternalServerError)
		return
	}

	if err := s.enqueuer.Enqueue(r.Context(), &req); err != nil {
		s.log.Error("failed to enqueue export", "id", rec.ID, "error", err)
		rec.Status = storage.StatusFailed
		rec.ErrorMessage = "failed to enqueue"
		if putErr := s.store.Put(r.Context(), rec); putErr != nil {
			s.log.Error("failed to mark export failed", "id", rec.ID, "error", putErr)
		}
		jsonError(w, "export queue unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"id":       rec.ID,
		"status":   rec.Status,
		"poll_url": fmt.Sprintf("/api/exports/%s", rec.ID),
		"csv_url":  fmt.Sprintf("/api/exports/%s/csv", rec.ID),
	})
}

func (s *Server) handleGetExport(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadExport(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

func (s *Server) handleDownloadCSV(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadExport(w, r)
	if !ok {
		return
	}
	if rec.Status != storage.StatusCompleted {
		jsonError(w, fmt.Sprintf("export is %s", rec.Status), http.StatusConflict)
		return
	}

	filename := rec.Filename
	if filename == "" {
		filename = "table.csv"
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(rec.CSV)))
	w.Write(rec.CSV)
}

func (s *Server) handleDeleteExport(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadExport(w, r)
	if !ok {
		return
	}
	if rec.Status == storage.StatusProcessing {
		jsonError(w, "export is processing", http.StatusConflict)
		return
	}
	if err := s.store.Delete(r.Context(), rec.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.log.Error("failed to delete export", "id", rec.ID, "error", err)
		jsonError(w, "failed to delete export", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		jsonError(w, "queue stats unavailable", http.StatusNotImplemented)
		return
	}
	stats, err := s.stats.Stats(r.Context())
	if err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// loadExport resolves {exportID}, writing the error response itself.
func (s *Server) loadExport(w http.ResponseWriter, r *http.Request) (*storage.ExportRecord, bool) {
	id := chi.URLParam(r, "exportID")
	if _, err := uuid.Parse(id); err != nil {
		jsonError(w, "export not found", http.StatusNotFound)
		return nil, false
	}

	rec, err := s.store.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		jsonError(w, "export not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		s.log.Error("failed to load export", "id", id, "error", err)
		jsonError(w, "failed to load export", http.StatusInternalServerError)
		return nil, false
	}
	return rec, true
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
