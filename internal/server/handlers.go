package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/numsieve/internal/filter"
	"github.com/raaihank/numsieve/internal/service"
	"github.com/raaihank/numsieve/internal/sink"
)

const (
	maxJSONBody       = 1 << 20
	defaultMatchLimit = 100
	maxMatchLimit     = 10000
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type listResponse struct {
	Runs  []*service.Info `json:"runs"`
	Count int             `json:"count"`
}

type matchesResponse struct {
	RunID   string             `json:"run_id"`
	Total   int                `json:"total"`
	Offset  int                `json:"offset"`
	Limit   int                `json:"limit"`
	Matches []sink.MatchRecord `json:"matches"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo reports build and runtime details
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	cfg := s.manager.Config()
	info := map[string]any{
		"name":             "numsieve",
		"version":          Version,
		"uptime":           time.Since(s.startedAt).Round(time.Second).String(),
		"runs":             len(s.manager.List()),
		"max_active":       cfg.MaxActive,
		"default_strategy": cfg.DefaultStrategy,
		"default_chunk":    cfg.DefaultChunkSize,
		"default_policy":   cfg.DefaultPolicy,
		"batch_size":       cfg.Pipeline.BatchSize,
		"rate_limit":       s.config.RateLimit.Enabled,
	}
	if s.wsHub != nil {
		info["websocket"] = s.wsHub.GetStats()
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req service.Request
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	info, err := s.manager.StartGenerate(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, info)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid upload: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	req, err := scanRequest(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	path, err := s.saveUpload(file, header.Filename)
	if err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Failed to store upload", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	log := s.logger.Logger
	info, err := s.manager.StartScan(r.Context(), req, service.Upload{
		Path: path,
		Name: header.Filename,
		Cleanup: func() {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				log.Warn("Failed to remove upload", zap.String("path", path), zap.Error(err))
			}
		},
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, info)
}

// scanRequest reads the non-file multipart fields
func scanRequest(r *http.Request) (service.Request, error) {
	var req service.Request
	if raw := r.FormValue("constraints"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Constraints); err != nil {
			return req, &filter.ConstraintError{Field: "constraints", Reason: err.Error()}
		}
	}
	req.Output = service.OutputKind(r.FormValue("output"))
	req.Policy = r.FormValue("policy")
	if raw := r.FormValue("column"); raw != "" {
		column, err := strconv.Atoi(raw)
		if err != nil {
			return req, &filter.ConstraintError{Field: "column", Reason: fmt.Sprintf("%q is not an integer", raw)}
		}
		req.Column = &column
	}
	if raw := r.FormValue("include_metrics"); raw != "" {
		metrics, err := strconv.ParseBool(raw)
		if err != nil {
			return req, &filter.ConstraintError{Field: "include_metrics", Reason: fmt.Sprintf("%q is not a boolean", raw)}
		}
		req.IncludeMetrics = &metrics
	}
	return req, nil
}

func (s *Server) saveUpload(src io.Reader, name string) (string, error) {
	dst, err := os.CreateTemp(s.config.Server.UploadDir, "numsieve-upload-*"+filepath.Ext(name))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs := s.manager.List()
	writeJSON(w, http.StatusOK, listResponse{Runs: runs, Count: len(runs)})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	info, err := s.manager.Get(mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.manager.Cancel(id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	info, err := s.manager.Get(id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, info)
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	limit, err := queryInt(r, "limit", defaultMatchLimit)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	limit = min(limit, maxMatchLimit)

	records, total, err := s.manager.Matches(id, offset, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matchesResponse{
		RunID:   id,
		Total:   total,
		Offset:  offset,
		Limit:   limit,
		Matches: records,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	out, err := s.manager.Export(mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(out.Data)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// writeServiceError maps manager errors to status codes
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ce *filter.ConstraintError
	switch {
	case errors.As(err, &ce):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ce.Error(), Field: ce.Field})
	case errors.Is(err, filter.ErrInvalidConstraint):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrRunNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrTooManyRuns):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, service.ErrNotCollected):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrUnreadableUpload):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
