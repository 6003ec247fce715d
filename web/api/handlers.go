package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MateusSouzaG/bitrix-exporter/internal/export"
	"github.com/MateusSouzaG/bitrix-exporter/internal/runstore"
)

// StatusResponse is the API response for overall status
type StatusResponse struct {
	Exporting bool   `json:"exporting"`
	LastRunID string `json:"last_run_id,omitempty"`
	LastState string `json:"last_state,omitempty"`
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var status StatusResponse
		s.mu.RLock()
		status.Exporting = s.exporting
		s.mu.RUnlock()

		if s.store != nil {
			runs, err := s.store.ListRuns(1)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if len(runs) > 0 {
				status.LastRunID = runs[0].ID
				status.LastState = string(runs[0].State)
			}
		}

		writeJSON(w, status)
	}
}

func (s *Server) listRunsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, _ = strconv.Atoi(raw)
		}

		runs, err := s.store.ListRuns(limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if runs == nil {
			runs = []*runstore.Run{}
		}

		writeJSON(w, runs)
	}
}

func (s *Server) getRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		id := strings.TrimPrefix(r.URL.Path, "/api/runs/")
		if id == "" {
			writeError(w, http.StatusBadRequest, "run ID required")
			return
		}

		run, err := s.store.GetRun(id)
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, run)
	}
}

func (s *Server) exportHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req export.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		s.mu.Lock()
		if s.exporting {
			s.mu.Unlock()
			writeError(w, http.StatusConflict, "an export is already running")
			return
		}
		s.exporting = true
		s.pendingReq = &req
		s.currentRunID = ""
		s.mu.Unlock()

		go s.runExport(req)

		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, map[string]string{"status": "started"})
	}
}

func (s *Server) runExport(req export.Request) {
	defer func() {
		s.mu.Lock()
		s.exporting = false
		s.pendingReq = nil
		s.mu.Unlock()
	}()

	result, err := s.runner.Run(context.Background(), req)
	if err != nil {
		log.Printf("export failed: %v", err)

		s.mu.RLock()
		runID := s.currentRunID
		s.mu.RUnlock()
		if runID != "" && s.store != nil {
			if ferr := s.store.FailRun(runID, err, time.Now()); ferr != nil {
				log.Printf("recording failed run: %v", ferr)
			}
		}

		s.Broadcast(SSEEvent{Type: "export_failed", Data: map[string]string{
			"run_id": runID,
			"error":  err.Error(),
		}})
		return
	}

	if s.store != nil {
		if err := s.store.FinishRun(result); err != nil {
			log.Printf("recording finished run: %v", err)
		}
	}

	s.Broadcast(SSEEvent{Type: "export_complete", Data: map[string]any{
		"run_id": result.RunID,
		"rows":   len(result.Rows),
	}})
}

func (s *Server) departmentsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		if s.roster == nil {
			writeJSON(w, []string{})
			return
		}

		deps := s.roster.Departments()
		if deps == nil {
			deps = []string{}
		}
		writeJSON(w, deps)
	}
}

func (s *Server) presetsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, export.Presets())
	}
}
