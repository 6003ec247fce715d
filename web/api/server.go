// Package api exposes the export pipeline over HTTP: run history, a
// trigger endpoint and an SSE stream of pipeline progress.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/MateusSouzaG/bitrix-exporter/internal/export"
	"github.com/MateusSouzaG/bitrix-exporter/internal/runstore"
)

// Store interface for run history operations
type Store interface {
	StartRun(runID string, req export.Request, startedAt time.Time) error
	FinishRun(result *export.Result) error
	FailRun(runID string, runErr error, finishedAt time.Time) error
	GetRun(id string) (*runstore.Run, error)
	ListRuns(limit int) ([]*runstore.Run, error)
}

// Runner executes one export request.
type Runner interface {
	Run(ctx context.Context, req export.Request) (*export.Result, error)
}

// Directory is the roster slice the API serves.
type Directory interface {
	Departments() []string
}

// Server is the HTTP API server
type Server struct {
	store  Store
	runner Runner
	roster Directory
	addr   string
	mux    *http.ServeMux
	sseHub *SSEHub

	mu           sync.RWMutex
	exporting    bool
	pendingReq   *export.Request
	currentRunID string
}

// NewServer creates a new API server
func NewServer(store Store, runner Runner, roster Directory, addr string) *Server {
	s := &Server{
		store:  store,
		runner: runner,
		roster: roster,
		addr:   addr,
		mux:    http.NewServeMux(),
		sseHub: NewSSEHub(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/runs", s.listRunsHandler())
	s.mux.HandleFunc("/api/runs/", s.getRunHandler())
	s.mux.HandleFunc("/api/export", s.exportHandler())
	s.mux.HandleFunc("/api/departments", s.departmentsHandler())
	s.mux.HandleFunc("/api/presets", s.presetsHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
}

// Handler returns the server's route mux, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go s.sseHub.Run()
	return http.ListenAndServe(s.addr, s.mux)
}

// Broadcast sends an event to all SSE clients
func (s *Server) Broadcast(event SSEEvent) {
	s.sseHub.Broadcast(event)
}

// Progress is an export.ProgressFunc: it relays pipeline stages to SSE
// clients and opens the run record once the run id is known.
func (s *Server) Progress(stage string, detail map[string]any) {
	if runID, ok := detail["run_id"].(string); ok && runID != "" {
		s.mu.Lock()
		if stage == "discovering" && s.pendingReq != nil && s.store != nil {
			if err := s.store.StartRun(runID, *s.pendingReq, time.Now()); err == nil {
				s.currentRunID = runID
			}
			s.pendingReq = nil
		}
		s.mu.Unlock()
	}

	payload := map[string]any{"stage": stage}
	for k, v := range detail {
		payload[k] = v
	}
	s.Broadcast(SSEEvent{Type: "export_progress", Data: payload})
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
