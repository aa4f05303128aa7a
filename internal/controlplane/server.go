// Package controlplane provides the HTTP API for a Helios workspace.
package controlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/helios/internal/models"
	"github.com/fentz26/helios/internal/store"
	"github.com/fentz26/helios/internal/transformer"
	"github.com/fentz26/helios/internal/workspace"
)

// Version is reported by /health. It is set at build time via -ldflags.
var Version = "dev"

// Server provides the HTTP API for Helios.
type Server struct {
	ws     *workspace.Workspace
	store  *store.Store
	addr   string
	server *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(ws *workspace.Workspace, s *store.Store, addr string) *Server {
	return &Server{
		ws:    ws,
		store: s,
		addr:  addr,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)

	// Archive endpoints
	mux.HandleFunc("/archives", s.handleArchives)
	mux.HandleFunc("/archives/", s.handleArchiveByName)
	mux.HandleFunc("/path", s.handlePath)

	// Transformation endpoints
	mux.HandleFunc("/transformers", s.handleTransformers)
	mux.HandleFunc("/transform", s.handleTransform)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/audit", s.handleAudit)

	// Task endpoints
	mux.HandleFunc("/tasks", s.handleTasks)
	mux.HandleFunc("/tasks/", s.handleTaskByID)

	mux.HandleFunc("/reset", s.handleReset)
	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	log.Printf("Starting Helios API on %s", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json", ErrInvalidRequest)
	}
	return nil
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := HealthResponse{OK: true, DB: "ok", Version: Version, Time: time.Now().UTC().Format(time.RFC3339)}
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		health.OK = false
		health.DB = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// --- Archive Handlers ---

type openRequest struct {
	Path string `json:"path"`
}

// handleArchives handles GET /archives and POST /archives
func (s *Server) handleArchives(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.ws.Archives())
	case http.MethodPost:
		var req openRequest
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if req.Path == "" {
			writeError(w, fmt.Errorf("%w: path required", ErrInvalidRequest))
			return
		}
		a, err := s.ws.Open(req.Path)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, a.Summary())
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleArchiveByName handles /archives/{name}/*
func (s *Server) handleArchiveByName(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/archives/")
	parts := strings.SplitN(path, "/", 2)

	name, err := url.PathUnescape(parts[0])
	if err != nil || name == "" {
		http.Error(w, "archive name required", http.StatusBadRequest)
		return
	}
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		a, err := s.ws.Archive(name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a.Summary())
	case action == "" && r.Method == http.MethodDelete:
		if err := s.ws.Close(name); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
	case action == "entries" && r.Method == http.MethodGet:
		a, err := s.ws.Archive(name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a.Names())
	case action == "classes" && r.Method == http.MethodGet:
		a, err := s.ws.Archive(name)
		if err != nil {
			writeError(w, err)
			return
		}
		names := a.ClassNames()
		if names == nil {
			names = []string{}
		}
		writeJSON(w, http.StatusOK, names)
	case action == "transformers" && r.Method == http.MethodGet:
		ds, err := s.ws.TransformersFor(name, r.URL.Query().Get("entry"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ds)
	case action == "reset" && r.Method == http.MethodPost:
		h, err := s.ws.ResetArchive(name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"task_id": h.ID})
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

type pathRequest struct {
	Paths []string `json:"paths"`
}

type pathResponse struct {
	Loaded   int                     `json:"loaded"`
	Errors   string                  `json:"errors,omitempty"`
	Archives []models.ArchiveSummary `json:"archives"`
}

// handlePath handles GET /path and PUT /path
func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.ws.Path())
	case http.MethodPut:
		var req pathRequest
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
		n, err := s.ws.SetPath(req.Paths)
		resp := pathResponse{Loaded: n, Archives: s.ws.Path()}
		if err != nil {
			resp.Errors = err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// --- Transformation Handlers ---

func (s *Server) handleTransformers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	pred := func(transformer.Descriptor) bool { return true }
	if kind := r.URL.Query().Get("kind"); kind != "" {
		pred = transformer.OfKind(transformer.Kind(kind))
	}
	out := []transformer.Descriptor{}
	for _, d := range s.ws.Transformers() {
		if pred(d) {
			out = append(out, d)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// TransformResponse carries text outputs and diagnostics.
type TransformResponse struct {
	Outputs map[string]string `json:"outputs"`
	Stdout  string            `json:"stdout,omitempty"`
	Stderr  string            `json:"stderr,omitempty"`
	Message string            `json:"message,omitempty"`
}

func newTransformResponse(res *transformer.Result) TransformResponse {
	out := TransformResponse{
		Outputs: make(map[string]string, len(res.Outputs)),
		Stdout:  res.Stdout,
		Stderr:  res.Stderr,
		Message: res.Message,
	}
	for k, v := range res.Outputs {
		out.Outputs[k] = string(v)
	}
	return out
}

// handleTransform handles POST /transform. With ?async=true the
// transformation runs as a background task and only its id is returned.
func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req workspace.TransformRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Archive == "" || req.Entry == "" || req.Transformer == "" {
		writeError(w, fmt.Errorf("%w: archive, entry and transformer required", ErrInvalidRequest))
		return
	}

	if r.URL.Query().Get("async") == "true" {
		h, err := s.ws.TransformAsync(req, nil)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"task_id": h.ID})
		return
	}

	res, err := s.ws.Transform(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTransformResponse(res))
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	runs, err := s.ws.History(store.RunFilter{
		Archive:     q.Get("archive"),
		Transformer: q.Get("transformer"),
		Limit:       queryInt(r, "limit"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []models.TransformRun{}
	}
	// Outputs can be large; fetch a single run for them.
	for i := range runs {
		runs[i].Outputs = nil
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entries, err := s.ws.Audit(queryInt(r, "limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []models.PDREntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Task Handlers ---

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.ws.Tasks())
}

// handleTaskByID handles DELETE /tasks/{id}
func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/tasks/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "task id required", http.StatusBadRequest)
		return
	}
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.ws.CancelTask(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.ws.Reset(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
