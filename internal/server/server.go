// Package server exposes the pipeline over HTTP. Generation and edit
// requests stream their events as NDJSON, server-sent events or websocket
// messages.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"adorable/internal/client"
	"adorable/internal/events"
	"adorable/internal/logging"
	"adorable/internal/store"
)

const maxBodyBytes = 1 << 20

// Pipeline runs generation and edit requests. *app.Orchestrator
// implements it.
type Pipeline interface {
	NewStream() *events.Stream
	Generate(ctx context.Context, prompt string, stream *events.Stream) (*store.Project, error)
	Edit(ctx context.Context, projectID, message string, history []client.Message, stream *events.Stream) (*store.Project, error)
	Store() store.Store
}

// Server is the HTTP transport.
type Server struct {
	pipeline Pipeline
	upgrader websocket.Upgrader
	mux      *http.ServeMux
	http     *http.Server
}

// New creates a server for pipeline.
func New(pipeline Pipeline) *Server {
	s := &Server{
		pipeline: pipeline,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		mux: http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /projects", s.handleGenerate)
	s.mux.HandleFunc("POST /projects/{id}/edit", s.handleEdit)
	s.mux.HandleFunc("GET /projects/{id}", s.handleGetProject)
	s.mux.HandleFunc("GET /projects/{id}/versions", s.handleListVersions)
	s.mux.HandleFunc("GET /ws/projects/{id}/edit", s.handleEditWebSocket)
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("server listening", "addr", addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logging.Info("server shutting down")
		return s.http.Shutdown(shutdownCtx)
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type historyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type editRequest struct {
	Message string           `json:"message"`
	History []historyMessage `json:"history,omitempty"`
}

func (r editRequest) messages() []client.Message {
	out := make([]client.Message, 0, len(r.History))
	for _, h := range r.History {
		switch client.Role(h.Role) {
		case client.RoleUser, client.RoleAssistant:
			out = append(out, client.Message{Role: client.Role(h.Role), Content: h.Content})
		}
	}
	return out
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeBody(r, &req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "Prompt not found")
		return
	}

	stream := s.pipeline.NewStream()
	go s.pipeline.Generate(r.Context(), req.Prompt, stream)
	s.pump(w, r, stream)
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := decodeBody(r, &req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "Message not found")
		return
	}
	id := r.PathValue("id")
	if _, err := s.pipeline.Store().GetProject(r.Context(), id); err != nil {
		s.storeError(w, err)
		return
	}

	stream := s.pipeline.NewStream()
	go s.pipeline.Edit(r.Context(), id, req.Message, req.messages(), stream)
	s.pump(w, r, stream)
}

// pump writes stream to the response until done or client disconnect.
func (s *Server) pump(w http.ResponseWriter, r *http.Request, stream *events.Stream) {
	var writer events.Writer
	if r.URL.Query().Get("format") == "sse" {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		writer = events.NewSSEWriter(w)
	} else {
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Cache-Control", "no-cache")
		writer = events.NewNDJSONWriter(w)
	}
	w.WriteHeader(http.StatusOK)

	if err := events.Pump(r.Context(), stream, writer); err != nil {
		logging.Info("client left before done", "path", r.URL.Path, "error", err)
	}
}

type versionSummary struct {
	ID          string    `json:"id"`
	Prompt      string    `json:"prompt"`
	BuildPassed bool      `json:"buildPassed"`
	Files       int       `json:"files"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	st := s.pipeline.Store()
	p, err := st.GetProject(r.Context(), r.PathValue("id"))
	if err != nil {
		s.storeError(w, err)
		return
	}

	body := map[string]any{"success": true, "project": p}
	if p.CurrentVersionID != "" {
		v, err := st.GetVersion(r.Context(), p.CurrentVersionID)
		if err != nil {
			logging.Error("current version missing", "project", p.ID, "version", p.CurrentVersionID, "error", err)
			writeError(w, http.StatusInternalServerError, "Current version not found")
			return
		}
		body["currentVersion"] = v
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.pipeline.Store().ListVersions(r.Context(), r.PathValue("id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	out := make([]versionSummary, 0, len(versions))
	for _, v := range versions {
		out = append(out, versionSummary{
			ID:          v.ID,
			Prompt:      v.Prompt,
			BuildPassed: v.BuildPassed,
			Files:       len(v.Files),
			CreatedAt:   v.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "versions": out})
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}
	logging.Error("store request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("response write failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}
