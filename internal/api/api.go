package api

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/joescharf/taskboard/internal/board"
	"github.com/joescharf/taskboard/internal/store"
	"github.com/joescharf/taskboard/internal/stream"
	"github.com/joescharf/taskboard/internal/transcript"
	"github.com/joescharf/taskboard/internal/ui"
	"github.com/joescharf/taskboard/internal/validate"
)

// Placeholder bodies for per-task documents that have not been written yet.
const (
	NoLogsText = "No logs yet..."
	NoSpecText = "No specification available"
)

// Server provides the REST and event-stream handlers.
type Server struct {
	store   store.Store
	streams *stream.Manager
	log     *slog.Logger
	now     func() time.Time
}

// NewServer creates a new API server. Streams opened through it are
// tracked by streams so they can be cancelled on shutdown.
func NewServer(s store.Store, streams *stream.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:   s,
		streams: streams,
		log:     logger,
		now:     time.Now,
	}
}

// Router returns an http.Handler for the API routes and the embedded UI.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/stream", s.streamTasks)
	mux.HandleFunc("GET /api/tasks", s.listTasks)
	mux.HandleFunc("GET /api/tasks/{taskId}/spec", s.taskSpec)
	mux.HandleFunc("GET /api/repos", s.listRepos)

	mux.HandleFunc("GET /api/logs/{taskId}", s.taskLog)
	mux.HandleFunc("GET /api/logs/{taskId}/stream", s.streamLog)
	mux.HandleFunc("GET /api/logs/{taskId}/conversation", s.taskConversation)

	mux.HandleFunc("GET /api/board", s.boardSummary)
	mux.HandleFunc("GET /api/board/productivity", s.boardProductivity)

	mux.HandleFunc("GET /api/students/{name}", s.getStudent)

	if h, err := ui.Handler(); err != nil {
		s.log.Warn("embedded UI unavailable", "error", err)
	} else {
		mux.Handle("/", h)
	}

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// writeStoreError maps a store failure to a response. Schema violations are
// reported with their own kind so clients can tell them from I/O errors.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *validate.Error
	if errors.As(err, &ve) {
		s.log.Error("document failed validation", "path", r.URL.Path, "shape", ve.Shape, "reason", ve.Reason)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":  ve.Error(),
			"kind":   "schema_violation",
			"detail": ve.Reason,
		})
		return
	}
	s.log.Error("read failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func taskID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("taskId"))
	if err != nil || id < 0 {
		writeError(w, http.StatusBadRequest, "task id must be a non-negative integer")
		return 0, false
	}
	return id, true
}

// --- Tasks & repos ---

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.Tasks(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) listRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := s.store.Repos(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, repos)
}

func (s *Server) taskSpec(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	spec, err := s.store.TaskSpec(r.Context(), id)
	if errors.Is(err, fs.ErrNotExist) {
		writeText(w, NoSpecText)
		return
	}
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeText(w, spec)
}

// --- Logs ---

func (s *Server) taskLog(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	text, err := s.store.TaskLog(r.Context(), id)
	if errors.Is(err, fs.ErrNotExist) {
		writeText(w, NoLogsText)
		return
	}
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeText(w, text)
}

func (s *Server) taskConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	text, err := s.store.TaskLog(r.Context(), id)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.writeStoreError(w, r, err)
		return
	}

	if r.URL.Query().Get("raw") == "1" {
		writeJSON(w, http.StatusOK, transcript.AllTurns(text))
		return
	}
	writeJSON(w, http.StatusOK, transcript.Conversation(text))
}

// --- Streams ---

func (s *Server) streamTasks(w http.ResponseWriter, r *http.Request) {
	s.serveStream(w, r, s.store.Paths().TasksFile(), s.tasksSnapshot)
}

func (s *Server) streamLog(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	s.serveStream(w, r, s.store.Paths().LogFile(id), s.logSnapshot(id))
}

// tasksSnapshot pushes the validated registry. A document that fails
// validation is returned as an error, which skips the push and keeps the
// stream open for the next write.
func (s *Server) tasksSnapshot(ctx context.Context) (any, error) {
	return s.store.Tasks(ctx)
}

func (s *Server) logSnapshot(id int) stream.SnapshotFunc {
	return func(ctx context.Context) (any, error) {
		text, err := s.store.TaskLog(ctx, id)
		if errors.Is(err, fs.ErrNotExist) {
			return stream.LogPayload{Content: ""}, nil
		}
		if err != nil {
			return nil, err
		}
		return stream.LogPayload{Content: text}, nil
	}
}

func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, path string, snapshot stream.SnapshotFunc) {
	sink := stream.NewHTTPSink(w)
	sess, err := s.streams.Open(r.Context(), path, snapshot, sink)
	if err != nil {
		if errors.Is(err, stream.ErrClientGone) || r.Context().Err() != nil {
			s.log.Debug("client left before first event", "path", path, "error", err)
			return
		}
		s.log.Error("open stream failed", "path", path, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Commit the headers even if the initial snapshot was skipped.
	if err := sink.Flush(); err != nil {
		sess.Cancel()
		return
	}

	s.log.Info("stream opened", "session", sess.ID, "path", path)
	if err := sess.Run(); err != nil {
		s.log.Debug("stream ended", "session", sess.ID, "error", err)
		return
	}
	s.log.Info("stream closed", "session", sess.ID)
}

// --- Board ---

func (s *Server) boardSummary(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.Tasks(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board.Summarize(tasks))
}

func (s *Server) boardProductivity(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.Tasks(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board.BuildProductivity(tasks, s.now()))
}

// --- Students ---

func (s *Server) getStudent(w http.ResponseWriter, r *http.Request) {
	profile, err := s.store.Student(r.Context(), r.PathValue("name"))
	switch {
	case errors.Is(err, store.ErrInvalidName):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, fs.ErrNotExist):
		writeError(w, http.StatusNotFound, "Student not found")
	case err != nil:
		s.writeStoreError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, profile)
	}
}
