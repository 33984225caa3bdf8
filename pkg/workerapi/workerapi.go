// Package workerapi implements the small HTTP surface a running worker
// exposes to the dispatcher and to operators: status, task acceptance,
// and graceful shutdown.
package workerapi

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/defvar/toy/pkg/codec"
	"github.com/defvar/toy/pkg/engine"
	"github.com/defvar/toy/pkg/log"
	"github.com/defvar/toy/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Server is the worker-side HTTP control surface, backed by a single
// pkg/engine.Engine running every task this process has accepted.
type Server struct {
	name   string
	start  time.Time
	engine *engine.Engine
	logger zerolog.Logger

	mu       sync.Mutex
	draining bool

	router chi.Router
}

// New builds a Server named name, dispatching accepted tasks into eng.
func New(name string, eng *engine.Engine) *Server {
	s := &Server{
		name:   name,
		start:  time.Now(),
		engine: eng,
		logger: log.WithWorkerID(name),
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the server's http.Handler.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Get("/status", s.status)
	r.Post("/tasks", s.acceptTask)
	r.Put("/shutdown", s.shutdown)
	return r
}

// StatusResult is the wire response for GET /status.
type StatusResult struct {
	Name      string    `json:"name" yaml:"name"`
	StartTime time.Time `json:"start_time" yaml:"start_time"`
	Running   []string  `json:"running_task_ids" yaml:"running_task_ids"`
	Draining  bool      `json:"draining" yaml:"draining"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	running := s.engine.RunningTaskIDs()
	ids := make([]string, 0, len(running))
	for _, id := range running {
		ids = append(ids, id.String())
	}

	s.mu.Lock()
	draining := s.draining
	s.mu.Unlock()

	_ = codec.WriteBody(w, codec.Negotiate(r), http.StatusOK, StatusResult{
		Name:      s.name,
		StartTime: s.start,
		Running:   ids,
		Draining:  draining,
	})
}

// AllocateResponse is the wire response for POST /tasks.
type AllocateResponse struct {
	TaskID string `json:"task_id" yaml:"task_id"`
}

func (s *Server) acceptTask(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	draining := s.draining
	s.mu.Unlock()
	if draining {
		http.Error(w, "worker is draining", http.StatusServiceUnavailable)
		return
	}

	data, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		http.Error(w, "read task body: "+err.Error(), http.StatusBadRequest)
		return
	}
	// The dispatcher posts a full types.PendingTask, not a bespoke
	// wrapper, so decode straight into it.
	var task types.PendingTask
	if err := codec.Negotiate(r).Decode(data, &task); err != nil {
		http.Error(w, "decode task body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if task.TaskID.IsZero() {
		http.Error(w, "task body missing task_id", http.StatusBadRequest)
		return
	}

	if err := s.engine.RunTask(task.TaskID, task.Graph); err != nil {
		s.logger.Error().Err(err).Str("task_id", task.TaskID.String()).Msg("failed to accept task")
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	_ = codec.WriteBody(w, codec.Negotiate(r), http.StatusCreated, AllocateResponse{TaskID: task.TaskID.String()})
}

// shutdown marks the worker as draining: it stops accepting new tasks
// but leaves already-running ones to finish (or be cancelled
// externally). It never calls os.Exit and does not terminate the
// process.
func (s *Server) shutdown(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()
	s.logger.Info().Msg("worker draining, no longer accepting new tasks")
	w.WriteHeader(http.StatusAccepted)
}
