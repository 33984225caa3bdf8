// Package api implements the orchestrator's HTTP control plane: graph,
// supervisor, actor, task, role, and role-binding CRUD, plus task
// submission/allocation and the Prometheus scrape endpoint.
package api

import (
	"io"
	"net/http"
	"time"

	"github.com/defvar/toy/pkg/apierr"
	"github.com/defvar/toy/pkg/codec"
	"github.com/defvar/toy/pkg/log"
	"github.com/defvar/toy/pkg/metrics"
	"github.com/defvar/toy/pkg/registry"
	"github.com/defvar/toy/pkg/statestore"
	"github.com/defvar/toy/pkg/storage"
	"github.com/defvar/toy/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// Server is the HTTP control plane. It holds no business logic beyond
// request decoding/encoding and storage-result translation; every
// decision belongs to pkg/statestore or the caller-supplied registry.
type Server struct {
	graphs       statestore.Records[types.Graph]
	supervisors  statestore.Workers
	actors       statestore.Workers
	tasks        statestore.PendingTasks
	roles        statestore.Records[types.Role]
	roleBindings statestore.Records[types.RoleBinding]
	registry     *registry.Registry
	exporter     *metrics.PrometheusExporter
	events       *metrics.Registry
	logger       zerolog.Logger

	router chi.Router
}

// New builds a Server and wires its route table. store backs every
// record type; reg is consulted read-only for /services.
func New(store storage.Store, reg *registry.Registry, eventsReg *metrics.Registry) *Server {
	s := &Server{
		graphs:       statestore.NewRecords[types.Graph](store, codec.JSON, "graphs"),
		supervisors:  statestore.NewWorkers(store, codec.JSON, "supervisors"),
		actors:       statestore.NewWorkers(store, codec.JSON, "actors"),
		tasks:        statestore.NewPendingTasks(store, codec.JSON),
		roles:        statestore.NewRecords[types.Role](store, codec.JSON, "roles"),
		roleBindings: statestore.NewRecords[types.RoleBinding](store, codec.JSON, "roleBindings"),
		registry:     reg,
		exporter:     metrics.NewPrometheusExporter(eventsReg),
		events:       eventsReg,
		logger:       log.WithComponent("api"),
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the server's http.Handler.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/graphs", func(r chi.Router) {
		r.Get("/", s.listGraphs)
		r.Get("/{name}", s.getGraph)
		r.Put("/{name}", s.putGraph)
		r.Delete("/{name}", s.deleteGraph)
	})

	r.Route("/supervisors", func(r chi.Router) {
		r.Get("/", s.listWorkers(s.supervisors))
		r.Get("/{name}", s.getWorker(s.supervisors))
		r.Put("/{name}", s.putWorker(s.supervisors))
	})

	r.Route("/actors", func(r chi.Router) {
		r.Get("/", s.listWorkers(s.actors))
		r.Get("/{name}", s.getWorker(s.actors))
		r.Put("/{name}", s.putWorker(s.actors))
	})

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", s.listTasks)
		r.Post("/", s.submitTask)
		r.Get("/{id}/log", s.taskLog)
		r.Post("/{id}/allocate", s.allocateTask)
	})

	r.Route("/roles/{name}", func(r chi.Router) {
		r.Get("/", s.getRole)
		r.Put("/", s.putRole)
		r.Delete("/", s.deleteRole)
	})

	r.Route("/roleBindings/{name}", func(r chi.Router) {
		r.Get("/", s.getRoleBinding)
		r.Put("/", s.putRoleBinding)
		r.Delete("/", s.deleteRoleBinding)
	})

	r.Get("/services", s.listServices)
	r.Mount("/metrics", s.exporter.Handler())

	return r
}

func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := apierr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	_ = codec.WriteBody(w, codec.Negotiate(r), status, apierr.BodyFor(err))
}

// --- graphs ---

func (s *Server) listGraphs(w http.ResponseWriter, r *http.Request) {
	graphs, err := s.graphs.List(r.Context())
	if err != nil {
		s.writeErr(w, r, apierr.New(apierr.Fatal, "list graphs", err))
		return
	}
	_ = codec.WriteBody(w, codec.Negotiate(r), http.StatusOK, graphs)
}

func (s *Server) getGraph(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	g, found, err := s.graphs.Get(r.Context(), name)
	if err != nil {
		s.writeErr(w, r, apierr.New(apierr.Fatal, "get graph", err))
		return
	}
	if !found {
		s.writeErr(w, r, apierr.New(apierr.NotFound, "graph "+name, nil))
		return
	}
	_ = codec.WriteBody(w, codec.Negotiate(r), http.StatusOK, g)
}

func (s *Server) putGraph(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var g types.Graph
	if err := decodeBody(r, &g); err != nil {
		s.writeErr(w, r, apierr.New(apierr.Validation, "decode graph body", err))
		return
	}
	g.Name = name
	outcome, err := s.graphs.Put(r.Context(), name, g)
	if err != nil {
		s.writeErr(w, r, apierr.New(apierr.Fatal, "put graph", err))
		return
	}
	status := http.StatusOK
	if outcome == statestore.Created {
		status = http.StatusCreated
	}
	_ = codec.WriteBody(w, codec.Negotiate(r), status, g)
}

func (s *Server) deleteGraph(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	outcome, err := s.graphs.Delete(r.Context(), name)
	if err != nil {
		s.writeErr(w, r, apierr.New(apierr.Fatal, "delete graph", err))
		return
	}
	if outcome == statestore.NotFound {
		s.writeErr(w, r, apierr.New(apierr.NotFound, "graph "+name, nil))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- supervisors / actors (shared Workers-backed handlers) ---

func (s *Server) listWorkers(store statestore.Workers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workers, _, err := store.List(r.Context())
		if err != nil {
			s.writeErr(w, r, apierr.New(apierr.Fatal, "list workers", err))
			return
		}
		_ = codec.WriteBody(w, codec.Negotiate(r), http.StatusOK, workers)
	}
}

func (s *Server) getWorker(store statestore.Workers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		rec, _, found, err := store.Get(r.Context(), name)
		if err != nil {
			s.writeErr(w, r, apierr.New(apierr.Fatal, "get worker", err))
			return
		}
		if !found {
			s.writeErr(w, r, apierr.New(apierr.NotFound, "worker "+name, nil))
			return
		}
		_ = codec.WriteBody(w, codec.Negotiate(r), http.StatusOK, rec)
	}
}

func (s *Server) putWorker(store statestore.Workers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		var rec types.Worker
		if err := decodeBody(r, &rec); err != nil {
			s.writeErr(w, r, apierr.New(apierr.Validation, "decode worker body", err))
			return
		}
		rec.Name = name
		now := time.Now()
		if rec.StartTime.IsZero() {
			rec.StartTime = now
		}
		rec = rec.Heartbeat(now)

		outcome, err := store.Upsert(r.Context(), rec)
		if err != nil {
			s.writeErr(w, r, apierr.New(apierr.Fatal, "upsert worker", err))
			return
		}
		status := http.StatusOK
		if outcome == statestore.Created {
			status = http.StatusCreated
		}
		_ = codec.WriteBody(w, codec.Negotiate(r), status, rec)
	}
}

// --- roles ---

func (s *Server) getRole(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	v, found, err := s.roles.Get(r.Context(), name)
	if err != nil {
		s.writeErr(w, r, apierr.New(apierr.Fatal, "get role", err))
		return
	}
	if !found {
		s.writeErr(w, r, apierr.New(apierr.NotFound, "role "+name, nil))
		return
	}
	_ = codec.WriteBody(w, codec.Negotiate(r), http.StatusOK, v)
}

func (s *Server) putRole(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var v types.Role
	if err := decodeBody(r, &v); err != nil {
		s.writeErr(w, r, apierr.New(apierr.Validation, "decode role body", err))
		return
	}
	v.Name = name
	outcome, err := s.roles.Put(r.Context(), name, v)
	if err != nil {
		s.writeErr(w, r, apierr.New(apierr.Fatal, "put role", err))
		return
	}
	status := http.StatusOK
	if outcome == statestore.Created {
		status = http.StatusCreated
	}
	_ = codec.WriteBody(w, codec.Negotiate(r), status, v)
}

func (s *Server) deleteRole(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	outcome, err := s.roles.Delete(r.Context(), name)
	if err != nil {
		s.writeErr(w, r, apierr.New(apierr.Fatal, "delete role", err))
		return
	}
	if outcome == statestore.NotFound {
		s.writeErr(w, r, apierr.New(apierr.NotFound, "role "+name, nil))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- roleBindings ---

func (s *Server) getRoleBinding(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	v, found, err := s.roleBindings.Get(r.Context(), name)
	if err != nil {
		s.writeErr(w, r, apierr.New(apierr.Fatal, "get role binding", err))
		return
	}
	if !found {
		s.writeErr(w, r, apierr.New(apierr.NotFound, "role binding "+name, nil))
		return
	}
	_ = codec.WriteBody(w, codec.Negotiate(r), http.StatusOK, v)
}

func (s *Server) putRoleBinding(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var v types.RoleBinding
	if err := decodeBody(r, &v); err != nil {
		s.writeErr(w, r, apierr.New(apierr.Validation, "decode role binding body", err))
		return
	}
	v.Name = name
	outcome, err := s.roleBindings.Put(r.Context(), name, v)
	if err != nil {
		s.writeErr(w, r, apierr.New(apierr.Fatal, "put role binding", err))
		return
	}
	status := http.StatusOK
	if outcome == statestore.Created {
		status = http.StatusCreated
	}
	_ = codec.WriteBody(w, codec.Negotiate(r), status, v)
}

func (s *Server) deleteRoleBinding(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	outcome, err := s.roleBindings.Delete(r.Context(), name)
	if err != nil {
		s.writeErr(w, r, apierr.New(apierr.Fatal, "delete role binding", err))
		return
	}
	if outcome == statestore.NotFound {
		s.writeErr(w, r, apierr.New(apierr.NotFound, "role binding "+name, nil))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- tasks ---

// PendingResult is the wire response for a successful task submission.
type PendingResult struct {
	TaskID string `json:"task_id" yaml:"task_id"`
}

// AllocateResult is the wire response for a successful dispatcher
// allocation claim.
type AllocateResult struct {
	TaskID string `json:"task_id" yaml:"task_id"`
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.List(r.Context())
	if err != nil {
		s.writeErr(w, r, apierr.New(apierr.Fatal, "list tasks", err))
		return
	}
	_ = codec.WriteBody(w, codec.Negotiate(r), http.StatusOK, tasks)
}

func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	var g types.Graph
	if err := decodeBody(r, &g); err != nil {
		s.writeErr(w, r, apierr.New(apierr.Validation, "decode task graph", err))
		return
	}
	taskID := types.NewTaskID()
	task := types.PendingTask{
		TaskID: taskID,
		Graph:  g,
		Status: types.Status{State: types.StatusWaiting},
	}
	if _, err := s.tasks.Create(r.Context(), task); err != nil {
		s.writeErr(w, r, apierr.New(apierr.Fatal, "create pending task", err))
		return
	}
	_ = codec.WriteBody(w, codec.Negotiate(r), http.StatusCreated, PendingResult{TaskID: taskID.String()})
}

func (s *Server) taskLog(w http.ResponseWriter, r *http.Request) {
	idText := chi.URLParam(r, "id")
	events := s.events.EventLogFor(idText).Drain()
	_ = codec.WriteBody(w, codec.Negotiate(r), http.StatusOK, events)
}

func (s *Server) allocateTask(w http.ResponseWriter, r *http.Request) {
	idText := chi.URLParam(r, "id")
	taskID, err := types.ParseTaskID(idText)
	if err != nil {
		s.writeErr(w, r, apierr.New(apierr.Validation, "parse task id", err))
		return
	}
	var body struct {
		Worker string `json:"worker" yaml:"worker"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeErr(w, r, apierr.New(apierr.Validation, "decode allocate body", err))
		return
	}

	task, version, found, err := s.tasks.Get(r.Context(), taskID)
	if err != nil {
		s.writeErr(w, r, apierr.New(apierr.Fatal, "get task", err))
		return
	}
	if !found {
		s.writeErr(w, r, apierr.New(apierr.NotFound, "task "+idText, nil))
		return
	}
	if task.Status.State != types.StatusWaiting {
		s.writeErr(w, r, apierr.New(apierr.Conflict, "task "+idText+" already allocated", nil))
		return
	}
	allocated := task.Allocate(body.Worker, time.Now())
	outcome, err := s.tasks.CompareAndSwap(r.Context(), allocated, version)
	if err != nil {
		s.writeErr(w, r, apierr.New(apierr.Fatal, "allocate task", err))
		return
	}
	if outcome == statestore.Conflict {
		s.writeErr(w, r, apierr.New(apierr.Conflict, "task "+idText+" already allocated", nil))
		return
	}
	_ = codec.WriteBody(w, codec.Negotiate(r), http.StatusOK, AllocateResult{TaskID: idText})
}

// --- services ---

func (s *Server) listServices(w http.ResponseWriter, r *http.Request) {
	_ = codec.WriteBody(w, codec.Negotiate(r), http.StatusOK, s.registry.Names())
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	return codec.Negotiate(r).Decode(data, v)
}
