// Package types defines the data model shared across the orchestrator:
// task identifiers, service graphs, pending-task records, and the
// worker/actor descriptors tracked in the KV store.
package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskID identifies one instance of an executing graph.
type TaskID struct {
	id uuid.UUID
}

// NewTaskID generates a fresh random TaskID.
func NewTaskID() TaskID {
	return TaskID{id: uuid.New()}
}

// ParseTaskID parses the canonical textual representation of a TaskID.
func ParseTaskID(s string) (TaskID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return TaskID{}, fmt.Errorf("parse task id %q: %w", s, err)
	}
	return TaskID{id: id}, nil
}

func (t TaskID) String() string { return t.id.String() }

func (t TaskID) IsZero() bool { return t.id == uuid.Nil }

func (t TaskID) MarshalText() ([]byte, error) { return []byte(t.id.String()), nil }

func (t *TaskID) UnmarshalText(b []byte) error {
	id, err := uuid.Parse(string(b))
	if err != nil {
		return fmt.Errorf("unmarshal task id %q: %w", string(b), err)
	}
	t.id = id
	return nil
}

// ServiceType identifies a service implementation in the plugin registry.
type ServiceType struct {
	Namespace string `json:"namespace" yaml:"namespace"`
	Name      string `json:"name" yaml:"name"`
}

func (s ServiceType) String() string { return s.Namespace + "/" + s.Name }

// Uri names a node instance inside a graph. Opaque to the engine.
type Uri string

// PortType classifies how a node participates in the wire topology.
type PortType string

const (
	PortSource PortType = "source"
	PortFlow   PortType = "flow"
	PortSink   PortType = "sink"
)

// Node is one vertex of a Graph: a service instance, its configuration,
// and the set of downstream nodes it feeds.
type Node struct {
	ServiceType ServiceType     `json:"service_type" yaml:"service_type"`
	URI         Uri             `json:"uri" yaml:"uri"`
	Port        PortType        `json:"port" yaml:"port"`
	Config      json.RawMessage `json:"config,omitempty" yaml:"config,omitempty"`
	Wires       []Uri           `json:"wires,omitempty" yaml:"wires,omitempty"`
	AllowCycle  bool            `json:"allow_cycle,omitempty" yaml:"allow_cycle,omitempty"`
}

// Graph is the static declarative DAG of services and wires a task runs.
type Graph struct {
	Name  string `json:"name" yaml:"name"`
	Nodes []Node `json:"nodes" yaml:"nodes"`
}

// NodeByURI returns the node with the given URI, if present.
func (g Graph) NodeByURI(u Uri) (Node, bool) {
	for _, n := range g.Nodes {
		if n.URI == u {
			return n, true
		}
	}
	return Node{}, false
}

// StatusState enumerates the lifecycle states of a PendingTask.
type StatusState string

const (
	StatusWaiting   StatusState = "waiting"
	StatusAllocated StatusState = "allocated"
	StatusRunning   StatusState = "running"
	StatusFinished  StatusState = "finished"
	StatusFailed    StatusState = "failed"
)

// Status is the mutable allocation state of a PendingTask.
type Status struct {
	State  StatusState `json:"state" yaml:"state"`
	Worker string      `json:"worker,omitempty" yaml:"worker,omitempty"`
}

// PendingTask is the immutable description of a submitted graph plus its
// mutable allocation state. Version is carried out-of-band by the store
// and attached here by callers doing a read-modify-write.
type PendingTask struct {
	TaskID      TaskID     `json:"task_id" yaml:"task_id"`
	Graph       Graph      `json:"graph" yaml:"graph"`
	Status      Status     `json:"status" yaml:"status"`
	AllocatedAt *time.Time `json:"allocated_at,omitempty" yaml:"allocated_at,omitempty"`
	Version     uint64     `json:"-" yaml:"-"`
}

// IsDispatchable reports whether the pending task is eligible for the
// dispatcher to pick up, either because it has never been allocated or
// because its allocation has gone stale (see pkg/dispatcher).
func (p PendingTask) IsDispatchable(now time.Time, allocationTTL time.Duration) bool {
	switch p.Status.State {
	case StatusWaiting:
		return true
	case StatusAllocated:
		if p.AllocatedAt == nil {
			return true
		}
		return now.Sub(*p.AllocatedAt) > allocationTTL
	default:
		return false
	}
}

// Allocate returns a copy of p allocated to the named worker at t.
func (p PendingTask) Allocate(worker string, t time.Time) PendingTask {
	p.Status = Status{State: StatusAllocated, Worker: worker}
	p.AllocatedAt = &t
	return p
}

// WorkerStatus enumerates the liveness states of a Worker/Actor record.
type WorkerStatus string

const (
	WorkerReady     WorkerStatus = "ready"
	WorkerNoContact WorkerStatus = "nocontact"
	WorkerStop      WorkerStatus = "stop"
)

// WorkerKind distinguishes a full worker process from a finer-grained
// per-service actor watchdog for logging and metrics purposes only;
// both kinds share storage semantics.
type WorkerKind string

const (
	KindSupervisor WorkerKind = "supervisor"
	KindActor      WorkerKind = "actor"
)

// Worker is the identity/heartbeat descriptor shared by supervisors
// (full worker processes, stored under supervisors/<name>) and actors
// (per-service watchdogs, stored under actors/<name>).
type Worker struct {
	Name               string       `json:"name" yaml:"name"`
	Addr               string       `json:"addr" yaml:"addr"`
	Labels             []string     `json:"labels,omitempty" yaml:"labels,omitempty"`
	StartTime          time.Time    `json:"start_time" yaml:"start_time"`
	LastHeartbeat      *time.Time   `json:"last_heartbeat,omitempty" yaml:"last_heartbeat,omitempty"`
	Status             WorkerStatus `json:"status" yaml:"status"`
	LastTransitionTime time.Time    `json:"last_transition_time" yaml:"last_transition_time"`
}

// IsAlive reports whether the worker is eligible for dispatch selection.
func (w Worker) IsAlive() bool {
	return w.Status != WorkerNoContact && w.Status != WorkerStop
}

// WithStatus returns a copy of w transitioned to status at t.
func (w Worker) WithStatus(status WorkerStatus, t time.Time) Worker {
	w.Status = status
	w.LastTransitionTime = t
	return w
}

// Heartbeat returns a copy of w with LastHeartbeat refreshed and status
// restored to Ready, unless the worker is stopped.
func (w Worker) Heartbeat(t time.Time) Worker {
	w.LastHeartbeat = &t
	if w.Status != WorkerStop {
		w.Status = WorkerReady
	}
	return w
}

// PolicyRule is one RBAC rule within a Role.
type PolicyRule struct {
	Resources []string `json:"resources" yaml:"resources"`
	Verbs     []string `json:"verbs" yaml:"verbs"`
}

// Role is a named set of policy rules. Storage and CRUD only; the
// authorization decision itself is external per the orchestrator's scope.
type Role struct {
	Name  string       `json:"name" yaml:"name"`
	Rules []PolicyRule `json:"rules" yaml:"rules"`
}

// RoleBinding attaches a Role to a set of subjects (user or service names).
type RoleBinding struct {
	Name     string   `json:"name" yaml:"name"`
	Role     string   `json:"role" yaml:"role"`
	Subjects []string `json:"subjects" yaml:"subjects"`
}
