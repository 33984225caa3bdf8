// Package registry is the plugin table the graph execution engine
// dispatches through: a ServiceType maps to a ServiceFactory that builds
// the per-task Service instance and its mutable Context.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/defvar/toy/pkg/types"
)

// Frame is one unit of data flowing on a wire. Opaque to the engine.
type Frame any

// Context is the mutable per-invocation state a service carries across
// frames within one task run. Concrete services define their own
// context type and type-assert it back out of this interface.
type Context any

// Out is how a node's Handle/UpstreamFinish implementation emits frames
// downstream; one Out exists per node and covers every outbound wire the
// node declares.
type Out interface {
	// Send delivers a frame on the named outbound wire. Blocks if the
	// channel is full (backpressure); returns an error if ctx is done.
	Send(ctx context.Context, wire types.Uri, frame Frame) error

	// SendAll delivers a frame to every outbound wire, for services that
	// do not distinguish between downstream consumers.
	SendAll(ctx context.Context, frame Frame) error
}

// Service is the user-provided per-task state a ServiceFactory builds
// for one node in a graph. It implements the G.4 state machine's
// handler callbacks.
type Service interface {
	// Handle processes one inbound frame, returning the context to carry
	// forward to the next frame. For a source node (no inbound wires),
	// the engine calls Handle in a loop with a nil frame instead of
	// waiting on a channel; done reports that the source has produced
	// everything it will and should transition to Complete. Non-source
	// nodes reach Complete only once every upstream has finished (G.4),
	// so their Handle should always return done=false.
	Handle(ctx context.Context, nodeCtx Context, frame Frame, out Out) (next Context, done bool, err error)

	// UpstreamFinish is invoked once per upstream wire as that
	// upstream's finish marker arrives.
	UpstreamFinish(ctx context.Context, nodeCtx Context, wire types.Uri, out Out) (Context, error)

	// UpstreamFinishAll is invoked exactly once, after every upstream
	// has signalled finish (or, for a source node with no upstreams, once
	// its Handle loop reports done).
	UpstreamFinishAll(ctx context.Context, nodeCtx Context, out Out) error
}

// ServiceFactory constructs a Service and its initial Context for one
// node, given the node's decoded configuration.
type ServiceFactory interface {
	NewContext(serviceType types.ServiceType, config []byte) (Context, error)
	NewService(serviceType types.ServiceType, nodeCtx Context) (Service, error)
}

// Registry is the process-wide service_type -> factory table.
type Registry struct {
	mu        sync.RWMutex
	factories map[types.ServiceType]ServiceFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[types.ServiceType]ServiceFactory)}
}

// Register adds or replaces the factory for serviceType.
func (r *Registry) Register(serviceType types.ServiceType, factory ServiceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[serviceType] = factory
}

// Has reports whether serviceType has a registered factory.
func (r *Registry) Has(serviceType types.ServiceType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[serviceType]
	return ok
}

// Factory returns the registered factory for serviceType.
func (r *Registry) Factory(serviceType types.ServiceType) (ServiceFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[serviceType]
	if !ok {
		return nil, fmt.Errorf("registry: no factory registered for service type %s", serviceType)
	}
	return f, nil
}

// Names lists every registered service type, for the API's /services
// listing.
func (r *Registry) Names() []types.ServiceType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ServiceType, 0, len(r.factories))
	for st := range r.factories {
		out = append(out, st)
	}
	return out
}
