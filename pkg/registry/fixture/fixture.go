// Package fixture provides minimal Service implementations used by
// tests to exercise the graph and engine packages without depending on
// any real service plugin.
package fixture

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/defvar/toy/pkg/registry"
	"github.com/defvar/toy/pkg/types"
)

// SourceConfig configures a Source factory: the fixed set of frames it
// emits before completing.
type SourceConfig struct {
	Frames []string `json:"frames"`
}

type sourceFactory struct{}

// Source is a ServiceFactory that emits a fixed list of frames then
// completes, standing in for a real ingestion node in tests.
var Source registry.ServiceFactory = sourceFactory{}

func (sourceFactory) NewContext(_ types.ServiceType, config []byte) (registry.Context, error) {
	var cfg SourceConfig
	if len(config) > 0 {
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, err
		}
	}
	return &sourceContext{frames: cfg.Frames}, nil
}

func (sourceFactory) NewService(_ types.ServiceType, _ registry.Context) (registry.Service, error) {
	return sourceService{}, nil
}

// sourceContext tracks how far through its configured frames a source
// has emitted, across repeated Handle calls.
type sourceContext struct {
	frames []string
	next   int
}

type sourceService struct{}

// Handle emits the next configured frame per call and reports done once
// every frame has been sent, standing in for a real ingestion node's
// handle-loop (G.4: "sources ... run handle in a loop producing frames
// until they self-terminate").
func (sourceService) Handle(ctx context.Context, nodeCtx registry.Context, _ registry.Frame, out registry.Out) (registry.Context, bool, error) {
	sc := nodeCtx.(*sourceContext)
	if sc.next >= len(sc.frames) {
		return sc, true, nil
	}
	frame := sc.frames[sc.next]
	sc.next++
	if err := out.SendAll(ctx, frame); err != nil {
		return sc, false, err
	}
	return sc, sc.next >= len(sc.frames), nil
}

func (sourceService) UpstreamFinish(_ context.Context, nodeCtx registry.Context, _ types.Uri, _ registry.Out) (registry.Context, error) {
	return nodeCtx, nil
}

func (sourceService) UpstreamFinishAll(_ context.Context, _ registry.Context, _ registry.Out) error {
	return nil
}

// SinkState accumulates every frame a Sink node receives. Tests hold
// onto the SinkState they built the factory with and inspect it after
// the task completes.
type SinkState struct {
	mu       sync.Mutex
	received []registry.Frame
}

// Received returns the frames accumulated so far, in arrival order.
func (s *SinkState) Received() []registry.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]registry.Frame, len(s.received))
	copy(out, s.received)
	return out
}

func (s *SinkState) record(frame registry.Frame) {
	s.mu.Lock()
	s.received = append(s.received, frame)
	s.mu.Unlock()
}

// SinkFactory is a ServiceFactory that accumulates every frame it
// receives into a shared SinkState, so a test can construct one,
// register it under a ServiceType, run a task, and inspect State
// afterward.
type SinkFactory struct {
	State *SinkState
}

// NewSinkFactory builds a SinkFactory with a fresh, empty SinkState.
func NewSinkFactory() *SinkFactory {
	return &SinkFactory{State: &SinkState{}}
}

func (f *SinkFactory) NewContext(_ types.ServiceType, _ []byte) (registry.Context, error) {
	return f.State, nil
}

func (f *SinkFactory) NewService(_ types.ServiceType, _ registry.Context) (registry.Service, error) {
	return sinkService{}, nil
}

// Sink is a package-level SinkFactory with its own SinkState, kept for
// callers that only need one sink and don't care about per-instance
// isolation (e.g. pkg/graph's validation tests, which never run a
// task through it).
var Sink = NewSinkFactory()

type sinkService struct{}

func (sinkService) Handle(_ context.Context, nodeCtx registry.Context, frame registry.Frame, _ registry.Out) (registry.Context, bool, error) {
	state := nodeCtx.(*SinkState)
	state.record(frame)
	return state, false, nil
}

func (sinkService) UpstreamFinish(_ context.Context, nodeCtx registry.Context, _ types.Uri, _ registry.Out) (registry.Context, error) {
	return nodeCtx, nil
}

func (sinkService) UpstreamFinishAll(_ context.Context, _ registry.Context, _ registry.Out) error {
	return nil
}
