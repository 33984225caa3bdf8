package graph

import (
	"fmt"

	"github.com/defvar/toy/pkg/registry"
	"github.com/defvar/toy/pkg/types"
)

// DefaultChannelCapacity bounds the buffer of every realized wire,
// giving the engine's backpressure something to bite on instead of an
// unbounded channel.
const DefaultChannelCapacity = 8

// Wire is one realized channel between two nodes of the graph.
type Wire struct {
	From, To types.Uri
	Channel  chan registry.Frame
}

// NodeTopology is one node's realized position in the graph: its
// factory-built service and context, plus the inbound/outbound wires it
// reads from and writes to.
type NodeTopology struct {
	Node     types.Node
	Factory  registry.ServiceFactory
	Inbound  []*Wire
	Outbound []*Wire
}

// Topology is a Graph realized into channels and factory-bound nodes,
// ready for the engine to drive.
type Topology struct {
	Graph types.Graph
	Nodes map[types.Uri]*NodeTopology
}

// Realize builds the channel topology for an already-Validated graph.
// Callers must call Validate first; Realize does not re-check the
// invariants Validate already enforces, only what it needs to wire
// channels (resolving each node's factory).
func Realize(g types.Graph, reg *registry.Registry) (*Topology, error) {
	topo := &Topology{
		Graph: g,
		Nodes: make(map[types.Uri]*NodeTopology, len(g.Nodes)),
	}

	for _, n := range g.Nodes {
		factory, err := reg.Factory(n.ServiceType)
		if err != nil {
			return nil, fmt.Errorf("realize graph %q: %w", g.Name, err)
		}
		topo.Nodes[n.URI] = &NodeTopology{Node: n, Factory: factory}
	}

	for _, n := range g.Nodes {
		from := topo.Nodes[n.URI]
		for _, target := range n.Wires {
			to, ok := topo.Nodes[target]
			if !ok {
				return nil, fmt.Errorf("realize graph %q: node %q wires to unknown uri %q", g.Name, n.URI, target)
			}
			w := &Wire{From: n.URI, To: target, Channel: make(chan registry.Frame, DefaultChannelCapacity)}
			from.Outbound = append(from.Outbound, w)
			to.Inbound = append(to.Inbound, w)
		}
	}

	return topo, nil
}

// Sources returns the nodes with no inbound wire, the graph's entry
// points.
func (t *Topology) Sources() []*NodeTopology {
	var out []*NodeTopology
	for _, nt := range t.Nodes {
		if len(nt.Inbound) == 0 {
			out = append(out, nt)
		}
	}
	return out
}

// Sinks returns the nodes with no outbound wire, the graph's exit
// points.
func (t *Topology) Sinks() []*NodeTopology {
	var out []*NodeTopology
	for _, nt := range t.Nodes {
		if len(nt.Outbound) == 0 {
			out = append(out, nt)
		}
	}
	return out
}
