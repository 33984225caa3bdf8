// Package graph validates a declarative service Graph and realizes it
// into the channel topology the execution engine drives.
package graph

import (
	"fmt"

	"github.com/defvar/toy/pkg/registry"
	"github.com/defvar/toy/pkg/types"
)

// Validate rejects a graph unless every invariant in the component
// design's G.1 holds: non-empty name, unique URIs, known service types,
// resolvable wires, at least one source and one sink, no orphans, and no
// cycles unless every node on the cycle opts in via AllowCycle.
func Validate(g types.Graph, reg *registry.Registry) error {
	if g.Name == "" {
		return fmt.Errorf("graph validation: name must not be empty")
	}
	if len(g.Nodes) == 0 {
		return fmt.Errorf("graph validation: graph %q has no nodes", g.Name)
	}

	seen := make(map[types.Uri]types.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, dup := seen[n.URI]; dup {
			return fmt.Errorf("graph validation: duplicate uri %q", n.URI)
		}
		seen[n.URI] = n

		if !reg.Has(n.ServiceType) {
			return fmt.Errorf("graph validation: unknown service type %s for node %q", n.ServiceType, n.URI)
		}
	}

	inbound := make(map[types.Uri]int, len(g.Nodes))
	for _, n := range g.Nodes {
		for _, target := range n.Wires {
			if _, ok := seen[target]; !ok {
				return fmt.Errorf("graph validation: node %q wires to unknown uri %q", n.URI, target)
			}
			inbound[target]++
		}
	}

	hasSource, hasSink := false, false
	for _, n := range g.Nodes {
		if inbound[n.URI] == 0 {
			hasSource = true
		}
		if len(n.Wires) == 0 {
			hasSink = true
		}
	}
	if !hasSource {
		return fmt.Errorf("graph validation: graph %q has no source node (every node has inbound wires)", g.Name)
	}
	if !hasSink {
		return fmt.Errorf("graph validation: graph %q has no sink node (every node has outbound wires)", g.Name)
	}

	if err := checkCyclesAndConnectivity(g); err != nil {
		return err
	}

	return nil
}

func checkCyclesAndConnectivity(g types.Graph) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[types.Uri]int, len(g.Nodes))
	byURI := make(map[types.Uri]types.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		byURI[n.URI] = n
		color[n.URI] = white
	}

	var path []types.Uri
	var visit func(uri types.Uri) error
	visit = func(uri types.Uri) error {
		color[uri] = gray
		path = append(path, uri)
		node := byURI[uri]
		for _, next := range node.Wires {
			switch color[next] {
			case white:
				if err := visit(next); err != nil {
					return err
				}
			case gray:
				for i := len(path) - 1; i >= 0; i-- {
					if !byURI[path[i]].AllowCycle {
						return fmt.Errorf("graph validation: cycle detected through %q -> %q not explicitly allowed", uri, next)
					}
					if path[i] == next {
						break
					}
				}
			}
		}
		path = path[:len(path)-1]
		color[uri] = black
		return nil
	}

	for _, n := range g.Nodes {
		if color[n.URI] == white {
			if err := visit(n.URI); err != nil {
				return err
			}
		}
	}

	// connectivity: every node reachable from some source via an
	// undirected walk of the wire edges.
	adjacency := make(map[types.Uri][]types.Uri, len(g.Nodes))
	for _, n := range g.Nodes {
		for _, target := range n.Wires {
			adjacency[n.URI] = append(adjacency[n.URI], target)
			adjacency[target] = append(adjacency[target], n.URI)
		}
	}

	visited := make(map[types.Uri]bool, len(g.Nodes))
	var stack []types.Uri
	if len(g.Nodes) > 0 {
		stack = append(stack, g.Nodes[0].URI)
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		stack = append(stack, adjacency[cur]...)
	}
	for _, n := range g.Nodes {
		if !visited[n.URI] {
			return fmt.Errorf("graph validation: node %q is not connected to the rest of the graph", n.URI)
		}
	}

	return nil
}
