package graph

import (
	"testing"

	"github.com/defvar/toy/pkg/registry"
	"github.com/defvar/toy/pkg/registry/fixture"
	"github.com/defvar/toy/pkg/types"
	"github.com/stretchr/testify/require"
)

func sourceSinkRegistry() *registry.Registry {
	reg := registry.NewRegistry()
	reg.Register(types.ServiceType{Namespace: "builtin", Name: "source"}, fixture.Source)
	reg.Register(types.ServiceType{Namespace: "builtin", Name: "sink"}, fixture.Sink)
	return reg
}

func linearGraph() types.Graph {
	return types.Graph{
		Name: "linear",
		Nodes: []types.Node{
			{ServiceType: types.ServiceType{Namespace: "builtin", Name: "source"}, URI: "src", Port: types.PortSource, Wires: []types.Uri{"snk"}},
			{ServiceType: types.ServiceType{Namespace: "builtin", Name: "sink"}, URI: "snk", Port: types.PortSink},
		},
	}
}

func TestValidateAcceptsLinearGraph(t *testing.T) {
	require.NoError(t, Validate(linearGraph(), sourceSinkRegistry()))
}

func TestValidateRejectsEmptyName(t *testing.T) {
	g := linearGraph()
	g.Name = ""
	require.Error(t, Validate(g, sourceSinkRegistry()))
}

func TestValidateRejectsDuplicateURI(t *testing.T) {
	g := linearGraph()
	g.Nodes = append(g.Nodes, g.Nodes[0])
	require.Error(t, Validate(g, sourceSinkRegistry()))
}

func TestValidateRejectsUnknownServiceType(t *testing.T) {
	g := linearGraph()
	g.Nodes[0].ServiceType = types.ServiceType{Namespace: "missing", Name: "thing"}
	require.Error(t, Validate(g, sourceSinkRegistry()))
}

func TestValidateRejectsUnresolvableWire(t *testing.T) {
	g := linearGraph()
	g.Nodes[0].Wires = []types.Uri{"nowhere"}
	require.Error(t, Validate(g, sourceSinkRegistry()))
}

func TestValidateRejectsNoSource(t *testing.T) {
	g := types.Graph{
		Name: "cycle-only",
		Nodes: []types.Node{
			{ServiceType: types.ServiceType{Namespace: "builtin", Name: "source"}, URI: "a", Wires: []types.Uri{"b"}, AllowCycle: true},
			{ServiceType: types.ServiceType{Namespace: "builtin", Name: "sink"}, URI: "b", Wires: []types.Uri{"a"}, AllowCycle: true},
		},
	}
	require.Error(t, Validate(g, sourceSinkRegistry()))
}

func TestValidateRejectsUnallowedCycle(t *testing.T) {
	g := types.Graph{
		Name: "cycle",
		Nodes: []types.Node{
			{ServiceType: types.ServiceType{Namespace: "builtin", Name: "source"}, URI: "src", Wires: []types.Uri{"a"}},
			{ServiceType: types.ServiceType{Namespace: "builtin", Name: "sink"}, URI: "a", Wires: []types.Uri{"b"}},
			{ServiceType: types.ServiceType{Namespace: "builtin", Name: "sink"}, URI: "b", Wires: []types.Uri{"a", "snk"}},
			{ServiceType: types.ServiceType{Namespace: "builtin", Name: "sink"}, URI: "snk"},
		},
	}
	require.Error(t, Validate(g, sourceSinkRegistry()))
}

func TestValidateAcceptsAllowedCycle(t *testing.T) {
	g := types.Graph{
		Name: "cycle",
		Nodes: []types.Node{
			{ServiceType: types.ServiceType{Namespace: "builtin", Name: "source"}, URI: "src", Wires: []types.Uri{"a"}},
			{ServiceType: types.ServiceType{Namespace: "builtin", Name: "sink"}, URI: "a", Wires: []types.Uri{"b"}, AllowCycle: true},
			{ServiceType: types.ServiceType{Namespace: "builtin", Name: "sink"}, URI: "b", Wires: []types.Uri{"a", "snk"}, AllowCycle: true},
			{ServiceType: types.ServiceType{Namespace: "builtin", Name: "sink"}, URI: "snk"},
		},
	}
	require.NoError(t, Validate(g, sourceSinkRegistry()))
}

func TestValidateRejectsOrphanNode(t *testing.T) {
	g := linearGraph()
	g.Nodes = append(g.Nodes, types.Node{
		ServiceType: types.ServiceType{Namespace: "builtin", Name: "sink"},
		URI:         "orphan",
	})
	require.Error(t, Validate(g, sourceSinkRegistry()))
}

func TestRealizeBuildsChannelPerWire(t *testing.T) {
	g := linearGraph()
	reg := sourceSinkRegistry()
	require.NoError(t, Validate(g, reg))

	topo, err := Realize(g, reg)
	require.NoError(t, err)
	require.Len(t, topo.Nodes, 2)

	src := topo.Nodes["src"]
	snk := topo.Nodes["snk"]
	require.Len(t, src.Outbound, 1)
	require.Len(t, snk.Inbound, 1)
	require.Same(t, src.Outbound[0], snk.Inbound[0])

	require.Len(t, topo.Sources(), 1)
	require.Len(t, topo.Sinks(), 1)
}

func TestRealizeFailsOnUnknownServiceType(t *testing.T) {
	g := linearGraph()
	reg := registry.NewRegistry()
	_, err := Realize(g, reg)
	require.Error(t, err)
}
