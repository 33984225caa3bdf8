package codec

import (
	"testing"

	"github.com/defvar/toy/pkg/types"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string   `json:"name" yaml:"name"`
	Nodes []string `json:"nodes" yaml:"nodes"`
}

// TestRoundTripAllCodecs is the round-trip law from the testable
// properties: encode then decode under any of the three codecs yields
// the original value.
func TestRoundTripAllCodecs(t *testing.T) {
	in := sample{Name: "g1", Nodes: []string{"a", "b"}}

	for _, c := range []Codec{JSON, YAML, Msgpack} {
		data, err := c.Encode(in)
		require.NoError(t, err)

		var out sample
		require.NoError(t, c.Decode(data, &out))
		require.Equal(t, in, out)
	}
}

// TestRoundTripGraphAllCodecs exercises the round-trip law against the
// actual wire type the API and worker servers exchange, not a
// synthetic stand-in: a Graph with a raw JSON Config blob and nested
// Node/Wires values, under each of the three codecs.
func TestRoundTripGraphAllCodecs(t *testing.T) {
	in := types.Graph{
		Name: "pipeline",
		Nodes: []types.Node{
			{
				ServiceType: types.ServiceType{Namespace: "builtin", Name: "source"},
				URI:         "A",
				Port:        types.PortSource,
				Config:      []byte(`{"frames":["1","2"]}`),
				Wires:       []types.Uri{"B", "C"},
			},
			{
				ServiceType: types.ServiceType{Namespace: "builtin", Name: "sink"},
				URI:         "B",
				Port:        types.PortSink,
				AllowCycle:  true,
			},
		},
	}

	for _, c := range []Codec{JSON, YAML, Msgpack} {
		data, err := c.Encode(in)
		require.NoError(t, err)

		var out types.Graph
		require.NoError(t, c.Decode(data, &out))
		require.Equal(t, in, out)
	}
}

func TestByNameDefaultsToMsgpack(t *testing.T) {
	require.Equal(t, Msgpack, ByName("unknown"))
	require.Equal(t, Msgpack, ByName(""))
	require.Equal(t, JSON, ByName("json"))
	require.Equal(t, YAML, ByName("yaml"))
}

func TestCrossCodecEquivalence(t *testing.T) {
	in := sample{Name: "g1", Nodes: []string{"a", "b"}}

	yamlData, err := YAML.Encode(in)
	require.NoError(t, err)
	var viaYAML sample
	require.NoError(t, YAML.Decode(yamlData, &viaYAML))

	jsonData, err := JSON.Encode(viaYAML)
	require.NoError(t, err)
	var viaJSON sample
	require.NoError(t, JSON.Decode(jsonData, &viaJSON))

	msgpackData, err := Msgpack.Encode(viaJSON)
	require.NoError(t, err)
	var viaMsgpack sample
	require.NoError(t, Msgpack.Decode(msgpackData, &viaMsgpack))

	require.Equal(t, in, viaMsgpack)
}
