package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/defvar/toy/pkg/codec"
	"github.com/defvar/toy/pkg/metrics"
	"github.com/defvar/toy/pkg/registry"
	"github.com/defvar/toy/pkg/storage"
	"github.com/defvar/toy/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reg := registry.NewRegistry()
	return New(store, reg, metrics.NewRegistry())
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path+"?format=json", rdr)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

// doFormat is doJSON generalized to an arbitrary wire format, for
// exercising content negotiation: callers encode the request body with
// their own codec and pass the format name the server should use for
// both interpreting it and encoding the response.
func doFormat(t *testing.T, s *Server, method, path, format string, c codec.Codec, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		data, err := c.Encode(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path+"?format="+format, rdr)
	req.Header.Set("Content-Type", c.ContentType())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

// TestGraphCrossFormatRoundTrip PUTs a graph encoded as YAML and reads
// it back encoded as msgpack, exercising the same Graph across two
// different wire formats in one round trip rather than just JSON.
func TestGraphCrossFormatRoundTrip(t *testing.T) {
	s := newTestServer(t)

	g := types.Graph{
		Name: "cross-format",
		Nodes: []types.Node{
			{
				ServiceType: types.ServiceType{Namespace: "builtin", Name: "source"},
				URI:         "a",
				Config:      []byte(`{"frames":["1"]}`),
				Wires:       []types.Uri{"b"},
			},
			{ServiceType: types.ServiceType{Namespace: "builtin", Name: "sink"}, URI: "b"},
		},
	}

	rec := doFormat(t, s, http.MethodPut, "/graphs/cross-format", "yaml", codec.YAML, g)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, codec.YAML.ContentType(), rec.Header().Get("Content-Type"))

	rec = doFormat(t, s, http.MethodGet, "/graphs/cross-format", "msgpack", codec.Msgpack, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, codec.Msgpack.ContentType(), rec.Header().Get("Content-Type"))

	var got types.Graph
	require.NoError(t, codec.Msgpack.Decode(rec.Body.Bytes(), &got))
	require.Equal(t, "cross-format", got.Name)
	require.Equal(t, g.Nodes, got.Nodes)
}

func TestGraphPutGetDeleteRoundTrip(t *testing.T) {
	s := newTestServer(t)

	g := types.Graph{Nodes: []types.Node{{ServiceType: types.ServiceType{Namespace: "builtin", Name: "source"}, URI: "a"}}}
	rec := doJSON(t, s, http.MethodPut, "/graphs/pipeline-a", g)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/graphs/pipeline-a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got types.Graph
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "pipeline-a", got.Name)

	rec = doJSON(t, s, http.MethodDelete, "/graphs/pipeline-a", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/graphs/pipeline-a", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGraphGetMissingReturnsNotFound(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/graphs/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.EqualValues(t, http.StatusNotFound, body["code"])
}

func TestSupervisorPutRegistersThenHeartbeats(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPut, "/supervisors/worker-1", types.Worker{Addr: "127.0.0.1:9000"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodPut, "/supervisors/worker-1", types.Worker{Addr: "127.0.0.1:9000"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/supervisors/worker-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got types.Worker
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, types.WorkerReady, got.Status)
}

func TestTaskSubmitThenAllocateThenConflict(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/tasks", types.Graph{Nodes: []types.Node{{URI: "a"}}})
	require.Equal(t, http.StatusCreated, rec.Code)
	var submitted PendingResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	require.NotEmpty(t, submitted.TaskID)

	rec = doJSON(t, s, http.MethodPost, "/tasks/"+submitted.TaskID+"/allocate", map[string]string{"worker": "worker-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/tasks/"+submitted.TaskID+"/allocate", map[string]string{"worker": "worker-2"})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRoleBindingCRUD(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPut, "/roleBindings/binding-1", types.RoleBinding{Role: "admin", Subjects: []string{"alice"}})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/roleBindings/binding-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodDelete, "/roleBindings/binding-1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, s, http.MethodDelete, "/roleBindings/binding-1", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListServicesReflectsRegistry(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	reg := registry.NewRegistry()
	st := types.ServiceType{Namespace: "builtin", Name: "source"}
	reg.Register(st, nil)
	s := New(store, reg, metrics.NewRegistry())

	rec := doJSON(t, s, http.MethodGet, "/services", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got []types.ServiceType
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Contains(t, got, st)
}
