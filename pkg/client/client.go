// Package client wraps the orchestrator's HTTP API for CLI usage: one
// method per API operation, each sending its request under the caller's
// context and the HTTP client's fixed timeout, mirroring the teacher's one-call-per-RPC client shape.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/defvar/toy/pkg/apierr"
	"github.com/defvar/toy/pkg/codec"
	"github.com/defvar/toy/pkg/types"
)

const defaultTimeout = 10 * time.Second

// Client is a thin net/http wrapper over the API server's content
// negotiated REST surface.
type Client struct {
	baseURL string
	http    *http.Client
	codec   codec.Codec
}

// NewClient builds a Client targeting baseURL (e.g. "http://127.0.0.1:8080").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		codec:   codec.JSON,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := c.codec.Encode(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?format=json", reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", c.codec.ContentType())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apierr.New(apierr.Transport, fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierr.New(apierr.Transport, "read response body", err)
	}

	if resp.StatusCode >= 300 {
		var body apierr.Body
		if err := json.Unmarshal(data, &body); err != nil {
			return fmt.Errorf("request %s %s failed with status %d", method, path, resp.StatusCode)
		}
		return fmt.Errorf("request %s %s failed: %s", method, path, body.Message)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return c.codec.Decode(data, out)
}

// --- graphs ---

func (c *Client) ListGraphs(ctx context.Context) ([]types.Graph, error) {
	var out []types.Graph
	err := c.do(ctx, http.MethodGet, "/graphs", nil, &out)
	return out, err
}

func (c *Client) GetGraph(ctx context.Context, name string) (types.Graph, error) {
	var out types.Graph
	err := c.do(ctx, http.MethodGet, "/graphs/"+name, nil, &out)
	return out, err
}

func (c *Client) PutGraph(ctx context.Context, name string, g types.Graph) error {
	return c.do(ctx, http.MethodPut, "/graphs/"+name, g, nil)
}

func (c *Client) DeleteGraph(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/graphs/"+name, nil, nil)
}

// --- supervisors / actors ---

func (c *Client) ListSupervisors(ctx context.Context) ([]types.Worker, error) {
	var out []types.Worker
	err := c.do(ctx, http.MethodGet, "/supervisors", nil, &out)
	return out, err
}

func (c *Client) GetSupervisor(ctx context.Context, name string) (types.Worker, error) {
	var out types.Worker
	err := c.do(ctx, http.MethodGet, "/supervisors/"+name, nil, &out)
	return out, err
}

func (c *Client) RegisterSupervisor(ctx context.Context, name string, w types.Worker) error {
	return c.do(ctx, http.MethodPut, "/supervisors/"+name, w, nil)
}

func (c *Client) ListActors(ctx context.Context) ([]types.Worker, error) {
	var out []types.Worker
	err := c.do(ctx, http.MethodGet, "/actors", nil, &out)
	return out, err
}

func (c *Client) GetActor(ctx context.Context, name string) (types.Worker, error) {
	var out types.Worker
	err := c.do(ctx, http.MethodGet, "/actors/"+name, nil, &out)
	return out, err
}

func (c *Client) RegisterActor(ctx context.Context, name string, w types.Worker) error {
	return c.do(ctx, http.MethodPut, "/actors/"+name, w, nil)
}

// --- tasks ---

// SubmitResult mirrors pkg/api.PendingResult without importing the api
// package (the client only speaks wire shapes).
type SubmitResult struct {
	TaskID string `json:"task_id" yaml:"task_id"`
}

func (c *Client) ListTasks(ctx context.Context) ([]types.PendingTask, error) {
	var out []types.PendingTask
	err := c.do(ctx, http.MethodGet, "/tasks", nil, &out)
	return out, err
}

func (c *Client) SubmitTask(ctx context.Context, g types.Graph) (types.TaskID, error) {
	var out SubmitResult
	if err := c.do(ctx, http.MethodPost, "/tasks", g, &out); err != nil {
		return types.TaskID{}, err
	}
	return types.ParseTaskID(out.TaskID)
}

func (c *Client) TaskLog(ctx context.Context, taskID types.TaskID) ([]map[string]any, error) {
	var out []map[string]any
	err := c.do(ctx, http.MethodGet, "/tasks/"+taskID.String()+"/log", nil, &out)
	return out, err
}

func (c *Client) AllocateTask(ctx context.Context, taskID types.TaskID, worker string) error {
	return c.do(ctx, http.MethodPost, "/tasks/"+taskID.String()+"/allocate", map[string]string{"worker": worker}, nil)
}

// --- roles / roleBindings ---

func (c *Client) GetRole(ctx context.Context, name string) (types.Role, error) {
	var out types.Role
	err := c.do(ctx, http.MethodGet, "/roles/"+name, nil, &out)
	return out, err
}

func (c *Client) PutRole(ctx context.Context, name string, role types.Role) error {
	return c.do(ctx, http.MethodPut, "/roles/"+name, role, nil)
}

func (c *Client) DeleteRole(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/roles/"+name, nil, nil)
}

func (c *Client) GetRoleBinding(ctx context.Context, name string) (types.RoleBinding, error) {
	var out types.RoleBinding
	err := c.do(ctx, http.MethodGet, "/roleBindings/"+name, nil, &out)
	return out, err
}

func (c *Client) PutRoleBinding(ctx context.Context, name string, rb types.RoleBinding) error {
	return c.do(ctx, http.MethodPut, "/roleBindings/"+name, rb, nil)
}

func (c *Client) DeleteRoleBinding(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/roleBindings/"+name, nil, nil)
}

// --- services ---

func (c *Client) ListServices(ctx context.Context) ([]types.ServiceType, error) {
	var out []types.ServiceType
	err := c.do(ctx, http.MethodGet, "/services", nil, &out)
	return out, err
}
