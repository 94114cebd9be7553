// Package twintest starts the API.ai twin in tests and provides clients with
// assertion helpers for talking to it.
package twintest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wondertwin-ai/apiai-git/internal/twin/admin"
	"github.com/wondertwin-ai/apiai-git/internal/twin/api"
	"github.com/wondertwin-ai/apiai-git/internal/twin/store"
	"github.com/wondertwin-ai/apiai-git/internal/twin/twincore"
)

// Token is the developer token Start configures the twin to accept.
const Token = "apiai-dev-test-token"

// Twin is a running twin with direct access to its state.
type Twin struct {
	Server *httptest.Server
	Store  *store.MemoryStore
	MW     *twincore.Middleware
	Client *TwinClient
	Admin  *AdminClient
}

// BaseURL is the API.ai base URL of the twin, e.g. http://127.0.0.1:1234/v1/.
func (tw *Twin) BaseURL() string {
	return tw.Server.URL + "/v1/"
}

// Start runs the twin on an httptest server closed at test cleanup.
func Start(t *testing.T) *Twin {
	t.Helper()
	memStore := store.NewMemory()
	twin := twincore.New(&twincore.Config{Name: "twin-apiai-test", Token: Token, Output: io.Discard})

	api.NewHandler(memStore, twin.Middleware(), Token).Routes(twin.Router)
	admin.NewHandler(memStore, twin.Middleware()).Routes(twin.Router)

	srv := httptest.NewServer(twin.Router)
	t.Cleanup(srv.Close)

	tc := NewTwinClient(t, srv)
	return &Twin{
		Server: srv,
		Store:  memStore,
		MW:     twin.Middleware(),
		Client: tc,
		Admin:  NewAdminClient(tc),
	}
}

// Seed loads intents and entities keyed by id into the twin.
func (tw *Twin) Seed(t *testing.T, intents, entities map[string]map[string]any) {
	t.Helper()
	if intents == nil {
		intents = map[string]map[string]any{}
	}
	if entities == nil {
		entities = map[string]map[string]any{}
	}
	tw.Admin.LoadState(map[string]any{"intents": intents, "entities": entities}).AssertStatus(http.StatusOK)
}

// Writes counts the POST, PUT and DELETE requests the API routes received.
func (tw *Twin) Writes() int {
	n := 0
	for _, e := range tw.MW.ReqLog.Entries() {
		if strings.HasPrefix(e.Path, "/v1/") && e.Method != http.MethodGet {
			n++
		}
	}
	return n
}

// TwinClient is an HTTP client for interacting with the twin in tests.
type TwinClient struct {
	BaseURL    string
	HTTPClient *http.Client
	Headers    map[string]string // sent with every request
	t          *testing.T
}

// NewTwinClient creates a client pointed at a test server.
func NewTwinClient(t *testing.T, server *httptest.Server) *TwinClient {
	return &TwinClient{
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		t:          t,
	}
}

// Authorized returns a copy of the client that sends the bearer token.
func (c *TwinClient) Authorized(token string) *TwinClient {
	cp := *c
	cp.Headers = map[string]string{"Authorization": "Bearer " + token}
	return &cp
}

// Response wraps an HTTP response with helper methods.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
	t          *testing.T
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) {
	r.t.Helper()
	if err := json.Unmarshal(r.Body, v); err != nil {
		r.t.Fatalf("failed to unmarshal response: %v\nbody: %s", err, string(r.Body))
	}
}

// JSONMap returns the response body as a map.
func (r *Response) JSONMap() map[string]any {
	r.t.Helper()
	var m map[string]any
	r.JSON(&m)
	return m
}

// AssertStatus asserts the response has the expected status code.
func (r *Response) AssertStatus(expected int) *Response {
	r.t.Helper()
	if r.StatusCode != expected {
		r.t.Errorf("expected status %d, got %d\nbody: %s", expected, r.StatusCode, string(r.Body))
	}
	return r
}

// AssertBodyContains asserts the response body contains the given substring.
func (r *Response) AssertBodyContains(substr string) *Response {
	r.t.Helper()
	if !strings.Contains(string(r.Body), substr) {
		r.t.Errorf("expected body to contain %q, got: %s", substr, string(r.Body))
	}
	return r
}

// Get performs a GET request.
func (c *TwinClient) Get(path string) *Response {
	c.t.Helper()
	return c.Do(http.MethodGet, path, nil)
}

// Post performs a POST request with a JSON body.
func (c *TwinClient) Post(path string, body any) *Response {
	c.t.Helper()
	return c.Do(http.MethodPost, path, body)
}

// Put performs a PUT request with a JSON body.
func (c *TwinClient) Put(path string, body any) *Response {
	c.t.Helper()
	return c.Do(http.MethodPut, path, body)
}

// Delete performs a DELETE request.
func (c *TwinClient) Delete(path string) *Response {
	c.t.Helper()
	return c.Do(http.MethodDelete, path, nil)
}

// Do performs a request with an optional JSON body.
func (c *TwinClient) Do(method, path string, body any) *Response {
	c.t.Helper()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("failed to marshal body: %v", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		c.t.Fatalf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatalf("failed to read response: %v", err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Headers:    resp.Header,
		t:          c.t,
	}
}

// AdminClient provides convenience methods for the /admin/* control plane.
type AdminClient struct {
	*TwinClient
}

// NewAdminClient creates an admin client from a twin client.
func NewAdminClient(tc *TwinClient) *AdminClient {
	return &AdminClient{tc}
}

// Reset calls POST /admin/reset.
func (ac *AdminClient) Reset() *Response {
	ac.t.Helper()
	return ac.Post("/admin/reset", nil)
}

// GetState calls GET /admin/state.
func (ac *AdminClient) GetState() *Response {
	ac.t.Helper()
	return ac.Get("/admin/state")
}

// LoadState calls POST /admin/state with the given state data.
func (ac *AdminClient) LoadState(state any) *Response {
	ac.t.Helper()
	return ac.Post("/admin/state", state)
}

// InjectFault calls POST /admin/fault/{path}.
func (ac *AdminClient) InjectFault(path string, fault twincore.FaultConfig) *Response {
	ac.t.Helper()
	return ac.Post("/admin/fault/"+strings.TrimPrefix(path, "/"), fault)
}

// RemoveFault calls DELETE /admin/fault/{path}.
func (ac *AdminClient) RemoveFault(path string) *Response {
	ac.t.Helper()
	return ac.Delete("/admin/fault/" + strings.TrimPrefix(path, "/"))
}

// GetRequests calls GET /admin/requests.
func (ac *AdminClient) GetRequests() []twincore.RequestLogEntry {
	ac.t.Helper()
	var out []twincore.RequestLogEntry
	ac.Get("/admin/requests").AssertStatus(http.StatusOK).JSON(&out)
	return out
}

// Health calls GET /admin/health.
func (ac *AdminClient) Health() *Response {
	ac.t.Helper()
	return ac.Get("/admin/health")
}
