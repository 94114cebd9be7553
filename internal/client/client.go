// Package client provides an HTTP client for the API.ai v1 REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wondertwin-ai/apiai-git/internal/resource"
)

// DefaultBaseURL is the public API.ai v1 endpoint.
const DefaultBaseURL = "https://api.api.ai/v1/"

// DefaultAPIVersion is the protocol version sent as the "v" query parameter.
const DefaultAPIVersion = "20150910"

// Config configures a Client.
type Config struct {
	BaseURL    string
	Token      string
	APIVersion string
	Timeout    time.Duration
	HTTPClient *http.Client // optional; overrides Timeout
	Logger     *slog.Logger
}

// Client talks to <base>/<kind> and <base>/<kind>/<id>.
type Client struct {
	http       *http.Client
	base       *url.URL
	token      string
	apiVersion string
	logger     *slog.Logger
}

// New validates cfg and creates a Client. The token is checked here, once,
// before any request can be made.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrMissingToken
	}

	raw := cfg.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(raw)
	if err == nil && (base.Scheme != "http" && base.Scheme != "https" || base.Host == "") {
		err = fmt.Errorf("expected an http(s) URL")
	}
	if err != nil {
		return nil, &TransportError{URL: raw, Err: err}
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	version := cfg.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		http:       hc,
		base:       base,
		token:      cfg.Token,
		apiVersion: version,
		logger:     logger,
	}, nil
}

// BaseURL returns the normalized service endpoint.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// List calls GET <base>/<kind> and returns the resource summaries.
func (c *Client) List(ctx context.Context, kind resource.Kind) ([]map[string]any, error) {
	var out []map[string]any
	if err := c.do(ctx, http.MethodGet, string(kind), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get calls GET <base>/<kind>/<id> and returns the full document.
func (c *Client) Get(ctx context.Context, kind resource.Kind, id string) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, string(kind)+"/"+id, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create calls POST <base>/<kind> and returns the id the service assigned.
func (c *Client) Create(ctx context.Context, kind resource.Kind, payload map[string]any) (string, error) {
	if _, ok := payload[resource.IDField]; ok {
		return "", fmt.Errorf("create %s: payload must not carry an id", kind.Singular())
	}
	var out map[string]any
	if err := c.do(ctx, http.MethodPost, string(kind), payload, &out); err != nil {
		return "", err
	}
	id, _ := out[resource.IDField].(string)
	return id, nil
}

// Update calls PUT <base>/<kind>/<id> with the full field mapping.
func (c *Client) Update(ctx context.Context, kind resource.Kind, id string, payload map[string]any) error {
	return c.do(ctx, http.MethodPut, string(kind)+"/"+id, payload, nil)
}

// Delete calls DELETE <base>/<kind>/<id>.
func (c *Client) Delete(ctx context.Context, kind resource.Kind, id string) error {
	return c.do(ctx, http.MethodDelete, string(kind)+"/"+id, nil, nil)
}

func (c *Client) endpoint(path string) string {
	u := c.base.ResolveReference(&url.URL{Path: path})
	q := u.Query()
	q.Set("v", c.apiVersion)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	target := c.endpoint(path)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &TransportError{Method: method, URL: target, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Method: method, URL: target, Err: fmt.Errorf("reading response: %w", err)}
	}

	c.logger.Debug("api.ai request",
		"method", method,
		"path", "/"+path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: method, URL: target, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if code, detail := bodyStatus(data); code >= 400 {
		return &StatusError{Method: method, URL: target, StatusCode: code, Body: detail}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// bodyStatus extracts the {"status": {"code": ..., "errorDetails": ...}}
// object API.ai attaches to write responses.
func bodyStatus(data []byte) (int, string) {
	var env struct {
		Status *struct {
			Code         int    `json:"code"`
			ErrorType    string `json:"errorType"`
			ErrorDetails string `json:"errorDetails"`
		} `json:"status"`
	}
	if json.Unmarshal(data, &env) != nil || env.Status == nil {
		return 0, ""
	}
	detail := env.Status.ErrorDetails
	if detail == "" {
		detail = env.Status.ErrorType
	}
	return env.Status.Code, detail
}
