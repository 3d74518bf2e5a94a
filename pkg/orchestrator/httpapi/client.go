// Package httpapi talks to the session store and the compute service over HTTP with JSON bodies.
package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/askiada/molsim/pkg/orchestrator"
	"github.com/askiada/molsim/pkg/wire"
)

// maxErrorBody bounds how much of a failed answer is read.
const maxErrorBody = 64 << 10

// StatusError is a non 2xx answer.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	// Message is the error field of the JSON body, or the raw body when it is not JSON.
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// Config holds the address of the remote services.
type Config struct {
	// BaseURL is the root of the API, such as http://localhost:8080/v1.
	BaseURL string
	// Timeout bounds every call. Zero means no timeout.
	Timeout time.Duration
}

// Client implements orchestrator.SessionStore, orchestrator.ComputeService and orchestrator.ArtifactFetcher.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// Option configures a Client.
type Option func(c *Client)

// WithHTTPClient replaces the underlying http client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New returns a client for cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, errors.Wrapf(err, "invalid api url %q", cfg.BaseURL)
	}

	c := &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}

	return c.baseURL + "/" + strings.Join(escaped, "/")
}

// do sends body as JSON to target and decodes the answer into out when it is not nil.
func (c *Client) do(ctx context.Context, method, target string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "unable to encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return errors.Wrap(err, "unable to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, target)
	}
	defer resp.Body.Close()

	c.logger.Debug().Str("method", method).Str("url", target).Int("status", resp.StatusCode).Msg("api call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(method, target, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)

		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "unable to read response")
	}

	if err := sonic.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "unable to decode response of %s %s", method, target)
	}

	return nil
}

func statusError(method, target string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	msg := strings.TrimSpace(string(data))
	var body wire.ErrorBody
	if err := sonic.Unmarshal(data, &body); err == nil && body.Error != "" {
		msg = body.Error
	}

	return &StatusError{Method: method, URL: target, StatusCode: resp.StatusCode, Message: msg}
}

// Start calls POST /session/start/{appId}.
func (c *Client) Start(ctx context.Context, appID, email string) (string, error) {
	var resp wire.StartResponse
	if err := c.do(ctx, http.MethodPost, c.endpoint("session", "start", appID), wire.StartRequest{Email: email}, &resp); err != nil {
		return "", err
	}

	if resp.SessionID == "" {
		return "", errors.New("session start answered without session id")
	}

	return resp.SessionID, nil
}

// Get calls GET /session/{id}.
func (c *Client) Get(ctx context.Context, sessionID string) (wire.Snapshot, error) {
	var snap wire.Snapshot
	if err := c.do(ctx, http.MethodGet, c.endpoint("session", sessionID), nil, &snap); err != nil {
		return wire.Snapshot{}, err
	}

	return snap, nil
}

// Upsert calls POST /session/outputs/{id}.
func (c *Client) Upsert(ctx context.Context, sessionID string, outputs wire.Outputs) error {
	return c.do(ctx, http.MethodPost, c.endpoint("session", "outputs", sessionID), outputs, nil)
}

// Submit calls POST /ccc/run/{runId}/{widgetId}.
func (c *Client) Submit(ctx context.Context, runID, widgetID string, req wire.JobRequest) (wire.JobResponse, error) {
	var resp wire.JobResponse
	if err := c.do(ctx, http.MethodPost, c.endpoint("ccc", "run", runID, widgetID), req, &resp); err != nil {
		return wire.JobResponse{}, err
	}

	return resp, nil
}

// Cancel calls POST /run/cancel.
func (c *Client) Cancel(ctx context.Context, runID string) error {
	return c.do(ctx, http.MethodPost, c.endpoint("run", "cancel"), wire.CancelRequest{RunID: runID}, nil)
}

// Fetch downloads the content at target. Relative urls are resolved against the base url.
func (c *Client) Fetch(ctx context.Context, target string) ([]byte, error) {
	u, err := c.resolve(target)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s", u)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(http.MethodGet, u, resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read %s", u)
	}

	return data, nil
}

func (c *Client) resolve(target string) (string, error) {
	ref, err := url.Parse(target)
	if err != nil {
		return "", errors.Wrapf(err, "invalid artifact url %q", target)
	}
	if ref.IsAbs() {
		return target, nil
	}

	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", errors.Wrapf(err, "invalid api url %q", c.baseURL)
	}

	return base.ResolveReference(ref).String(), nil
}

var (
	_ orchestrator.SessionStore    = (*Client)(nil)
	_ orchestrator.ComputeService  = (*Client)(nil)
	_ orchestrator.ArtifactFetcher = (*Client)(nil)
)
