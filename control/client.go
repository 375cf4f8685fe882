package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ardnew/tracepoint/tracepoint"
)

// Client calls the control API of a remote process.
type Client struct {
	base string
	hc   *http.Client
}

// NewClient returns a client for the server at base, for example
// "http://localhost:6070". A nil hc uses [http.DefaultClient].
func NewClient(base string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}

	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	return &Client{base: strings.TrimRight(base, "/"), hc: hc}
}

// List returns the tracepoints matching fs.
func (c *Client) List(ctx context.Context, fs tracepoint.FilterSpec) ([]Tracepoint, error) {
	q := url.Values{}

	for k, v := range map[string]string{
		"module": fs.Module,
		"name":   fs.Name,
		"func":   fs.Func,
		"file":   fs.File,
		"where":  fs.Where,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}

	var out []Tracepoint

	err := c.do(ctx, http.MethodGet, "/tracepoints?"+q.Encode(), nil, &out)

	return out, err
}

// Modules returns the registered module paths.
func (c *Client) Modules(ctx context.Context) ([]string, error) {
	var out []string

	err := c.do(ctx, http.MethodGet, "/modules", nil, &out)

	return out, err
}

// Enable sets the state of the tracepoints matching fs.
func (c *Client) Enable(ctx context.Context, fs tracepoint.FilterSpec, on bool) (int, error) {
	var out ToggleResponse

	err := c.do(ctx, http.MethodPost, "/tracepoints/enable",
		ToggleRequest{Filter: fs, Enable: on}, &out)

	return out.Matched, err
}

// Configure sets the state of the tracepoints matching fs and rebuilds the
// affected units.
func (c *Client) Configure(
	ctx context.Context,
	fs tracepoint.FilterSpec,
	on bool,
) (ConfigureResponse, error) {
	var out ConfigureResponse

	err := c.do(ctx, http.MethodPost, "/tracepoints/configure",
		ToggleRequest{Filter: fs, Enable: on}, &out)

	return out, err
}

// Message sends a message to the remote sink.
func (c *Client) Message(ctx context.Context, req MessageRequest) error {
	return c.do(ctx, http.MethodPost, "/messages", req, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader

	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}

		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			return fmt.Errorf("%s %s: %s", method, path, resp.Status)
		}

		return fmt.Errorf("%s %s: %s", method, path, e.Error)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
