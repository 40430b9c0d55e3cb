package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/pointnormals/internal/cloudio"
	"github.com/banshee-data/pointnormals/internal/httputil"
	"github.com/banshee-data/pointnormals/internal/store/sqlite"
)

// Client talks to a remote normals server.
type Client struct {
	baseURL string
	http    httputil.HTTPClient
}

// NewClient returns a client for the server at baseURL. A nil hc uses
// http.DefaultClient.
func NewClient(baseURL string, hc httputil.HTTPClient) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// StatusError is returned for a non-2xx reply.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Estimate uploads the cloud's points and stores the returned normals in
// cloud.Normals.
func (c *Client) Estimate(ctx context.Context, cloud *cloudio.Cloud, source string) (*EstimateResponse, error) {
	body := cloudio.MarshalPNB(&cloudio.Cloud{Points: cloud.Points})
	q := url.Values{"format": {cloudio.FormatPNB.String()}}
	if source != "" {
		q.Set("source", source)
	}
	var resp EstimateResponse
	if err := c.do(ctx, http.MethodPost, "/api/estimate?"+q.Encode(), bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}
	if len(resp.Normals) != cloud.Len() {
		return nil, fmt.Errorf("server returned %d normals for %d points", len(resp.Normals), cloud.Len())
	}

	cloud.Normals = make([]r3.Vector, len(resp.Normals))
	for i, n := range resp.Normals {
		cloud.Normals[i] = r3.Vector{X: n[0], Y: n[1], Z: n[2]}
	}
	return &resp, nil
}

// ListRuns returns up to limit recorded runs, newest first.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]*sqlite.EstimationRun, error) {
	var runs []*sqlite.EstimationRun
	err := c.do(ctx, http.MethodGet, "/api/runs?limit="+strconv.Itoa(limit), nil, &runs)
	return runs, err
}

// GetRun fetches one run by id.
func (c *Client) GetRun(ctx context.Context, id string) (*sqlite.EstimationRun, error) {
	var run sqlite.EstimationRun
	if err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(id), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", cloudio.FormatPNB.ContentType())
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Message: httputil.DecodeErrorBody(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
