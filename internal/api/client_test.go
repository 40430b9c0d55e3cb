package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pointnormals/internal/cloudio"
	"github.com/banshee-data/pointnormals/internal/httputil"
	"github.com/banshee-data/pointnormals/internal/testutil"
)

func TestClient_EstimateRoundTrip(t *testing.T) {
	s, _ := newTestServer(t, true)
	ts := httptest.NewServer(s.ServeMux())
	defer ts.Close()

	c := NewClient(ts.URL+"/", ts.Client())
	cloud := &cloudio.Cloud{Points: testutil.SphereCloud(400, r3.Vector{X: 2}, 1)}
	resp, err := c.Estimate(context.Background(), cloud, "sphere")
	require.NoError(t, err)
	require.True(t, cloud.HasNormals())
	require.Len(t, cloud.Normals, 400)
	assert.Equal(t, 400, resp.Counts.OK)
	for i, p := range cloud.Points {
		testutil.AssertLineAngle(t, cloud.Normals[i], p.Sub(r3.Vector{X: 2}), 10)
	}

	runs, err := c.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, resp.RunID, runs[0].RunID)
	assert.Equal(t, "sphere", runs[0].Source)

	run, err := c.GetRun(context.Background(), resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, 400, run.PointCount)

	_, err = c.GetRun(context.Background(), "missing")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestClient_RequestShape(t *testing.T) {
	m := httputil.NewMockHTTPClient().
		AddResponse(http.StatusOK, `{"point_count":2,"counts":{"ok":0,"insufficient":2,"degenerate":0},"normals":[[0,0,0],[0,0,0]]}`)
	c := NewClient("http://normals.local", m)

	cloud := &cloudio.Cloud{Points: []r3.Vector{{X: 1}, {Y: 1}}}
	resp, err := c.Estimate(context.Background(), cloud, "")
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Counts.Insufficient)

	req := m.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/api/estimate", req.URL.Path)
	assert.Equal(t, "pnb", req.URL.Query().Get("format"))
	assert.False(t, req.URL.Query().Has("source"))

	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	sent, err := cloudio.UnmarshalPNB(body)
	require.NoError(t, err)
	assert.Equal(t, cloud.Points, sent.Points)
	assert.False(t, sent.HasNormals())
}

func TestClient_Errors(t *testing.T) {
	ctx := context.Background()
	cloud := &cloudio.Cloud{Points: []r3.Vector{{X: 1}}}

	m := httputil.NewMockHTTPClient().
		AddResponse(http.StatusBadRequest, `{"error":"estimate: empty input"}`).
		AddErrorResponse(errors.New("connection refused")).
		AddResponse(http.StatusOK, `not json`).
		AddResponse(http.StatusOK, `{"normals":[]}`)
	c := NewClient("http://normals.local", m)

	_, err := c.Estimate(ctx, cloud, "")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, "estimate: empty input", se.Message)

	_, err = c.Estimate(ctx, cloud, "")
	assert.ErrorContains(t, err, "connection refused")

	_, err = c.Estimate(ctx, cloud, "")
	assert.ErrorContains(t, err, "failed to decode response")

	_, err = c.Estimate(ctx, cloud, "")
	assert.ErrorContains(t, err, "0 normals for 1 points")
	assert.False(t, cloud.HasNormals())
}
