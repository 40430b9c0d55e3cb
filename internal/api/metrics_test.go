package api

import (
	"net/http"
	"strings"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/pointnormals/internal/testutil"
)

func TestMetrics_EstimateCounters(t *testing.T) {
	s, _ := newTestServer(t, false)
	h, err := Handler(s, nil)
	if err != nil {
		t.Fatal(err)
	}

	okPoints := estimatedPointsTotal.WithLabelValues("ok")
	okReqs := estimateRequestsTotal.WithLabelValues("pwn", "200")
	badReqs := estimateRequestsTotal.WithLabelValues("unknown", "400")
	beforePoints := promtestutil.ToFloat64(okPoints)
	beforeOK := promtestutil.ToFloat64(okReqs)
	beforeBad := promtestutil.ToFloat64(badReqs)

	rec := postEstimate(t, h, "", planarPWN(t, 40))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	rec = postEstimate(t, h, "?format=ply", []byte("1\n0 0 0\n"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	assert.Equal(t, beforePoints+40, promtestutil.ToFloat64(okPoints))
	assert.Equal(t, beforeOK+1, promtestutil.ToFloat64(okReqs))
	assert.Equal(t, beforeBad+1, promtestutil.ToFloat64(badReqs))

	req := testutil.NewTestRequest(http.MethodGet, "/metrics", nil)
	rec = testutil.NewTestRecorder()
	h.ServeHTTP(rec, req)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "normals_estimate_duration_seconds"))
	assert.True(t, strings.Contains(body, "normals_points_total"))
}

func TestFormatLabelValue(t *testing.T) {
	assert.Equal(t, "pwn", formatLabelValue(""))
	assert.Equal(t, "obj", formatLabelValue(".OBJ"))
	assert.Equal(t, "unknown", formatLabelValue("ply"))
}
