package api

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/banshee-data/pointnormals/internal/normals"
)

const (
	statusLabel = "status"
	formatLabel = "format"
)

var (
	estimateRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "normals_estimate_requests_total",
		Help: "Estimate requests by input format and HTTP status.",
	}, []string{formatLabel, statusLabel})

	estimatedPointsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "normals_points_total",
		Help: "Points processed by fit outcome.",
	}, []string{statusLabel})

	estimateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "normals_estimate_duration_seconds",
		Help:    "Wall time of estimation passes.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})
)

func instrumentEstimateRequest(format string, status int) {
	estimateRequestsTotal.
		With(prometheus.Labels{formatLabel: format, statusLabel: strconv.Itoa(status)}).
		Inc()
}

func instrumentEstimation(res *normals.Result) {
	estimatedPointsTotal.With(prometheus.Labels{statusLabel: normals.StatusOK.String()}).Add(float64(res.Counts.OK))
	estimatedPointsTotal.With(prometheus.Labels{statusLabel: normals.StatusInsufficient.String()}).Add(float64(res.Counts.Insufficient))
	estimatedPointsTotal.With(prometheus.Labels{statusLabel: normals.StatusDegenerate.String()}).Add(float64(res.Counts.Degenerate))
	estimateDuration.Observe(res.Duration.Seconds())
}
