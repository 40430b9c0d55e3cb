package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/pointnormals/internal/store/sqlite"
)

// Handler assembles the full server: the API routes, Prometheus metrics,
// the debug and admin routes over db when it is non-nil, and request logging.
func Handler(s *Server, db *sqlite.DB) (http.Handler, error) {
	mux := s.ServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if db != nil {
		if err := db.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return LoggingMiddleware(mux), nil
}
