package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the full HTTP handler stack.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api", s.handleAPI)
	mux.HandleFunc("/api/instances/{name}", s.handleInstanceAPI)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	rl := newRateLimitMiddleware(s.limiter)
	return requireGET(rl(noCacheMiddleware(securityHeadersMiddleware(mux))))
}
