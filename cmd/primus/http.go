package main

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/primus-go/internal/connection"
)

// newHTTPHandler serves Prometheus metrics and a health endpoint.
func newHTTPHandler(conn *connection.Conn, reg *prometheus.Registry, metricsPath string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status: "healthy",
			Components: map[string]any{
				"connection": map[string]any{
					"target":      conn.Target(),
					"ready_state": conn.ReadyState().String(),
					"online":      conn.Online(),
					"buffered":    conn.Buffered(),
				},
			},
		}

		switch {
		case !conn.Online():
			health.Status = "unhealthy"
		case conn.ReadyState() != connection.Open:
			health.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
