package server

import (
	_ "embed"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

//go:embed web/dashboard.html
var dashboardHTML []byte

// NewRouter registers the dashboard, the API and the websocket stream.
// Everything under /api except login, and /ws, requires the session cookie.
func NewRouter(api *APIHandler, hub *Hub, version string, logger zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	gate := api.gate

	// Serve dashboard
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		logger.Debug().Str("path", r.URL.Path).Msg("Serving dashboard")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(dashboardHTML)
	})

	mux.HandleFunc("POST /api/login", api.HandleLogin)

	// API endpoints
	mux.HandleFunc("GET /api/subjects", gate.Require(api.HandleSubjects))
	mux.HandleFunc("POST /api/subject", gate.Require(api.HandleSelectSubject))
	mux.HandleFunc("GET /api/current", gate.Require(api.HandleCurrent))
	mux.HandleFunc("GET /api/series", gate.Require(api.HandleSeries))
	mux.HandleFunc("GET /api/log", gate.Require(api.HandleLog))
	mux.HandleFunc("GET /api/export.csv", gate.Require(api.HandleExportCSV))
	mux.HandleFunc("GET /api/export.xlsx", gate.Require(api.HandleExportXLSX))
	mux.HandleFunc("GET /api/snapshot", gate.Require(api.HandleSnapshot))

	mux.Handle("GET /ws", hub)

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","version":"%s"}`, version)
	})

	return mux
}
