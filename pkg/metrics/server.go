package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// NewMux serves the scrape endpoint at /metrics and a liveness probe at
// /healthz, so the metrics port can be probed without touching the API.
func NewMux(component string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "%s metrics\n\n/metrics  prometheus scrape\n/healthz  liveness\n", component)
	})
	return mux
}

// StartServer serves NewMux(component) on port in the background and
// returns its shutdown function.
func StartServer(component string, port int) (shutdown func(context.Context) error) {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewMux(component),
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	go func() {
		slog.Info("metrics server listening", "component", component, "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "component", component, "error", err)
		}
	}()

	return server.Shutdown
}
