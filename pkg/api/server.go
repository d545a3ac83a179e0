package api

import (
	"context"
	"fmt"
	"net/http"
)

// APIServer represents the REST API server
type APIServer struct {
	port   int
	server *http.Server
}

// NewAPIServer creates a new API server instance
func NewAPIServer(port int) *APIServer {
	return &APIServer{port: port}
}

// Routes returns the API routes.
func Routes() http.Handler {
	handler := NewAPIHandler()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/evaluate", handler.EvaluateHandler)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Start starts the REST API server
func (s *APIServer) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: Routes(),
	}

	log.WithField("port", s.port).Info("starting REST API server")
	return s.server.ListenAndServe()
}

// Stop stops the REST API server
func (s *APIServer) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
