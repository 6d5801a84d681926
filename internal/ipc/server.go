package ipc

import (
	"context"
	"net"
	"net/http"
)

// Server wraps an HTTP server with move-supervisor routing.
type Server struct {
	httpServer *http.Server
}

// NewServer creates a Server that binds to the given address.
func NewServer(h *Handler, listenAddr string) *Server {
	mux := http.NewServeMux()

	// Health endpoint.
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/tiers", h.ListTiers)

	// Move endpoints.
	mux.HandleFunc("POST /api/v1/move", h.Move)
	mux.HandleFunc("GET /api/v1/move/ws", h.MoveWS)

	// Decision ledger.
	mux.HandleFunc("GET /api/v1/decisions", h.ListDecisions)
	mux.HandleFunc("GET /api/v1/decisions/stream", h.StreamDecisions)
	mux.HandleFunc("GET /api/v1/decisions/{id}", h.GetDecision)
	mux.HandleFunc("GET /api/v1/decisions/{id}/attempts", h.ListAttempts)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)

	srv := &http.Server{
		Addr:    listenAddr,
		Handler: corsMiddleware(mux),
	}

	return &Server{
		httpServer: srv,
	}
}

// Start begins listening for HTTP connections. Blocks until the server stops.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server. Open websockets are hijacked and are
// not tracked by Shutdown; their pending decisions still finish.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for browser table clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// FormatListenURL turns a listen address such as ":9800" into a URL a local
// client can open.
func FormatListenURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}
