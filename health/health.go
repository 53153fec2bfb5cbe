// Package health serves liveness, readiness and expvar endpoints for the
// mail queue process.
package health

import (
	"context"
	"errors"
	"expvar"
	"net"
	"net/http"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Queue is the read-only view of the queue the endpoints report on.
type Queue interface {
	Configured() bool
	Size() int
	Capacity() int
}

// Status is the /readyz response body.
type Status struct {
	Status   string `json:"status"`
	Size     int    `json:"queue_size"`
	Capacity int    `json:"queue_capacity"`
}

// NewMux returns a mux serving /healthz, /readyz and /debug/vars. Callers
// may register further routes on it.
func NewMux(q Queue) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		status := Status{Status: "ready", Size: q.Size(), Capacity: q.Capacity()}
		code := http.StatusOK
		if !q.Configured() {
			status.Status = "not configured"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	})
	mux.Handle("GET /debug/vars", expvar.Handler())
	return mux
}

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Server is an HTTP server running in the background.
type Server struct {
	srv  *http.Server
	ln   net.Listener
	errc chan error
}

// Start listens on addr and serves handler in the background. The caller
// owns shutdown and should watch Err.
func Start(addr string, handler http.Handler) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		srv:  &http.Server{Handler: handler},
		ln:   ln,
		errc: make(chan error, 1),
	}
	go func() {
		defer close(s.errc)
		if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			s.errc <- err
		}
	}()
	return s, nil
}

// Addr returns the listener address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Err delivers the error that stopped serving, if any. It is closed when
// the server stops, without a value after a clean Shutdown.
func (s *Server) Err() <-chan error { return s.errc }

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }
