package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	pathLive    = "/healthz"
	pathReady   = "/readyz"
	pathMetrics = "/metrics"

	bodyOK = "OK"

	serverDrainTimeout = 5 * time.Second
	readHeaderTimeout  = 10 * time.Second
)

// ReadinessFunc returns nil when the process is ready to relay.
type ReadinessFunc func(ctx context.Context) error

// Server exposes liveness, readiness and prometheus metrics over HTTP.
type Server struct {
	port   int
	ready  ReadinessFunc
	logger *zerolog.Logger
}

// NewServer creates a health server. A nil ready func always reports ready.
func NewServer(port int, ready ReadinessFunc, logger *zerolog.Logger) *Server {
	return &Server{port: port, ready: ready, logger: logger}
}

// Handler returns the health, readiness and metrics routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(pathLive, s.serveLive)
	mux.HandleFunc(pathReady, s.serveReady)
	mux.Handle(pathMetrics, promhttp.Handler())

	return mux
}

func (s *Server) serveLive(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, bodyOK)
}

// serveReady answers 503 with the reason until both the session and the pipeline are up.
func (s *Server) serveReady(w http.ResponseWriter, r *http.Request) {
	if s.ready == nil {
		writeStatus(w, http.StatusOK, bodyOK)
		return
	}

	if err := s.ready(r.Context()); err != nil {
		writeStatus(w, http.StatusServiceUnavailable, "not ready: "+err.Error())
		return
	}

	writeStatus(w, http.StatusOK, bodyOK)
}

func writeStatus(w http.ResponseWriter, code int, body string) {
	w.WriteHeader(code)
	_, _ = fmt.Fprint(w, body)
}

// Start listens on the configured port and serves until ctx is canceled.
// Port 0 binds an ephemeral port.
func (s *Server) Start(ctx context.Context) error {
	ln, err := (&net.ListenConfig{}).Listen(context.WithoutCancel(ctx), "tcp", net.JoinHostPort("", strconv.Itoa(s.port)))
	if err != nil {
		return fmt.Errorf("health listen: %w", err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	stopped := make(chan struct{})

	go func() {
		defer close(stopped)

		<-ctx.Done()

		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverDrainTimeout)
		defer cancel()

		if err := srv.Shutdown(drainCtx); err != nil {
			s.logger.Warn().Err(err).Msg("health server shutdown")
		}
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Health server listening")

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health serve: %w", err)
	}

	<-stopped

	return nil
}
