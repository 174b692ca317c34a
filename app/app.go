// Package app is a minimal HTTP origin server used to exercise
// internal/handler end-to-end: a handful of endpoints that let
// cmd/pconn-bench demonstrate reuse, queuing under a connection cap, and
// stale-connection detection against a real socket rather than a mock.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/thushan/pconn/internal/config"
)

// Application is the demo test origin. It is not part of the pooled
// client - it is the thing cmd/pconn-bench dials against.
type Application struct {
	config *config.Config
	server *http.Server
	logger *slog.Logger
	errCh  chan error
}

// New creates a new origin server instance.
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Application{
		config: cfg,
		server: server,
		logger: logger,
		errCh:  make(chan error, 1),
	}, nil
}

// Start brings the origin server up in the background.
func (a *Application) Start(ctx context.Context) error {
	a.logger.Info("starting test origin", "host", a.config.Server.Host, "port", a.config.Server.Port)

	router := http.NewServeMux()
	router.HandleFunc("/health", a.healthHandler)
	router.HandleFunc("/echo", a.echoHandler)
	router.HandleFunc("/slow", a.slowHandler)
	router.HandleFunc("/close", a.closeHandler)

	a.server.Handler = accessLogMiddleware(a.logger)(router)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("origin server error", "error", err)
			a.errCh <- err
		}
	}()

	go func() {
		select {
		case err := <-a.errCh:
			a.logger.Error("origin startup error", "error", err)
		case <-ctx.Done():
			return
		}
	}()

	a.logger.Info("started test origin", "bind", a.server.Addr)
	a.logger.Info("endpoints enabled", slog.Group("routes",
		"health", "liveness check",
		"echo", "writes back the request method and path",
		"slow", "holds the response for ?delay=<duration>, default 1s",
		"close", "closes the socket immediately with no response, for stale-detection testing"))
	return nil
}

// Stop shuts the origin server down.
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("origin server shutdown error: %w", err)
	}
	return nil
}

func (a *Application) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// echoHandler writes back "echo: <method> <path>" (the request body is not
// read), so callers can confirm a connection carried the request they think
// it did.
func (a *Application) echoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", r.Header.Get("Content-Type"))
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "echo: %s %s", r.Method, r.URL.Path)
}

// slowHandler holds the response open, letting a test force a request to
// occupy a connection long enough for a second request to queue on a
// maxConnectionsPerServer=1 pool.
func (a *Application) slowHandler(w http.ResponseWriter, r *http.Request) {
	delay := time.Second
	if d, err := time.ParseDuration(r.URL.Query().Get("delay")); err == nil {
		delay = d
	}
	select {
	case <-time.After(delay):
	case <-r.Context().Done():
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("done waiting"))
}

// closeHandler hijacks the connection and closes it without writing a
// response, simulating a peer that drops the socket - exercising the
// pooled client's poll-read stale-connection detection.
func (a *Application) closeHandler(w http.ResponseWriter, r *http.Request) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "hijacking not supported", http.StatusInternalServerError)
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetLinger(0)
	}
	_ = conn.Close()
}
