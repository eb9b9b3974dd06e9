package infra

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

const defaultShutdownTimeout = 20 * time.Second

// HTTPServer serves the API until its context ends, then drains in-flight
// requests within ShutdownTimeout.
type HTTPServer struct {
	server          *http.Server
	shutdownTimeout time.Duration
	logger          *Logger
}

// NewHTTPServer builds a server for handler from the HTTP settings in cfg.
func NewHTTPServer(cfg *Config, handler http.Handler, logger *Logger) *HTTPServer {
	shutdown := cfg.HTTPShutdownTimeout
	if shutdown <= 0 {
		shutdown = defaultShutdownTimeout
	}
	return &HTTPServer{
		server: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           handler,
			ReadTimeout:       cfg.HTTPReadTimeout,
			ReadHeaderTimeout: cfg.HTTPReadHeaderTimeout,
			WriteTimeout:      cfg.HTTPWriteTimeout,
			IdleTimeout:       cfg.HTTPIdleTimeout,
		},
		shutdownTimeout: shutdown,
		logger:          logger,
	}
}

// Serve listens on the configured address. See ServeListener.
func (s *HTTPServer) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("httpserver: listen %s: %w", s.server.Addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is done and returns nil after a clean
// shutdown. Request contexts derive from ctx's values but not its
// cancellation, so draining requests are not aborted.
func (s *HTTPServer) ServeListener(ctx context.Context, ln net.Listener) error {
	s.server.BaseContext = func(net.Listener) context.Context {
		return context.WithoutCancel(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.Info().Str("addr", ln.Addr().String()).Msg("httpserver: listening")
		}
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpserver: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
