package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cortexai/finops-insight/internal/config"
	"github.com/cortexai/finops-insight/internal/datasource"
	"github.com/cortexai/finops-insight/internal/tools"
)

type Server struct {
	cfg      *config.Config
	ds       datasource.DataSource
	registry *tools.Registry
	http     *http.Server
}

// New wires the HTTP surface over an opened data source. The server owns
// ds from here on and closes it on shutdown.
func New(cfg *config.Config, ds datasource.DataSource, registry *tools.Registry) *Server {
	s := &Server{cfg: cfg, ds: ds, registry: registry}

	// WriteTimeout leaves headroom over the longest permitted tool call
	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.MaxCallTimeout() + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.http.Addr).Msg("listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("graceful shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := s.http.Shutdown(shutdownCtx)
		s.closeDataSource()
		return err
	case err := <-errCh:
		s.closeDataSource()
		return err
	}
}

func (s *Server) closeDataSource() {
	if err := s.ds.Close(); err != nil {
		log.Warn().Err(err).Str("backend", string(s.ds.Backend())).Msg("error closing data source")
		return
	}
	log.Info().Str("backend", string(s.ds.Backend())).Msg("data source closed")
}
