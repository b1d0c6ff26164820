package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/rpoole444/cosLivewire-BE/internal/config"
)

// Server runs the HTTP API with graceful shutdown.
type Server struct {
	cfg    *config.Config
	router *Router
	http   *http.Server
}

// NewServer creates the HTTP server around a built router.
func NewServer(cfg *config.Config, router *Router) *Server {
	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port)
	return &Server{
		cfg:    cfg,
		router: router,
		http: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().
			Str("addr", s.http.Addr).
			Msg("Server listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		s.router.Close()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
			return err
		}
		log.Info().Msg("Server stopped")
		return nil
	})

	return g.Wait()
}
