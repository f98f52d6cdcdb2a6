package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/information-sharing-networks/provenance-demo/internal/config"
	"github.com/information-sharing-networks/provenance-demo/internal/keystore"
	"github.com/information-sharing-networks/provenance-demo/internal/record"
	"github.com/information-sharing-networks/provenance-demo/internal/server/middleware"
	"github.com/information-sharing-networks/provenance-demo/internal/store"
)

type Server struct {
	config       *config.ServerEnvironment
	logger       *slog.Logger
	router       *chi.Mux
	signer       *keystore.Signer
	certProvider *keystore.CertificateProvider
	records      *record.Service

	// archive and pool are nil when DATABASE_URL is not configured
	archive *store.Archive
	pool    *pgxpool.Pool
}

func NewServer(
	cfg *config.ServerEnvironment,
	logger *slog.Logger,
	signer *keystore.Signer,
	certProvider *keystore.CertificateProvider,
	archive *store.Archive,
	pool *pgxpool.Pool,
) *Server {
	server := &Server{
		config:       cfg,
		logger:       logger,
		router:       chi.NewRouter(),
		signer:       signer,
		certProvider: certProvider,
		records:      record.NewService(cfg.TrustFrameworkURL, cfg.SchemeURL),
		archive:      archive,
		pool:         pool,
	}

	server.setupMiddleware()
	server.registerRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.RequestLogger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(chimiddleware.Timeout(60 * time.Second))
	s.router.Use(middleware.SecurityHeaders(s.config.Environment))
	s.router.Use(middleware.RateLimit(s.config.RateLimitRPS, s.config.RateLimitBurst))
	s.router.Use(middleware.RequestSizeLimit(s.config.MaxRequestBytes))
}

func (s *Server) registerRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/sign/edp", s.handleSignEDP)
		r.Post("/sign/cap", s.handleSignCAP)
		r.Post("/decode", s.handleDecode)

		if s.archive != nil {
			r.Get("/records", s.handleListRecords)
			r.Get("/records/{recordID}", s.handleGetRecord)
		}
	})

	s.router.Get("/.well-known/jwks.json", s.handleJWKS)
}

// Router exposes the configured handler (used by httptest in tests).
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) Start(ctx context.Context) error {
	serverAddr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	httpServer := &http.Server{
		Addr:         serverAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("service listening",
			slog.String("environment", s.config.Environment),
			slog.String("address", serverAddr))

		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.config.ServerShutdownTimeout)
	defer shutdownCancel()

	s.logger.Info("shutting down HTTP server")

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		s.logger.Warn("HTTP server shutdown error",
			slog.String("error", err.Error()))
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}

	s.logger.Info("HTTP server shutdown complete")
	return nil
}

func (s *Server) DatabaseShutdown() {
	if s.pool != nil {
		s.pool.Close()
		s.logger.Info("database connection closed")
	}
}
