package controlplane

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/openmined/calsync/internal/client/handlers"
	"github.com/openmined/calsync/internal/client/middleware"
	"github.com/openmined/calsync/internal/utils"
)

type Server struct {
	config *Config
	server *http.Server
}

// New builds the control plane over the given sync and reload services.
// reloadSvc may be nil when no reloader is configured.
func New(config *Config, syncSvc handlers.SyncService, reloadSvc handlers.ReloadService) (*Server, error) {
	if _, err := AddrToURL(config.Addr); err != nil {
		return nil, err
	}

	routes := SetupRoutes(syncSvc, reloadSvc, &RouteConfig{
		Auth:      middleware.TokenAuthConfig{Token: config.AuthToken},
		Mode:      config.Mode,
		RateLimit: config.RateLimit,
	})

	httpServer := &http.Server{
		Addr:    config.Addr,
		Handler: routes,
		// Timeouts to prevent slow client attacks
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// Connection control
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	return &Server{
		config: config,
		server: httpServer,
	}, nil
}

// Start blocks serving requests until Stop is called.
func (s *Server) Start(ctx context.Context) error {
	url, _ := AddrToURL(s.config.Addr)
	slog.Info("control plane start", "addr", url, "token", utils.MaskSecret(s.config.AuthToken))

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to start control plane: %w", err)
	}
	return s.Serve(ln)
}

func (s *Server) Serve(ln net.Listener) error {
	if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("control plane serve: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	slog.Info("control plane stop")
	return s.server.Shutdown(ctx)
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
