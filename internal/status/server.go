// Package status serves a read-only HTTP view of the running bot: liveness,
// the live session registry and the persisted records.
package status

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/zulandar/ticketyard/internal/store"
	"github.com/zulandar/ticketyard/internal/ticket"
)

// Registry is the live, in-memory side of the ticket manager.
type Registry interface {
	Sessions() []ticket.SessionInfo
	Forms() []ticket.IntakeForm
}

// StartOpts holds configuration for the status server.
type StartOpts struct {
	Registry Registry
	Store    store.Store
	Port     int
	Logger   zerolog.Logger
}

// Start launches the status HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Registry == nil {
		return fmt.Errorf("status: registry is required")
	}
	if opts.Store == nil {
		return fmt.Errorf("status: store is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}
	logger := opts.Logger.With().Str("component", "status").Logger()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           newRouter(opts.Registry, opts.Store, time.Now()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Int("port", opts.Port).Msg("status server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status: %w", err)
	}
	return nil
}

// newRouter builds the gin engine. started is reported as the process start
// time by /healthz.
func newRouter(reg Registry, st store.Store, started time.Time) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, reg, st, started)
	return router
}
