package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/gilchrisn/mcps-experiments/pkg/wekaopt"
)

// ServerOptions configures the report browser.
type ServerOptions struct {
	Address        string
	TablesDir      string
	PlotsDir       string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// NewRouter builds the router with its middleware stack.
func NewRouter(st Store, parser wekaopt.Parser, opts ServerOptions, logger zerolog.Logger) *mux.Router {
	router := mux.NewRouter()
	SetupRoutes(router, NewHandlers(st, parser, logger), opts.TablesDir, opts.PlotsDir)

	router.Use(LoggingMiddleware(logger))
	router.Use(CORSMiddleware(opts.AllowedOrigins))
	router.Use(RecoveryMiddleware(logger))
	return router
}

// Serve runs the report browser until ctx is cancelled, then shuts it down
// gracefully.
func Serve(ctx context.Context, handler http.Handler, opts ServerOptions, logger zerolog.Logger) error {
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 60 * time.Second
	}
	server := &http.Server{
		Addr:         opts.Address,
		Handler:      handler,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("address", opts.Address).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info().Msg("Server shutdown complete")
	return nil
}
