// Package server constructs and runs the mini-chats HTTP service with
// sensible production timeouts and graceful shutdown.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dstilesr/mini-chats/internal/dispatch"
)

const shutdownTimeout = 10 * time.Second

// CreateServer creates and configures an HTTP server with the specified
// address and handler. It sets reasonable timeout values for production use.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Run serves until ctx is cancelled, then shuts the HTTP server and the task
// runner down gracefully. Listener jobs observe cancellation through the
// runner; in-flight HTTP requests get the shutdown timeout to finish.
func Run(ctx context.Context, srv *http.Server, runner *dispatch.TaskRunner) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithField("addr", srv.Addr).Info("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithField("error", err).Error("HTTP server shutdown error")
			return err
		}

		if err := runner.Shutdown(shutdownTimeout); err != nil {
			log.WithField("error", err).Error("Task runner shutdown error")
			return err
		}

		log.Info("Shutdown completed")
		return nil
	})

	return g.Wait()
}
