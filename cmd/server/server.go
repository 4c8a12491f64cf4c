package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// startHTTPServer serves router until ctx is cancelled or the listener
// fails, then shuts the server and the application down gracefully.
func (app *application) startHTTPServer(ctx context.Context, router http.Handler) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", app.config.Server.Port))
	if err != nil {
		app.shutdown()
		return fmt.Errorf("listen: %w", err)
	}
	return app.serve(ctx, ln, router)
}

func (app *application) serve(ctx context.Context, ln net.Listener, router http.Handler) error {
	baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()

	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	// Event streams stay open until their run ends; cancelling the base
	// context releases them so Shutdown can drain.
	server.RegisterOnShutdown(cancelBase)

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		app.logger.Info("shutting down server")
	case serveErr = <-errCh:
		app.logger.Error("server failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownGrace)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Warn("server shutdown incomplete", "error", err)
		_ = server.Close()
	}
	app.shutdown()

	app.logger.Info("server shutdown completed")
	return serveErr
}
