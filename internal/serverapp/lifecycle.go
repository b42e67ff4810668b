package serverapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"pg-graphql/internal/logging"
)

// StopReason says why WaitForStop returned.
type StopReason string

const (
	// StopRequested means the caller's context ended, usually on a signal.
	StopRequested StopReason = "requested"
	// StopServerFailed means the HTTP listener exited on its own.
	StopServerFailed StopReason = "server_failed"
)

// releaser is one acquired resource and how to give it back.
type releaser struct {
	name    string
	release func(context.Context) error
}

// cleanupStack releases resources in reverse order of acquisition.
type cleanupStack []releaser

func (s *cleanupStack) push(name string, release func(context.Context) error) {
	*s = append(*s, releaser{name: name, release: release})
}

// run releases everything on the stack, continuing past failures, and
// returns every failure joined.
func (s cleanupStack) run(ctx context.Context, logger *logging.Logger) error {
	var errs []error
	for i := len(s) - 1; i >= 0; i-- {
		r := s[i]
		if logger != nil {
			logger.Debug("releasing resource", slog.String("component", r.name))
		}
		if err := r.release(ctx); err != nil {
			if logger != nil {
				logger.Warn("cleanup failed",
					slog.String("component", r.name),
					slog.String("error", err.Error()),
				)
			}
			errs = append(errs, fmt.Errorf("%s: %w", r.name, err))
		}
	}
	return errors.Join(errs...)
}

// Start runs the HTTP server in the background. Calling it again returns
// the same error channel.
func (a *App) Start() (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if !a.initialized {
		return nil, errors.New("app is not initialized")
	}
	if !a.started {
		a.serverErrors = startServer(a.cfg, a.logger, a.srv, a.serverAddr)
		a.started = true
	}
	return a.serverErrors, nil
}

// WaitForStop blocks until ctx is done or the server exits. A context
// from signal.NotifyContext turns SIGINT and SIGTERM into a clean stop.
func (a *App) WaitForStop(ctx context.Context) (StopReason, error) {
	a.stateMu.Lock()
	serverErrors := a.serverErrors
	a.stateMu.Unlock()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown requested", slog.String("cause", context.Cause(ctx).Error()))
		return StopRequested, nil
	case err := <-serverErrors:
		if err == nil {
			err = errors.New("server stopped unexpectedly")
		}
		return StopServerFailed, err
	}
}

// Shutdown releases everything Init acquired. Only the first call does the
// work; later calls return its result.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		stack := a.cleanup
		a.cleanup = nil
		a.started = false
		a.stateMu.Unlock()

		a.shutdownErr = stack.run(ctx, a.logger)
	})
	return a.shutdownErr
}
