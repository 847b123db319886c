package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultShutdownTimeout bounds Shutdown when no timeout is configured
const DefaultShutdownTimeout = 30 * time.Second

// ShutdownManager stops HTTP servers and releases resources in order:
// servers first, then registered functions concurrently
type ShutdownManager struct {
	logger          *Logger
	servers         []*http.Server
	shutdownFuncs   []namedShutdownFunc
	shutdownTimeout time.Duration
	mu              sync.Mutex
	once            sync.Once
	err             error
}

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

type namedShutdownFunc struct {
	name string
	fn   ShutdownFunc
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(logger *Logger, timeout time.Duration, servers ...*http.Server) *ShutdownManager {
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	return &ShutdownManager{
		logger:          logger,
		servers:         servers,
		shutdownTimeout: timeout,
	}
}

// RegisterShutdownFunc registers a function to call during shutdown. Nil functions are ignored.
func (sm *ShutdownManager) RegisterShutdownFunc(name string, fn ShutdownFunc) {
	if fn == nil {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.shutdownFuncs = append(sm.shutdownFuncs, namedShutdownFunc{name: name, fn: fn})
}

// Shutdown stops all servers and runs the shutdown functions. It is safe to
// call more than once; later calls return the first result.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	sm.once.Do(func() {
		sm.err = sm.shutdown(ctx)
	})
	return sm.err
}

func (sm *ShutdownManager) shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, sm.shutdownTimeout)
	defer cancel()

	var errs []error

	for _, server := range sm.servers {
		if server == nil {
			continue
		}
		sm.logger.WithField("addr", server.Addr).Info("Shutting down HTTP server")
		if err := server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).WithField("addr", server.Addr).Error("HTTP server shutdown error")
			errs = append(errs, fmt.Errorf("HTTP server %s shutdown failed: %w", server.Addr, err))
		}
	}

	sm.mu.Lock()
	funcs := make([]namedShutdownFunc, len(sm.shutdownFuncs))
	copy(funcs, sm.shutdownFuncs)
	sm.mu.Unlock()

	var (
		g     errgroup.Group
		errMu sync.Mutex
	)
	for _, f := range funcs {
		f := f
		g.Go(func() error {
			if err := f.fn(ctx); err != nil {
				sm.logger.WithError(err).WithField("func", f.name).Error("Shutdown function failed")
				errMu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
				errMu.Unlock()
				return nil
			}
			sm.logger.WithField("func", f.name).Debug("Shutdown function complete")
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sm.logger.Warn("Shutdown timeout reached, forcing shutdown")
		return fmt.Errorf("shutdown timeout reached: %w", ctx.Err())
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown completed with %d errors: %w", len(errs), errors.Join(errs...))
	}

	sm.logger.Info("Graceful shutdown complete")
	return nil
}
