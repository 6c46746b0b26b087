// Package server provides daemon lifecycle management: ordered startup,
// signal-driven shutdown and release of shared resources.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Service represents a long-running component that can be started and stopped.
type Service interface {
	// Start begins the service. It should block until the service is stopped
	// or an error occurs.
	Start() error
	// Stop gracefully stops the service.
	Stop()
}

// FuncService adapts a start/stop function pair into the Service interface.
type FuncService struct {
	StartFn func() error
	StopFn  func()
}

// Start calls the underlying start function.
func (f *FuncService) Start() error { return f.StartFn() }

// Stop calls the underlying stop function.
func (f *FuncService) Stop() { f.StopFn() }

// CloseFunc releases a resource shared by services, such as a database pool.
type CloseFunc func(ctx context.Context) error

// Lifecycle manages the startup and shutdown of multiple services.
// Services are started in order and stopped in reverse order; closers run
// after every service has stopped, also in reverse order.
type Lifecycle struct {
	logger          *zap.Logger
	shutdownTimeout time.Duration

	mu       sync.Mutex
	services []namedService
	closers  []namedCloser
}

type namedService struct {
	name    string
	service Service
}

type namedCloser struct {
	name  string
	close CloseFunc
}

// NewLifecycle creates a new Lifecycle manager. A shutdownTimeout <= 0 waits
// for each Stop without bound.
//
// Precondition: logger must be non-nil.
func NewLifecycle(logger *zap.Logger, shutdownTimeout time.Duration) *Lifecycle {
	return &Lifecycle{
		logger:          logger,
		shutdownTimeout: shutdownTimeout,
	}
}

// Add registers a named service for lifecycle management.
// Services are started in the order they are added.
//
// Precondition: name must be non-empty; svc must be non-nil.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, namedService{name: name, service: svc})
}

// AddCloser registers a resource release run during shutdown.
func (l *Lifecycle) AddCloser(name string, fn CloseFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closers = append(l.closers, namedCloser{name: name, close: fn})
}

// Run starts all services and blocks until a termination signal is received
// (SIGINT or SIGTERM), ctx is cancelled or a service fails.
//
// Postcondition: All services are stopped and all closers have run when this
// method returns. Returns the first service failure joined with any closer
// errors, or nil on a clean shutdown.
func (l *Lifecycle) Run(ctx context.Context) error {
	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.mu.Lock()
	services := append([]namedService(nil), l.services...)
	closers := append([]namedCloser(nil), l.closers...)
	l.mu.Unlock()

	errCh := make(chan error, len(services))
	for _, ns := range services {
		go func() {
			l.logger.Info("starting service",
				zap.String("service", ns.name),
			)
			svcStart := time.Now()
			if err := ns.service.Start(); err != nil {
				l.logger.Error("service failed",
					zap.String("service", ns.name),
					zap.Error(err),
					zap.Duration("uptime", time.Since(svcStart)),
				)
				errCh <- fmt.Errorf("service %s: %w", ns.name, err)
				cancel()
			}
		}()
	}

	l.logger.Info("all services started",
		zap.Int("count", len(services)),
		zap.Duration("startup", time.Since(start)),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		l.logger.Info("received signal, shutting down",
			zap.String("signal", sig.String()),
		)
	case runErr = <-errCh:
		l.logger.Error("service error, shutting down",
			zap.Error(runErr),
		)
	case <-ctx.Done():
		// A failing service cancels ctx too; prefer reporting its error.
		select {
		case runErr = <-errCh:
			l.logger.Error("service error, shutting down",
				zap.Error(runErr),
			)
		default:
			l.logger.Info("context cancelled, shutting down")
		}
	}

	l.shutdown(services)
	closeErr := l.close(closers)

	l.logger.Info("shutdown complete",
		zap.Duration("total_uptime", time.Since(start)),
	)
	return errors.Join(runErr, closeErr)
}

func (l *Lifecycle) shutdown(services []namedService) {
	shutdownStart := time.Now()
	for i := len(services) - 1; i >= 0; i-- {
		ns := services[i]
		svcStart := time.Now()
		l.logger.Info("stopping service",
			zap.String("service", ns.name),
		)
		if !l.stopWithin(ns.service) {
			l.logger.Warn("service did not stop in time",
				zap.String("service", ns.name),
				zap.Duration("timeout", l.shutdownTimeout),
			)
			continue
		}
		l.logger.Info("service stopped",
			zap.String("service", ns.name),
			zap.Duration("elapsed", time.Since(svcStart)),
		)
	}
	l.logger.Info("all services stopped",
		zap.Duration("shutdown_elapsed", time.Since(shutdownStart)),
	)
}

func (l *Lifecycle) stopWithin(svc Service) bool {
	if l.shutdownTimeout <= 0 {
		svc.Stop()
		return true
	}
	done := make(chan struct{})
	go func() {
		svc.Stop()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(l.shutdownTimeout):
		return false
	}
}

func (l *Lifecycle) close(closers []namedCloser) error {
	ctx := context.Background()
	if l.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.shutdownTimeout)
		defer cancel()
	}
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		nc := closers[i]
		if err := nc.close(ctx); err != nil {
			l.logger.Warn("closing resource failed",
				zap.String("resource", nc.name),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("closing %s: %w", nc.name, err))
		}
	}
	return errors.Join(errs...)
}
