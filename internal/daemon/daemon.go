// Package daemon is the thin orchestrator shell: a priority-ordered
// component registry, signal handling, an uptime clock, and a
// shutdown-requested flag (spec.md §4.6).
package daemon

import (
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Service is the uniform lifecycle every long-running component
// implements: start() returns success/failure, stop() is idempotent,
// is_running()/is_healthy() are side-effect-free, and priority() controls
// startup order (higher first; shutdown is reverse order).
type Service interface {
	Name() string
	Priority() int
	Start() bool
	Stop()
	IsRunning() bool
	IsHealthy() bool
}

// Daemon owns the Service registry and the process's signal handling. It
// never calls Start on an already-running component and aborts startup
// (unwinding in reverse priority) if any component's Start returns false.
type Daemon struct {
	logger   *slog.Logger
	services []Service
	reload   func() bool

	startedAt       time.Time
	shutdownReq     atomic.Bool
	mu              sync.Mutex
	startedServices []Service
}

// New builds a Daemon. reload is invoked on SIGHUP and should reload and
// re-apply external configuration; it may be nil.
func New(logger *slog.Logger, reload func() bool, services ...Service) *Daemon {
	sorted := make([]Service, len(services))
	copy(sorted, services)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() > sorted[j].Priority()
	})
	return &Daemon{logger: logger, services: sorted, reload: reload}
}

// Start brings up every registered component in priority order. If any
// component fails to start, already-started components are stopped in
// reverse order and Start returns false.
func (d *Daemon) Start() bool {
	d.startedAt = time.Now()
	for _, svc := range d.services {
		if svc.IsRunning() {
			continue
		}
		d.logger.Info("starting component", "name", svc.Name(), "priority", svc.Priority())
		if !svc.Start() {
			d.logger.Error("component failed to start, aborting startup", "name", svc.Name())
			d.unwind()
			return false
		}
		d.mu.Lock()
		d.startedServices = append(d.startedServices, svc)
		d.mu.Unlock()
	}
	return true
}

// unwind stops every component that was actually started, in reverse
// start order (which, since services start highest-priority-first, is
// already reverse priority).
func (d *Daemon) unwind() {
	d.mu.Lock()
	started := make([]Service, len(d.startedServices))
	copy(started, d.startedServices)
	d.startedServices = nil
	d.mu.Unlock()

	for i := len(started) - 1; i >= 0; i-- {
		svc := started[i]
		d.logger.Info("stopping component", "name", svc.Name())
		svc.Stop()
	}
}

// Stop shuts down every started component in reverse priority order.
// Idempotent.
func (d *Daemon) Stop() {
	d.unwind()
}

// Uptime reports how long the daemon has been running since Start.
func (d *Daemon) Uptime() time.Duration {
	if d.startedAt.IsZero() {
		return 0
	}
	return time.Since(d.startedAt)
}

// ShutdownRequested reports whether a shutdown has been requested, either
// via a terminating signal or the IPC "shutdown" method.
func (d *Daemon) ShutdownRequested() bool {
	return d.shutdownReq.Load()
}

// RequestShutdown sets the shutdown-requested flag. Safe to call from any
// goroutine, including an IPC handler.
func (d *Daemon) RequestShutdown() {
	d.shutdownReq.Store(true)
}

// Health maps each started component's name to whether it currently
// reports healthy.
func (d *Daemon) Health() map[string]bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]bool, len(d.startedServices))
	for _, svc := range d.startedServices {
		out[svc.Name()] = svc.IsHealthy()
	}
	return out
}

// Run blocks until a terminating signal arrives or RequestShutdown is
// called, servicing SIGHUP as a reload trigger in the meantime, then
// stops every component in reverse priority order.
func (d *Daemon) Run() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				d.logger.Info("received SIGHUP, reloading configuration")
				if d.reload != nil && !d.reload() {
					d.logger.Error("config reload failed")
				}
			case syscall.SIGINT, syscall.SIGTERM:
				d.logger.Info("received shutdown signal", "signal", sig.String())
				d.Stop()
				return
			}
		case <-ticker.C:
			if d.shutdownReq.Load() {
				d.logger.Info("shutdown requested via IPC")
				d.Stop()
				return
			}
		}
	}
}
