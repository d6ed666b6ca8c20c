// Package driveragent implements the three single-threaded duty-cycle
// agents (Sender, Receiver, Conductor) and the runner that drives each
// through its non-blocking DoWork loop with a pluggable idle strategy. It
// generalizes a goroutine-per-connection blocking read/write loop into an
// "agents never block" cooperative duty-cycle model, and a Start/Stop
// server lifecycle into Runner.Start/Runner.Stop for each agent.
package driveragent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	drivererrors "github.com/alxayo/mediadriver/internal/errors"
	"github.com/alxayo/mediadriver/internal/errorlog"
	"github.com/alxayo/mediadriver/internal/idlestrategy"
	"github.com/alxayo/mediadriver/internal/metrics"
)

// Agent is one cooperative duty-cycle participant. DoWork must never block;
// it performs whatever non-blocking work is available and returns the
// count of items processed (0 means idle this cycle).
type Agent interface {
	Name() string
	DoWork() (int, error)
	OnClose()
}

// Runner drives one Agent's duty cycle on a dedicated goroutine (DEDICATED
// threading mode) or, via RunOnce, lets an INVOKER-mode caller drive the
// cycle itself.
type Runner struct {
	agent   Agent
	idle    idlestrategy.Idler
	errs    *errorlog.Log
	metrics *metrics.Registry
	logger  *slog.Logger

	closeTimeout time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewRunner(agent Agent, idle idlestrategy.Idler, errs *errorlog.Log, reg *metrics.Registry, logger *slog.Logger) *Runner {
	if idle == nil {
		idle = idlestrategy.NewBackoffPark()
	}
	return &Runner{agent: agent, idle: idle, errs: errs, metrics: reg, logger: logger, closeTimeout: 5 * time.Second}
}

// Start launches the agent's duty-cycle loop on its own goroutine. Used
// for DEDICATED, SHARED and SHARED_NETWORK threading modes.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true
	r.mu.Unlock()

	go func() {
		defer close(r.done)
		defer r.agent.OnClose()
		for {
			select {
			case <-runCtx.Done():
				return
			default:
			}
			if r.runOnceLocked(runCtx) {
				return
			}
		}
	}()
}

// RunOnce executes exactly one duty cycle, for INVOKER threading mode
// where the embedding application drives the loop itself.
func (r *Runner) RunOnce(ctx context.Context) bool {
	return r.runOnceLocked(ctx)
}

func (r *Runner) runOnceLocked(ctx context.Context) (terminate bool) {
	start := time.Now()
	n, err := r.agent.DoWork()
	if r.metrics != nil {
		r.metrics.DutyCycleDuration.WithLabelValues(r.agent.Name()).Observe(time.Since(start).Seconds())
		if n > 0 {
			r.metrics.AgentWorkCount.WithLabelValues(r.agent.Name()).Add(float64(n))
		}
	}
	if err != nil {
		if drivererrors.IsTermination(err) {
			return true
		}
		if r.errs != nil {
			r.errs.Record(r.agent.Name(), err)
		}
		if r.logger != nil {
			r.logger.Error("agent duty cycle error", "agent", r.agent.Name(), "error", err)
		}
		if !drivererrors.IsDriverError(err) {
			return false
		}
	}
	r.idle.Idle(n)
	return false
}

// Stop cancels the duty-cycle loop and waits (up to closeTimeout) for it to
// exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	done := r.done
	r.running = false
	r.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(r.closeTimeout):
	}
}
