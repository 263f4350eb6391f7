// Package task manages the goroutines of the transport adapters.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-studiorpc/logger"
)

// ErrStopped is returned when a task is started on a stopped Manager.
var ErrStopped = errors.New("task: manager already stopped")

// startTimeout bounds how long Start waits for the goroutine to come up.
const startTimeout = 5 * time.Second

// Func performs one iteration of a loop task. It returns true to keep running,
// false to stop the goroutine.
type Func func() bool

// Manager starts named goroutines bound to a shared context and waits for them
// on shutdown. Every task body runs with panic protection; a panicking
// iteration is logged and terminates only that task.
//
//	mgr := task.NewManager(ctx, logger)
//	_ = mgr.Start("reader", func() bool { ...; return true })
//	_ = mgr.StartWorker("worker", kick, drain)
//	mgr.Stop()
//	mgr.Wait()
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
	count  atomic.Int32
}

// NewManager creates a Manager whose tasks stop when ctx is cancelled or Stop
// is called.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	mgr := &Manager{logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Context returns the context shared by all tasks.
func (mgr *Manager) Context() context.Context { return mgr.ctx }

// Start runs fn in a loop until it returns false or the Manager stops.
func (mgr *Manager) Start(name string, fn Func) error {
	return mgr.spawn(name, func() {
		for {
			select {
			case <-mgr.ctx.Done():
				return
			default:
			}

			if !mgr.callWithRecover(name, fn) {
				return
			}
		}
	})
}

// StartWorker runs fn once per value received on activate until the Manager
// stops or fn panics. Activations that arrive while fn runs are not lost as
// long as the sender uses a buffered channel: they are picked up by the next
// iteration.
func (mgr *Manager) StartWorker(name string, activate <-chan struct{}, fn func()) error {
	if activate == nil {
		return fmt.Errorf("task: %s: activation channel is nil", name)
	}

	return mgr.spawn(name, func() {
		for {
			select {
			case <-mgr.ctx.Done():
				return
			case <-activate:
				if !mgr.callWithRecover(name, func() bool {
					fn()
					return true
				}) {
					return
				}
			}
		}
	})
}

// Go runs fn once in a managed goroutine. fn should return when the context
// passed to it is done.
func (mgr *Manager) Go(name string, fn func(ctx context.Context)) error {
	return mgr.spawn(name, func() {
		mgr.callWithRecover(name, func() bool {
			fn(mgr.ctx)
			return false
		})
	})
}

// Stop signals all tasks to terminate.
func (mgr *Manager) Stop() {
	mgr.cancel()
}

// Wait blocks until every task has terminated.
func (mgr *Manager) Wait() {
	mgr.wg.Wait()
}

// Count returns the number of running tasks.
func (mgr *Manager) Count() int {
	return int(mgr.count.Load())
}

func (mgr *Manager) spawn(name string, body func()) error {
	select {
	case <-mgr.ctx.Done():
		return ErrStopped
	default:
	}

	mgr.logger.Debug("task: start", "name", name)

	started := make(chan struct{})

	mgr.wg.Add(1)
	go func() {
		defer mgr.wg.Done()

		mgr.count.Add(1)
		defer func() {
			mgr.count.Add(-1)
			mgr.logger.Debug("task: terminated", "name", name, "taskCount", mgr.Count())
		}()

		close(started)
		body()
	}()

	select {
	case <-started:
		return nil
	case <-time.After(startTimeout):
		return fmt.Errorf("task: timeout waiting for %s to start", name)
	}
}

// callWithRecover calls fn with panic protection. A panic counts as a request
// to stop the task.
func (mgr *Manager) callWithRecover(name string, fn func() bool) (cont bool) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("task: panic", "name", name, "panic", r)
			cont = false
		}
	}()

	return fn()
}
