package runtime

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/felixgeelhaar/bolt/v3"
)

// ShutdownCoordinator collects ordered teardown hooks and runs them in
// reverse registration order. Each hook is isolated: one failing does not
// stop the rest.
type ShutdownCoordinator struct {
	mu       sync.Mutex
	hooks    []namedHook
	done     atomic.Bool
	shutting atomic.Bool
	log      *bolt.Logger
}

type namedHook struct {
	name string
	fn   func() error
}

func NewShutdownCoordinator(log *bolt.Logger) *ShutdownCoordinator {
	return &ShutdownCoordinator{log: log}
}

// OnShutdown registers a teardown hook. Hooks run LIFO.
func (c *ShutdownCoordinator) OnShutdown(name string, fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, namedHook{name: name, fn: fn})
}

// IsShuttingDown lets long-running loops exit cooperatively.
func (c *ShutdownCoordinator) IsShuttingDown() bool {
	return c.shutting.Load()
}

// Shutdown runs every hook once, newest first. Safe to call more than once.
func (c *ShutdownCoordinator) Shutdown() {
	c.shutting.Store(true)
	if !c.done.CompareAndSwap(false, true) {
		return
	}

	c.mu.Lock()
	hooks := make([]namedHook, len(c.hooks))
	copy(hooks, c.hooks)
	c.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := safeRun(h.fn); err != nil {
			c.log.Error().Str("hook", h.name).Err(err).Msg("shutdown hook failed")
		} else {
			c.log.Info().Str("hook", h.name).Msg("shutdown hook done")
		}
	}
}

func safeRun(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{value: r}
		}
	}()
	return fn()
}

type panicError struct{ value any }

func (p panicError) Error() string {
	return fmt.Sprintf("panic in shutdown hook: %v", p.value)
}
