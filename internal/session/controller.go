package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrClosed is returned by Do after Close.
var ErrClosed = errors.New("session: controller closed")

// Controller runs a Session on a single goroutine.
//
// Concurrency model: the loop goroutine is the only one that touches the
// session. HTTP handlers, MCP tools, auto-save timers and background write
// completions all submit closures through the task channel.
type Controller struct {
	s *Session

	tasks   chan func()
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewController creates a session from deps and cfg and starts its loop.
func NewController(deps Deps, cfg Config) *Controller {
	c := &Controller{
		tasks:   make(chan func(), 64),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	c.s = New(deps, cfg, c.post)
	go c.run()
	return c
}

func (c *Controller) run() {
	defer close(c.stopped)
	for {
		select {
		case <-c.stopCh:
			c.s.shutdown()
			return
		case fn := <-c.tasks:
			fn()
		}
	}
}

// post queues fn from a goroutine other than the loop.
func (c *Controller) post(fn func()) {
	if c.closed.Load() {
		return
	}
	select {
	case c.tasks <- fn:
	case <-c.stopped:
	}
}

// Do runs fn on the loop and waits for its result.
func (c *Controller) Do(ctx context.Context, fn func(s *Session) error) error {
	if c.closed.Load() {
		return ErrClosed
	}
	done := make(chan error, 1)
	task := func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("session: panic: %v", r)
			}
		}()
		done <- fn(c.s)
	}

	select {
	case c.tasks <- task:
	case <-c.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-c.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current session view.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	result := make(chan Snapshot, 1)
	if err := c.Do(ctx, func(s *Session) error {
		result <- s.Snapshot()
		return nil
	}); err != nil {
		return Snapshot{}, err
	}
	return <-result, nil
}

// Close stops the loop. Queued tasks that have not started are dropped.
func (c *Controller) Close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.stopCh)
	}
	<-c.stopped
}
