package engine

import (
	"context"
	"sync"
)

// Completion tracks one asynchronous engine operation
type Completion struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// completed returns an already resolved completion
func completed(err error) *Completion {
	c := newCompletion()
	c.resolve(err)
	return c
}

func (c *Completion) resolve(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Done is closed when the operation finishes
func (c *Completion) Done() <-chan struct{} { return c.done }

// Wait blocks until the operation finishes or ctx ends
// A ctx error does not cancel the operation itself
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the operation error, or nil while still running
func (c *Completion) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}
