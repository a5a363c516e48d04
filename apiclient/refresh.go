package apiclient

import (
	"context"
	"sync"
)

// RefreshFunc performs one refresh call and applies its outcome to the
// credentials before returning.
type RefreshFunc func(ctx context.Context) error

// Coordinator serializes token refreshes. It is either idle or refreshing;
// while refreshing, callers queue behind the refresh in flight instead of
// starting their own. There is one Coordinator per Client, living as long as
// the Client does.
type Coordinator struct {
	refresh RefreshFunc

	mu         sync.Mutex
	refreshing bool
	pending    []chan error
}

// NewCoordinator returns an idle Coordinator running refresh.
func NewCoordinator(refresh RefreshFunc) *Coordinator {
	return &Coordinator{refresh: refresh}
}

// Await returns once a refresh has settled: nil means the caller should retry
// its request, anything else is the refresh error. If no refresh is in flight
// the caller runs it; otherwise it waits for the one in flight.
//
// The refresh itself ignores the starting caller's cancellation, since its
// outcome is shared with every queued caller. A queued caller whose ctx ends
// stops waiting; its queue slot is still drained.
func (c *Coordinator) Await(ctx context.Context) error {
	c.mu.Lock()
	if c.refreshing {
		done := make(chan error, 1)
		c.pending = append(c.pending, done)
		c.mu.Unlock()

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.refreshing = true
	c.mu.Unlock()

	err := c.refresh(context.WithoutCancel(ctx))

	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.refreshing = false
	c.mu.Unlock()

	for _, done := range pending {
		done <- err
	}
	return err
}

// Refreshing reports whether a refresh is in flight.
func (c *Coordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

func (c *Coordinator) pendingLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
