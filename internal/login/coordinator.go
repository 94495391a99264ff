package login

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type pendingLogin struct {
	mode   Mode
	result <-chan Result
	cancel *CancelFlag
}

// Coordinator tracks at most one outstanding login. Starting a new flow
// supersedes the previous one. The mutex guards only the slot swap and is
// never held while waiting on the listener.
type Coordinator struct {
	listener Listener

	mu      sync.Mutex
	pending *pendingLogin
}

// NewCoordinator creates an idle Coordinator.
func NewCoordinator(listener Listener) *Coordinator {
	return &Coordinator{listener: listener}
}

// swap replaces the pending slot and returns what was there.
func (c *Coordinator) swap(next *pendingLogin) *pendingLogin {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.pending
	c.pending = next
	return prev
}

// Start cancels any pending flow and begins a new one.
func (c *Coordinator) Start(ctx context.Context, mode Mode, displayName string) (Info, error) {
	if mode.Kind == ModeReconnect && mode.AccountID == "" {
		return Info{}, fmt.Errorf("reconnect requires an account id")
	}

	if prev := c.swap(nil); prev != nil {
		prev.cancel.Cancel()
		slog.InfoContext(ctx, "superseded pending login", "mode", prev.mode.String())
	}

	info, result, cancel, err := c.listener.Begin(ctx, displayName)
	if err != nil {
		return Info{}, fmt.Errorf("starting login: %w", err)
	}

	// A concurrent Start may have installed its own flow meanwhile; the later one wins.
	if prev := c.swap(&pendingLogin{mode: mode, result: result, cancel: cancel}); prev != nil {
		prev.cancel.Cancel()
	}

	slog.InfoContext(ctx, "login started", "mode", mode.String())
	return info, nil
}

// Complete waits for the pending flow's result. The flow is consumed whatever
// the outcome, so a second call without a new Start fails with ErrNoPendingFlow.
// If ctx ends first, the flow is cancelled.
func (c *Coordinator) Complete(ctx context.Context, kind ModeKind) (Outcome, error) {
	p := c.swap(nil)
	if p == nil {
		return Outcome{}, ErrNoPendingFlow
	}

	if p.mode.Kind != kind {
		p.cancel.Cancel()
		return Outcome{}, fmt.Errorf("%w: pending flow is %s, expected %s", ErrModeMismatch, p.mode.Kind, kind)
	}

	select {
	case r, ok := <-p.result:
		if !ok {
			return Outcome{}, fmt.Errorf("login listener closed without a result")
		}
		if r.Err != nil {
			return Outcome{}, fmt.Errorf("login failed: %w", r.Err)
		}
		r.Outcome.Mode = p.mode
		return r.Outcome, nil

	case <-ctx.Done():
		p.cancel.Cancel()
		return Outcome{}, ctx.Err()
	}
}

// Cancel discards the pending flow, if any, and signals its listener to stop.
func (c *Coordinator) Cancel() {
	if p := c.swap(nil); p != nil {
		p.cancel.Cancel()
	}
}

// Pending reports the mode of the pending flow.
func (c *Coordinator) Pending() (Mode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return Mode{}, false
	}
	return c.pending.mode, true
}
