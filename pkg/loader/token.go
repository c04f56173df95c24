package loader

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrStaleLoad reports that a load finished after its token was cancelled.
// The scene it produced has already been disposed.
var ErrStaleLoad = errors.New("stale load discarded")

// Token marks one load as current. Cancelling it makes any result of that
// load stale; the owner cancels the previous token before starting a new
// load so a slow load can never replace a newer one.
type Token struct {
	ID string

	active atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
}

// NewToken returns an active token whose context is derived from parent.
func NewToken(parent context.Context) *Token {
	ctx, cancel := context.WithCancel(parent)
	t := &Token{
		ID:     uuid.New().String(),
		ctx:    ctx,
		cancel: cancel,
	}
	t.active.Store(true)
	return t
}

// Active reports whether the load is still wanted.
func (t *Token) Active() bool {
	return t != nil && t.active.Load() && t.ctx.Err() == nil
}

// Cancel marks the token inactive and cancels its context. Safe to call
// more than once and on a nil token.
func (t *Token) Cancel() {
	if t == nil {
		return
	}
	t.active.Store(false)
	t.cancel()
}

// Context is cancelled together with the token.
func (t *Token) Context() context.Context {
	return t.ctx
}

// String returns a short form of the ID for logs.
func (t *Token) String() string {
	if t == nil {
		return "<nil>"
	}
	if len(t.ID) > 8 {
		return t.ID[:8]
	}
	return t.ID
}
