// Package future provides a single-value result shared between the
// goroutine producing it and the caller waiting on it, the same
// notify-channel-plus-stored-result shape the connection layer uses
// to correlate a call serial with its reply.
package future

import "context"

// A Future[T] is resolved exactly once, by either Resolve or Fail.
// Wait returns the resolved value, the failure, or ctx's error,
// whichever happens first.
type Future[T any] struct {
	notify chan struct{}
	val    T
	err    error
}

// New returns an unresolved future.
func New[T any]() *Future[T] {
	return &Future[T]{notify: make(chan struct{})}
}

// Resolve completes the future successfully. It must be called at
// most once.
func (f *Future[T]) Resolve(v T) {
	f.val = v
	close(f.notify)
}

// Fail completes the future with an error. It must be called at most
// once, and never alongside Resolve.
func (f *Future[T]) Fail(err error) {
	f.err = err
	close(f.notify)
}

// Wait blocks until the future is resolved or ctx is done, whichever
// comes first. A ctx cancellation after resolution still returns the
// resolved value: once the notify channel has fired, the result is
// final.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.notify:
		return f.val, f.err
	case <-ctx.Done():
		select {
		case <-f.notify:
			return f.val, f.err
		default:
		}
		var zero T
		return zero, ctx.Err()
	}
}

// Done reports whether the future has already been resolved, without
// blocking.
func (f *Future[T]) Done() bool {
	select {
	case <-f.notify:
		return true
	default:
		return false
	}
}
