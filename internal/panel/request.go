package panel

import (
	"context"
	"errors"
)

var (
	ErrNotInitialized = errors.New("panel not initialized")
	ErrTornDown       = errors.New("panel torn down")
)

// Request is the pending result of one refresh.
type Request struct {
	Generation uint64
	Trigger    Trigger

	done    chan struct{}
	err     error
	applied bool
}

func newRequest(gen uint64, trigger Trigger) *Request {
	return &Request{
		Generation: gen,
		Trigger:    trigger,
		done:       make(chan struct{}),
	}
}

func failedRequest(trigger Trigger, err error) *Request {
	r := newRequest(0, trigger)
	r.finish(err, false)
	return r
}

func (r *Request) finish(err error, applied bool) {
	r.err = err
	r.applied = applied
	close(r.done)
}

// Done is closed when the RPC call has completed, successfully or not.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Err is the failure of the call. Only valid after Done is closed.
func (r *Request) Err() error {
	<-r.done
	return r.err
}

// Applied reports whether the response replaced the store contents. A
// successful response is not applied when a newer refresh was started or
// the panel was torn down while it was in flight.
func (r *Request) Applied() bool {
	<-r.done
	return r.applied
}

// Wait blocks until the request completes or ctx is done.
func (r *Request) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return r.err
	}
}
