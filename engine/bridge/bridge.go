// Package bridge lets blocking callers drive a ProtocolClient. Every operation is
// handed to the bridge's own goroutine, which owns the client for the lifetime
// of the session, and the caller blocks until the operation has completed.
package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gitlab.com/driverk/driverk"
	"golang.org/x/time/rate"
)

// Operation runs on the bridge goroutine with the session context and client
type Operation func(ctx context.Context, c driverk.ProtocolClient) (interface{}, error)

// CloserFunc tears down the remote session once the bridge has stopped
type CloserFunc func(ctx context.Context) error

type result struct {
	value interface{}
	err   error
}

type call struct {
	op     Operation
	result chan result
}

// Bridge owns one session. Callers are serialized, so only one operation is ever in
// flight against the session regardless of how many goroutines use the bridge.
type Bridge struct {
	id           int64
	client       driverk.ProtocolClient
	callLock     sync.Mutex // one caller at a time
	calls        chan *call
	ctx          context.Context // session context, cancelled on Close
	cancel       context.CancelFunc
	exitCh       chan struct{} // closed when Close is called
	doneCh       chan struct{} // closed when the run loop has returned
	closed       int32
	closeTimeout time.Duration
	limiter      *rate.Limiter
	closer       CloserFunc
	inFlight     int32
}

// Option configures a Bridge
type Option func(b *Bridge)

// WithCloseTimeout bounds how long Close waits for a running operation
func WithCloseTimeout(timeout time.Duration) Option {
	return func(b *Bridge) {
		if timeout > 0 {
			b.closeTimeout = timeout
		}
	}
}

// WithRateLimit paces operations entering the session
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(b *Bridge) {
		if limit <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithCloser is called during Close after the run loop stopped (or timed out)
func WithCloser(closer CloserFunc) Option {
	return func(b *Bridge) {
		b.closer = closer
	}
}

// New starts the bridge goroutine for client
func New(client driverk.ProtocolClient, opts ...Option) *Bridge {
	b := &Bridge{
		id:           driverk.GetBridgeID(),
		client:       client,
		calls:        make(chan *call),
		exitCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		closeTimeout: driverk.DefaultCloseTimeout,
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	log.Debug().Int64("bridge_id", b.id).Msg("bridge started")
	return b
}

// ID of this bridge
func (b *Bridge) ID() int64 {
	return b.id
}

// IsClosed answers if Close has been called
func (b *Bridge) IsClosed() bool {
	return atomic.LoadInt32(&b.closed) == 1
}

// Run op on the bridge and block until it completes. The result and error are
// returned exactly as op produced them. After Close, ErrSessionClosed.
func Run[T any](b *Bridge, op func(ctx context.Context, c driverk.ProtocolClient) (T, error)) (T, error) {
	v, err := b.submit(func(ctx context.Context, c driverk.ProtocolClient) (interface{}, error) {
		return op(ctx, c)
	})
	t, _ := v.(T)
	return t, err
}

// Do is Run for operations without a result
func (b *Bridge) Do(op func(ctx context.Context, c driverk.ProtocolClient) error) error {
	_, err := b.submit(func(ctx context.Context, c driverk.ProtocolClient) (interface{}, error) {
		return nil, op(ctx, c)
	})
	return err
}

func (b *Bridge) submit(op Operation) (interface{}, error) {
	b.callLock.Lock()
	defer b.callLock.Unlock()

	if b.IsClosed() {
		return nil, driverk.ErrSessionClosed
	}

	c := &call{op: op, result: make(chan result, 1)}
	select {
	case b.calls <- c:
	case <-b.exitCh:
		return nil, driverk.ErrSessionClosed
	}

	select {
	case r := <-c.result:
		return b.translate(r)
	case <-b.exitCh:
		// the operation may have finished at the same moment we closed
		select {
		case r := <-c.result:
			return b.translate(r)
		default:
		}
		return nil, driverk.ErrSessionClosed
	}
}

// operations cancelled because we closed the session report the closure
func (b *Bridge) translate(r result) (interface{}, error) {
	if r.err != nil && b.IsClosed() && errors.Is(r.err, context.Canceled) {
		return r.value, driverk.ErrSessionClosed
	}
	return r.value, r.err
}

func (b *Bridge) run() {
	defer close(b.doneCh)
	for {
		select {
		case <-b.exitCh:
			return
		case c := <-b.calls:
			c.result <- b.execute(c.op)
		}
	}
}

func (b *Bridge) execute(op Operation) (r result) {
	if b.limiter != nil {
		if err := b.limiter.Wait(b.ctx); err != nil {
			return result{err: driverk.ErrSessionClosed}
		}
	}

	atomic.StoreInt32(&b.inFlight, 1)
	defer atomic.StoreInt32(&b.inFlight, 0)
	defer func() {
		if p := recover(); p != nil {
			log.Error().Int64("bridge_id", b.id).Interface("panic", p).Msg("bridge operation panicked")
			r = result{err: errors.Errorf("bridge operation panicked: %v", p)}
		}
	}()

	v, err := op(b.ctx, b.client)
	return result{value: v, err: err}
}

// Close the bridge. Pending and future operations fail with ErrSessionClosed and
// a running operation sees its context cancelled. Close waits at most the close
// timeout for the run loop, then calls the closer. Safe to call more than once.
func (b *Bridge) Close() error {
	if !atomic.CompareAndSwapInt32(&b.closed, 0, 1) {
		return nil
	}
	close(b.exitCh)
	b.cancel()

	var err error
	timer := time.NewTimer(b.closeTimeout)
	defer timer.Stop()

	select {
	case <-b.doneCh:
	case <-timer.C:
		log.Warn().Int64("bridge_id", b.id).Dur("timeout", b.closeTimeout).Msg("operation still running after close timeout")
		err = driverk.ErrCloseTimedOut
	}

	if b.closer != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), b.closeTimeout)
		defer cancel()
		if cerr := b.closer(closeCtx); cerr != nil {
			log.Warn().Int64("bridge_id", b.id).Err(cerr).Msg("failed to close session")
			if err == nil {
				err = errors.Wrap(cerr, "closing session")
			}
		}
	}

	log.Debug().Int64("bridge_id", b.id).Msg("bridge closed")
	return err
}

// Busy answers if an operation is currently executing
func (b *Bridge) Busy() bool {
	return atomic.LoadInt32(&b.inFlight) == 1
}
