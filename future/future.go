// Package future implements the async result type described in spec
// §4.5: single-shot or streaming fulfillment, a blocking Get that
// stands up a private reactor when none is bound, Then continuations
// that run on whichever reactor is bound, and reference counting with
// callback-safe destruction. Grounded on the teacher's cmn/atomic
// wrapper style for refcounting. composite.go and chain.go do not use
// Then; they wait on each child with Get from their own goroutines.
package future

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/flux-framework/flux-go/internal/ferrors"
	"github.com/flux-framework/flux-go/internal/flog"
	"github.com/flux-framework/flux-go/message"
	"github.com/flux-framework/flux-go/reactor"
)

// Result is a future's fulfilled value: either a payload or an error
// pair (errnum, text), matching spec §4.5's "fulfill with (result,
// free_fn) or with error (errnum, text)" contract. free_fn has no Go
// analogue (the garbage collector owns Payload); it is omitted.
type Result struct {
	Payload []byte
	Errnum  int32
	ErrText string
	IsError bool
}

func (r Result) err() error {
	if !r.IsError {
		return nil
	}
	return ferrors.New(ferrors.Application, r.Errnum, "%s", r.ErrText)
}

type auxEntry struct {
	val     any
	destroy func(any)
}

// CancelFunc sends whatever wire-level cancellation a streaming future's
// producer understands (spec §4.5: "explicitly cancel by sending a
// cancel control on the same matchtag").
type CancelFunc func() error

// Future is the async result primitive. Construct with New or
// NewStreaming; every Future must be released with Decref.
type Future struct {
	log *flog.Logger

	mu        sync.Mutex
	streaming bool
	hasResult bool
	res       Result

	r              *reactor.Reactor // bound reactor, set by Then or by a private Get
	privateReactor bool
	waiters        []chan struct{}
	continuations  []func(*Future)

	cancel CancelFunc

	aux  map[string]auxEntry
	refs *atomic.Int32
}

func newFuture(streaming bool) *Future {
	f := &Future{
		log:       flog.Default.With("future"),
		streaming: streaming,
		aux:       make(map[string]auxEntry),
		refs:      new(atomic.Int32),
	}
	f.refs.Store(1)
	return f
}

// New creates a pending single-shot future.
func New() *Future { return newFuture(false) }

// NewStreaming creates a pending streaming future: Fulfill may be called
// more than once, each call waking any Get/Then waiters in turn.
func NewStreaming() *Future { return newFuture(true) }

// SetCancel installs the function Cancel calls to notify the producer
// side (e.g. sending message.NewCancel(matchtag) over a handle).
func (f *Future) SetCancel(cancel CancelFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancel = cancel
}

// Fulfill delivers a successful result. On a single-shot future, a
// second call returns an error; on a streaming future, each call wakes
// waiters again.
func (f *Future) Fulfill(payload []byte) error {
	return f.complete(Result{Payload: payload})
}

// FulfillError delivers a failed result (spec §4.5's "fulfill with error
// (errnum, text)").
func (f *Future) FulfillError(errnum int32, text string) error {
	return f.complete(Result{Errnum: errnum, ErrText: text, IsError: true})
}

func (f *Future) complete(res Result) error {
	f.mu.Lock()
	if f.hasResult && !f.streaming {
		f.mu.Unlock()
		return ferrors.New(ferrors.Application, 0, "future already fulfilled")
	}
	f.res = res
	f.hasResult = true
	waiters := f.waiters
	f.waiters = nil
	conts := append([]func(*Future){}, f.continuations...)
	if !f.streaming {
		f.continuations = nil
	}
	r := f.r
	f.mu.Unlock()

	for _, w := range waiters {
		select {
		case w <- struct{}{}:
		default:
		}
	}
	for _, cb := range conts {
		f.scheduleContinuation(r, cb)
	}
	return nil
}

// scheduleContinuation runs cb on r's own goroutine via its timer queue
// (the same "post ASAP" idiom reactor.After(0, ...) gives every other
// package here), or inline if no reactor is bound — Then binds its
// reactor before registering a continuation, so the inline path only
// fires when Then was given a nil reactor.
func (f *Future) scheduleContinuation(r *reactor.Reactor, cb func(*Future)) {
	if r == nil {
		cb(f)
		return
	}
	r.Ref("future-continuation")
	r.After(0, func() {
		defer r.Unref("future-continuation")
		cb(f)
	})
}

// Then registers cb to run on r once the future is fulfilled — immediately
// (scheduled on r) if already fulfilled, or on the next Fulfill
// otherwise. r becomes the future's bound reactor if none was set.
func (f *Future) Then(r *reactor.Reactor, cb func(*Future)) {
	f.mu.Lock()
	if f.r == nil {
		f.r = r
	}
	ready := f.hasResult
	if !ready || f.streaming {
		f.continuations = append(f.continuations, cb)
	}
	f.mu.Unlock()
	if ready {
		f.scheduleContinuation(r, cb)
	}
}

// Get blocks until the future is fulfilled, standing up a private
// reactor for the duration of the wait if none is bound yet (spec
// §4.5/§9: "this propagation of reactor identity to child futures is
// explicit so that composite and chained futures do not accidentally
// execute callbacks on a reactor that is no longer running").
func (f *Future) Get() (Result, error) {
	f.mu.Lock()
	if f.hasResult {
		res := f.res
		f.mu.Unlock()
		return res, res.err()
	}
	private := f.r == nil
	if private {
		f.r = reactor.New()
		f.privateReactor = true
	}
	r := f.r
	ch := make(chan struct{}, 1)
	f.waiters = append(f.waiters, ch)
	f.mu.Unlock()

	if private {
		r.Ref("get")
		go r.Run()
	}

	<-ch

	if private {
		r.Unref("get")
		<-r.Done()
		f.mu.Lock()
		if f.privateReactor {
			f.r = nil
			f.privateReactor = false
		}
		f.mu.Unlock()
	}

	f.mu.Lock()
	res := f.res
	f.mu.Unlock()
	return res, res.err()
}

// GetWithTimeout blocks like Get but fails with a Timeout error if d
// elapses first.
func (f *Future) GetWithTimeout(d time.Duration) (Result, error) {
	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := f.Get()
		done <- outcome{res, err}
	}()
	select {
	case o := <-done:
		return o.res, o.err
	case <-time.After(d):
		return Result{}, ferrors.New(ferrors.Timeout, 0, "ETIMEDOUT: future not fulfilled within %s", d)
	}
}

// Cancel sends the wire-level cancel request via the installed
// CancelFunc. Per spec §4.5, the service still terminates the stream
// with its own error response; Cancel does not fulfill the future
// itself, it only triggers that eventual fulfillment.
func (f *Future) Cancel() error {
	f.mu.Lock()
	cancel := f.cancel
	f.mu.Unlock()
	if cancel == nil {
		return ferrors.New(ferrors.Application, 0, "future has no cancel function installed")
	}
	return cancel()
}

// AuxSet / AuxGet manage future-scoped auxiliary data, destroyed on the
// last Decref (spec §4.5).
func (f *Future) AuxSet(name string, val any, destroy func(any)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if old, ok := f.aux[name]; ok && old.destroy != nil {
		old.destroy(old.val)
	}
	f.aux[name] = auxEntry{val: val, destroy: destroy}
}

func (f *Future) AuxGet(name string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.aux[name]
	if !ok {
		return nil, false
	}
	return e.val, true
}

// Incref returns a borrowed reference to f with the refcount bumped.
func (f *Future) Incref() *Future {
	f.refs.Add(1)
	return f
}

// Decref releases a reference, running aux destructors at zero.
func (f *Future) Decref() {
	if f.refs.Add(-1) == 0 {
		f.mu.Lock()
		aux := f.aux
		f.aux = nil
		f.mu.Unlock()
		for _, e := range aux {
			if e.destroy != nil {
				e.destroy(e.val)
			}
		}
	}
}

// IsCancelMessage reports whether m is a cancel control targeting tag,
// a small helper so handle-layer dispatch can route cancels without
// importing this package's internals.
func IsCancelMessage(m *message.Message, tag uint32) bool {
	got, ok := m.IsCancel()
	return ok && got == tag
}
