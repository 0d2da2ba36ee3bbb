// Package reactor implements the single-threaded cooperative event loop
// that multiplexes timers, file descriptors, and per-handle message
// dispatch (spec §4.3). A Reactor runs on exactly one goroutine; watcher
// callbacks must never block — they interact with the outside world
// through more watchers or futures.
package reactor

import (
	"sync"

	"github.com/flux-framework/flux-go/internal/flog"
)

// event is an already-fired callback queued for the run loop to execute
// on its own goroutine, preserving single-threaded cooperative semantics
// even though watchers may be armed by other goroutines.
type event struct {
	fire func()
}

// Reactor owns a prepare/check/idle hook set, a timer heap, a set of
// active watchers, and a named completion-reference set that keeps Run
// alive independent of watcher refcount (spec §4.3).
type Reactor struct {
	log *flog.Logger

	mu       sync.Mutex
	watchers map[*watcherHandle]struct{}
	refs     map[string]int // completion references, keyed by name

	timers timerHeap

	events chan event
	stop   chan struct{}
	stopErr error

	prepare []func()
	check   []func()
	idle    []func()

	running bool
	done    chan struct{}
}

// New creates a Reactor. Each handle owns exactly one.
func New() *Reactor {
	return &Reactor{
		log:      flog.Default.With("reactor"),
		watchers: make(map[*watcherHandle]struct{}),
		refs:     make(map[string]int),
		events:   make(chan event, 64),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// OnPrepare/OnCheck/OnIdle register pre-sleep / post-wake hooks, exposed
// for symmetry with spec §4.3's prepare/check/idle watcher pair.
func (r *Reactor) OnPrepare(fn func()) { r.prepare = append(r.prepare, fn) }
func (r *Reactor) OnCheck(fn func())   { r.check = append(r.check, fn) }
func (r *Reactor) OnIdle(fn func())    { r.idle = append(r.idle, fn) }

// Ref/Unref maintain a named completion-reference set. The loop exits
// once this set is empty, no referenced watchers are active, and no
// timers are pending — this is how a handle keeps the loop alive across
// asynchronous work (e.g. an outstanding future) independent of watcher
// refcount.
func (r *Reactor) Ref(name string) {
	r.mu.Lock()
	r.refs[name]++
	r.mu.Unlock()
}

func (r *Reactor) Unref(name string) {
	r.mu.Lock()
	if r.refs[name] > 0 {
		r.refs[name]--
		if r.refs[name] == 0 {
			delete(r.refs, name)
		}
	}
	r.mu.Unlock()
	r.wake()
}

func (r *Reactor) activeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.refs)
	for w := range r.watchers {
		if w.referenced() {
			n++
		}
	}
	if r.timers.Len() > 0 {
		n++
	}
	return n
}

// post queues fn to run on the reactor's own goroutine. Safe to call from
// any goroutine (watcher implementations use this to report readiness).
func (r *Reactor) post(fn func()) {
	select {
	case r.events <- event{fire: fn}:
	case <-r.stop:
	}
}

func (r *Reactor) wake() { r.post(func() {}) }

// Run executes the loop until Stop is called, StopWithError aborts it,
// or there are no active watchers and no completion references.
func (r *Reactor) Run() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		close(r.done)
	}()

	for {
		for _, fn := range r.prepare {
			fn()
		}

		if r.activeCount() == 0 {
			return r.stopErr
		}

		var timerC <-chan struct{}
		var timerFire func()
		if r.timers.Len() > 0 {
			timerC, timerFire = r.waitNext()
		}

		select {
		case <-r.stop:
			for _, fn := range r.check {
				fn()
			}
			return r.stopErr
		case ev := <-r.events:
			ev.fire()
		case <-timerC:
			timerFire()
		}

		for _, fn := range r.check {
			fn()
		}
		if r.activeCount() == 0 && r.timers.Len() == 0 {
			for _, fn := range r.idle {
				fn()
			}
		}
	}
}

// Stop idempotently requests the loop to exit on its next iteration.
func (r *Reactor) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
}

// StopWithError unwinds the loop and causes Run to return err.
func (r *Reactor) StopWithError(err error) {
	r.mu.Lock()
	r.stopErr = err
	r.mu.Unlock()
	r.log.Warningf("stopping with error: %v", err)
	r.Stop()
}

// Done reports whether Run has returned.
func (r *Reactor) Done() <-chan struct{} { return r.done }
