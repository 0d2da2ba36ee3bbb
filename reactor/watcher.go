package reactor

import "sync"

// Revents is the event mask reported by an IOWatcher, mirroring the
// classic poll(2) bits the teacher's transport layer reasons about
// (readable/writable/error) without requiring a raw fd — Go's runtime
// poller is reused underneath whatever ReadyFunc the caller supplies.
type Revents int

const (
	RevRead Revents = 1 << iota
	RevWrite
	RevError
)

// watcherHandle is the common shape every watcher kind registers with
// the Reactor so activeCount can decide liveness.
type watcherHandle struct {
	r      *Reactor
	mu     sync.Mutex
	ref    bool // watchers start referenced; Unref lets the loop exit around them
	on     bool
	stopCh chan struct{}
}

func newWatcherHandle(r *Reactor) *watcherHandle {
	return &watcherHandle{r: r, ref: true}
}

func (h *watcherHandle) referenced() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.on && h.ref
}

func (h *watcherHandle) register() {
	h.mu.Lock()
	h.on = true
	h.mu.Unlock()
	h.r.mu.Lock()
	h.r.watchers[h] = struct{}{}
	h.r.mu.Unlock()
	h.r.wake()
}

func (h *watcherHandle) unregister() {
	h.mu.Lock()
	if !h.on {
		h.mu.Unlock()
		return
	}
	h.on = false
	stopCh := h.stopCh
	h.mu.Unlock()
	if stopCh != nil {
		close(stopCh)
	}
	h.r.mu.Lock()
	delete(h.r.watchers, h)
	h.r.mu.Unlock()
	h.r.wake()
}

func (h *watcherHandle) Ref() {
	h.mu.Lock()
	h.ref = true
	h.mu.Unlock()
	h.r.wake()
}

func (h *watcherHandle) Unref() {
	h.mu.Lock()
	h.ref = false
	h.mu.Unlock()
	h.r.wake()
}

// ReadyFunc blocks until the underlying source is ready or stop fires,
// returning the observed events and whether the watcher should keep
// polling (false means the source closed/errored permanently).
type ReadyFunc func(stop <-chan struct{}) (Revents, bool)

// IOWatcher polls an arbitrary readiness source (a transport connection,
// a pipe, anything exposing a blocking wait) and delivers events to cb
// on the reactor's own goroutine, in the order they were observed —
// ordering between different watchers is not promised (spec §4.3).
type IOWatcher struct {
	*watcherHandle
	poll ReadyFunc
	cb   func(Revents)
}

// NewIOWatcher creates (but does not start) a watcher around poll.
func (r *Reactor) NewIOWatcher(poll ReadyFunc, cb func(Revents)) *IOWatcher {
	return &IOWatcher{watcherHandle: newWatcherHandle(r), poll: poll, cb: cb}
}

// Start begins polling on a dedicated goroutine; events are marshalled
// back onto the reactor loop via post so callbacks never run concurrently
// with other reactor activity.
func (w *IOWatcher) Start() {
	w.mu.Lock()
	if w.on {
		w.mu.Unlock()
		return
	}
	w.stopCh = make(chan struct{})
	stop := w.stopCh
	w.mu.Unlock()
	w.register()

	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			revents, ok := w.poll(stop)
			select {
			case <-stop:
				return
			default:
			}
			w.r.post(func() { w.cb(revents) })
			if !ok {
				w.Stop()
				return
			}
		}
	}()
}

// Stop is idempotent; a stopped watcher is silently skipped thereafter.
func (w *IOWatcher) Stop() { w.unregister() }
