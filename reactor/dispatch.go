package reactor

// MessageSource blocks until the next inbound message is available (or
// stop fires), returning it opaquely — the reactor does not know about
// message.Message itself; the handle package supplies the decode step.
// This indirection keeps reactor free of a dependency on message/handle,
// matching the teacher's layering (transport has no dependency on the
// higher xact/ or ais/ packages that interpret its bytes).
type MessageSource func(stop <-chan struct{}) (msg any, ok bool)

// MessageWatcher delivers decoded messages to cb on the reactor's own
// goroutine, preserving per-source arrival order (spec §4.3's ordering
// guarantee "for a given fd or socket, callbacks fire in the order
// events were reported").
type MessageWatcher struct {
	*watcherHandle
	src MessageSource
	cb  func(msg any)
}

// NewMessageWatcher adapts a MessageSource into a watcher. The handle
// package uses this to pump its transport's Recv loop through dispatch.
func (r *Reactor) NewMessageWatcher(src MessageSource, cb func(msg any)) *MessageWatcher {
	return &MessageWatcher{watcherHandle: newWatcherHandle(r), src: src, cb: cb}
}

// Start begins pulling messages on a dedicated goroutine; each message is
// delivered on the reactor's own goroutine via post, one at a time.
func (w *MessageWatcher) Start() {
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
			msg, ok := w.src(stop) // fresh msg/ok each iteration
			select {
			case <-stop:
				return
			default:
			}
			if !ok {
				w.Stop()
				return
			}
			w.r.post(func() { w.cb(msg) })
		}
	}()
}

// Stop is idempotent.
func (w *MessageWatcher) Stop() { w.unregister() }
