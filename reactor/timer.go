package reactor

import (
	"container/heap"
	"time"
)

// timerWatcher is a single after/repeat timer armed on a Reactor
// (spec §4.3). Repeat coalescing is permitted: if the loop is busy past
// several due instants, only one callback fires per Run iteration.
type timerWatcher struct {
	due    time.Time
	repeat time.Duration
	cb     func()
	active bool
	index  int // heap index, maintained by container/heap
}

// TimerWatcher is the handle returned to callers for Stop/Reset. It has
// no Ref/Unref: a pending timer always keeps Run alive.
type TimerWatcher struct {
	r *Reactor
	w *timerWatcher
}

func (tw *TimerWatcher) referenced() bool { return tw.w.active }

func (tw *TimerWatcher) Stop() {
	tw.r.mu.Lock()
	defer tw.r.mu.Unlock()
	if !tw.w.active {
		return
	}
	tw.w.active = false
	tw.r.timers.remove(tw.w)
}

// Reset re-arms the watcher with a new due time computed from now.
func (tw *TimerWatcher) Reset(after time.Duration) {
	tw.r.mu.Lock()
	defer tw.r.mu.Unlock()
	if tw.w.active {
		tw.r.timers.remove(tw.w)
	}
	tw.w.active = true
	tw.w.due = time.Now().Add(after)
	heap.Push(&tw.r.timers, tw.w)
	tw.r.wake()
}

// After arms a one-shot timer that calls cb when d elapses. A timer
// watcher does not keep the reactor alive once it has fired unless
// Repeat was used; callers that want liveness across the wait use Ref.
func (r *Reactor) After(d time.Duration, cb func()) *TimerWatcher {
	return r.arm(d, 0, cb)
}

// Repeat arms a recurring timer firing every d, starting after d.
func (r *Reactor) Repeat(d time.Duration, cb func()) *TimerWatcher {
	return r.arm(d, d, cb)
}

func (r *Reactor) arm(after, repeat time.Duration, cb func()) *TimerWatcher {
	w := &timerWatcher{due: time.Now().Add(after), repeat: repeat, cb: cb, active: true}
	r.mu.Lock()
	heap.Push(&r.timers, w)
	r.mu.Unlock()
	r.wake()
	return &TimerWatcher{r: r, w: w}
}

// waitNext returns a channel that fires at the earliest due timer and a
// fire function that executes (and, for repeats, re-arms) it. Timer
// callbacks never fire earlier than their programmed instant.
func (r *Reactor) waitNext() (<-chan struct{}, func()) {
	r.mu.Lock()
	if r.timers.Len() == 0 {
		r.mu.Unlock()
		return nil, nil
	}
	next := r.timers[0]
	r.mu.Unlock()

	d := time.Until(next.due)
	if d < 0 {
		d = 0
	}
	ch := make(chan struct{}, 1)
	t := time.AfterFunc(d, func() { ch <- struct{}{} })

	return ch, func() {
		t.Stop()
		r.mu.Lock()
		if r.timers.Len() == 0 || r.timers[0] != next || !next.active {
			r.mu.Unlock()
			return
		}
		heap.Pop(&r.timers)
		r.mu.Unlock()

		next.cb()

		r.mu.Lock()
		if next.active && next.repeat > 0 {
			next.due = time.Now().Add(next.repeat)
			heap.Push(&r.timers, next)
		} else {
			next.active = false
		}
		r.mu.Unlock()
	}
}

// timerHeap implements container/heap.Interface ordered by due time.
type timerHeap []*timerWatcher

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].due.Before(h[j].due) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}

func (h *timerHeap) Push(x any) {
	w := x.(*timerWatcher)
	w.index = len(*h)
	*h = append(*h, w)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*h = old[:n-1]
	return w
}

func (h *timerHeap) remove(w *timerWatcher) {
	if w.index < 0 || w.index >= len(*h) || (*h)[w.index] != w {
		return
	}
	heap.Remove(h, w.index)
}
