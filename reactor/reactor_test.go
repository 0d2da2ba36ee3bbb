package reactor_test

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/flux-framework/flux-go/reactor"
)

var _ = Describe("Reactor", func() {
	It("exits Run immediately when nothing is active", func() {
		r := reactor.New()
		done := make(chan error, 1)
		go func() { done <- r.Run() }()
		Eventually(done, time.Second).Should(Receive(BeNil()))
	})

	It("stays alive while a completion reference is held", func() {
		r := reactor.New()
		r.Ref("pending-commit")

		done := make(chan error, 1)
		go func() { done <- r.Run() }()

		Consistently(done, 50*time.Millisecond).ShouldNot(Receive())

		r.Unref("pending-commit")
		Eventually(done, time.Second).Should(Receive(BeNil()))
	})

	It("never fires a one-shot timer earlier than its due time", func() {
		r := reactor.New()
		start := time.Now()
		fired := make(chan time.Time, 1)
		r.After(50*time.Millisecond, func() { fired <- time.Now() })

		go r.Run()

		var when time.Time
		Eventually(fired, time.Second).Should(Receive(&when))
		Expect(when.Sub(start)).To(BeNumerically(">=", 50*time.Millisecond))
	})

	It("fires a repeat timer multiple times until stopped", func() {
		r := reactor.New()
		count := make(chan struct{}, 10)
		tw := r.Repeat(10*time.Millisecond, func() { count <- struct{}{} })

		go r.Run()

		for i := 0; i < 3; i++ {
			Eventually(count, time.Second).Should(Receive())
		}
		tw.Stop()
		r.Stop()
	})

	It("unwinds Run with the error passed to StopWithError", func() {
		r := reactor.New()
		r.Ref("hold")
		sentinel := errors.New("boom")

		done := make(chan error, 1)
		go func() { done <- r.Run() }()

		r.StopWithError(sentinel)

		var err error
		Eventually(done, time.Second).Should(Receive(&err))
		Expect(errors.Is(err, sentinel)).To(BeTrue())
	})

	It("delivers IOWatcher events in arrival order on the reactor goroutine", func() {
		r := reactor.New()
		r.Ref("hold")

		var seq []int
		results := make(chan struct{})
		n := 0
		w := r.NewIOWatcher(func(stop <-chan struct{}) (reactor.Revents, bool) {
			n++
			if n > 5 {
				<-stop
				return 0, false
			}
			return reactor.RevRead, true
		}, func(reactor.Revents) {
			seq = append(seq, len(seq)+1)
			if len(seq) == 5 {
				close(results)
			}
		})
		w.Start()
		go r.Run()

		Eventually(results, time.Second).Should(BeClosed())
		Expect(seq).To(Equal([]int{1, 2, 3, 4, 5}))

		w.Stop()
		r.Unref("hold")
	})

	It("delivers MessageWatcher values without aliasing between iterations", func() {
		r := reactor.New()
		r.Ref("hold")

		msgs := []any{"one", "two", "three"}
		idx := 0
		received := make(chan any, len(msgs))

		mw := r.NewMessageWatcher(func(stop <-chan struct{}) (any, bool) {
			if idx >= len(msgs) {
				<-stop
				return nil, false
			}
			m := msgs[idx]
			idx++
			return m, true
		}, func(m any) { received <- m })
		mw.Start()
		go r.Run()

		var got []any
		for i := 0; i < len(msgs); i++ {
			var m any
			Eventually(received, time.Second).Should(Receive(&m))
			got = append(got, m)
		}
		Expect(got).To(Equal(msgs))

		mw.Stop()
		r.Unref("hold")
	})

	It("ignores a second Stop and a Ref/Unref pair that nets to zero", func() {
		r := reactor.New()
		r.Ref("x")
		r.Unref("x")

		done := make(chan error, 1)
		go func() { done <- r.Run() }()
		Eventually(done, time.Second).Should(Receive(BeNil()))

		Expect(func() { r.Stop(); r.Stop() }).NotTo(Panic())
	})
})
