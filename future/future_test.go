package future_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/flux-framework/flux-go/future"
)

var _ = Describe("Future", func() {
	It("Get blocks until Fulfill and returns the payload", func() {
		f := future.New()
		go func() {
			time.Sleep(10 * time.Millisecond)
			Expect(f.Fulfill([]byte("done"))).To(Succeed())
		}()

		res, err := f.Get()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(res.Payload)).To(Equal("done"))
	})

	It("returns immediately from Get if already fulfilled", func() {
		f := future.New()
		Expect(f.Fulfill([]byte("x"))).To(Succeed())

		res, err := f.Get()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(res.Payload)).To(Equal("x"))
	})

	It("rejects a second Fulfill on a single-shot future", func() {
		f := future.New()
		Expect(f.Fulfill([]byte("first"))).To(Succeed())
		Expect(f.Fulfill([]byte("second"))).To(HaveOccurred())
	})

	It("surfaces FulfillError through Get", func() {
		f := future.New()
		Expect(f.FulfillError(7, "boom")).To(Succeed())

		_, err := f.Get()
		Expect(err).To(HaveOccurred())
	})

	It("times out via GetWithTimeout when never fulfilled", func() {
		f := future.New()
		_, err := f.GetWithTimeout(20 * time.Millisecond)
		Expect(err).To(HaveOccurred())
	})

	It("allows a streaming future to be fulfilled more than once", func() {
		f := future.NewStreaming()
		Expect(f.Fulfill([]byte("one"))).To(Succeed())
		res, err := f.Get()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(res.Payload)).To(Equal("one"))

		Expect(f.Fulfill([]byte("two"))).To(Succeed())
	})

	It("destroys aux data on the final Decref", func() {
		f := future.New()
		destroyed := false
		f.AuxSet("k", "v", func(any) { destroyed = true })
		f.Incref()
		f.Decref()
		Expect(destroyed).To(BeFalse())
		f.Decref()
		Expect(destroyed).To(BeTrue())
	})

	It("invokes Cancel's installed function", func() {
		f := future.New()
		called := false
		f.SetCancel(func() error { called = true; return nil })
		Expect(f.Cancel()).To(Succeed())
		Expect(called).To(BeTrue())
	})
})

var _ = Describe("Composite futures", func() {
	It("WaitAll resolves once every child has fulfilled", func() {
		a, b := future.New(), future.New()
		go func() {
			time.Sleep(5 * time.Millisecond)
			a.Fulfill([]byte("a"))
		}()
		go func() {
			time.Sleep(10 * time.Millisecond)
			b.Fulfill([]byte("b"))
		}()

		all := future.WaitAll(map[string]*future.Future{"a": a, "b": b})
		_, err := all.Get()
		Expect(err).NotTo(HaveOccurred())

		v, ok := all.AuxGet("results")
		Expect(ok).To(BeTrue())
		results := v.(map[string]future.CompositeResult)
		Expect(results).To(HaveLen(2))
		Expect(string(results["a"].Result.Payload)).To(Equal("a"))
		Expect(string(results["b"].Result.Payload)).To(Equal("b"))
	})

	It("WaitAll resolves immediately with zero children", func() {
		all := future.WaitAll(map[string]*future.Future{})
		_, err := all.Get()
		Expect(err).NotTo(HaveOccurred())
	})

	It("WaitAny resolves with the first child to fulfill", func() {
		slow, fast := future.New(), future.New()
		go func() {
			time.Sleep(50 * time.Millisecond)
			slow.Fulfill([]byte("slow"))
		}()
		go func() {
			time.Sleep(5 * time.Millisecond)
			fast.Fulfill([]byte("fast"))
		}()

		any := future.WaitAny(map[string]*future.Future{"slow": slow, "fast": fast})
		_, err := any.Get()
		Expect(err).NotTo(HaveOccurred())

		v, ok := any.AuxGet("first")
		Expect(ok).To(BeTrue())
		Expect(v.(future.CompositeResult).Name).To(Equal("fast"))
	})
})

var _ = Describe("Chained futures", func() {
	It("AndThen runs its function only when prev succeeds", func() {
		prev := future.New()
		go prev.Fulfill([]byte("first"))

		chained := future.AndThen(prev, func(p *future.Future) (*future.Future, error) {
			res, _ := p.Get()
			next := future.New()
			go next.Fulfill(append(res.Payload, []byte("-second")...))
			return next, nil
		})

		res, err := chained.Get()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(res.Payload)).To(Equal("first-second"))
	})

	It("AndThen propagates a prev failure without invoking fn", func() {
		prev := future.New()
		go prev.FulfillError(3, "nope")

		called := false
		chained := future.AndThen(prev, func(p *future.Future) (*future.Future, error) {
			called = true
			return future.New(), nil
		})

		_, err := chained.Get()
		Expect(err).To(HaveOccurred())
		Expect(called).To(BeFalse())
	})

	It("OrThen runs its function only when prev fails", func() {
		prev := future.New()
		go prev.FulfillError(1, "fail")

		chained := future.OrThen(prev, func(p *future.Future) (*future.Future, error) {
			fallback := future.New()
			go fallback.Fulfill([]byte("fallback"))
			return fallback, nil
		})

		res, err := chained.Get()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(res.Payload)).To(Equal("fallback"))
	})
})
