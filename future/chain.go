package future

// ChainFunc transforms a fulfilled prev future into a new future to
// link onto the chain, or returns an error to fail the chain outright
// without producing a next future of its own.
type ChainFunc func(prev *Future) (*Future, error)

// AndThen builds a chained future (spec §4.5's "chained" variant): once
// prev fulfills successfully, fn runs and its returned future's result
// becomes the chain's result; a failed prev propagates its error
// directly without invoking fn.
//
// Grounded on original_source/.../composite_future.c's prev/next
// linkage: prev is held only by this goroutine's closure capture, so
// once it resolves and fn has run, nothing in the returned future keeps
// a strong field pointing back to prev — the retain cycle the C
// implementation breaks explicitly with an atomic weak back-pointer
// never forms here in the first place, since Go's collector reclaims
// prev once this goroutine and its caller both drop it.
func AndThen(prev *Future, fn ChainFunc) *Future {
	return chain(prev, fn, true)
}

// OrThen is AndThen's inverse: fn runs only when prev fails, letting a
// handler retry or substitute a fallback future; a successful prev
// propagates directly.
func OrThen(prev *Future, fn ChainFunc) *Future {
	return chain(prev, fn, false)
}

func chain(prev *Future, fn ChainFunc, onSuccess bool) *Future {
	next := New()
	go func() {
		res, err := prev.Get()
		if (err == nil) != onSuccess {
			propagate(next, res, err)
			return
		}
		child, ferr := fn(prev)
		if ferr != nil {
			next.FulfillError(0, ferr.Error())
			return
		}
		cres, cerr := child.Get()
		propagate(next, cres, cerr)
	}()
	return next
}

func propagate(next *Future, res Result, err error) {
	if err != nil {
		next.FulfillError(res.Errnum, res.ErrText)
		return
	}
	next.Fulfill(res.Payload)
}
