package future

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// CompositeResult reports one named child's outcome inside a WaitAll or
// WaitAny resolution (spec §4.5's "named map of child futures").
type CompositeResult struct {
	Name   string
	Result Result
	Err    error
}

// WaitAll returns a Future that fulfills once every named child has
// fulfilled (successfully or not). The composite's payload-equivalent
// is exposed via AuxGet("results") as a map[string]CompositeResult,
// since a composite has no single wire payload of its own.
//
// Each child is awaited on its own goroutine via child.Get() — reusing
// Get's private-reactor fallback rather than re-deriving reactor
// ownership here — with the per-child goroutine fan-out launched
// through golang.org/x/sync/errgroup (SPEC_FULL §2's domain-stack
// wiring), grounded on original_source/.../composite_future.c's
// wait-all semantics.
func WaitAll(children map[string]*Future) *Future {
	parent := New()
	if len(children) == 0 {
		parent.AuxSet("results", map[string]CompositeResult{}, nil)
		parent.Fulfill(nil)
		return parent
	}

	results := make(map[string]CompositeResult, len(children))
	var mu sync.Mutex
	remaining := len(children)

	var g errgroup.Group
	for name, child := range children {
		name, child := name, child
		g.Go(func() error {
			res, err := child.Get()
			mu.Lock()
			results[name] = CompositeResult{Name: name, Result: res, Err: err}
			remaining--
			done := remaining == 0
			mu.Unlock()
			if done {
				parent.AuxSet("results", results, nil)
				parent.Fulfill(nil)
			}
			return nil
		})
	}
	go g.Wait() //nolint:errcheck // child.Get never returns an error from this func

	return parent
}

// WaitAny returns a Future that fulfills as soon as any one named child
// fulfills; AuxGet("first") on the returned future yields the winning
// CompositeResult.
func WaitAny(children map[string]*Future) *Future {
	parent := New()
	if len(children) == 0 {
		parent.FulfillError(0, "wait_any: no children")
		return parent
	}

	var once sync.Once
	var g errgroup.Group
	for name, child := range children {
		name, child := name, child
		g.Go(func() error {
			res, err := child.Get()
			once.Do(func() {
				parent.AuxSet("first", CompositeResult{Name: name, Result: res, Err: err}, nil)
				parent.Fulfill(nil)
			})
			return nil
		})
	}
	go g.Wait() //nolint:errcheck

	return parent
}
