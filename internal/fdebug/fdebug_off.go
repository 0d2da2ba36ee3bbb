//go:build !debug

// Package fdebug provides build-tag gated assertions. With the "debug"
// build tag absent (the default), every function is a zero-cost no-op;
// built with -tags debug, assertions panic on violation.
package fdebug

func ON() bool { return false }

func Assert(_ bool, _ ...any)            {}
func Assertf(_ bool, _ string, _ ...any) {}
func AssertNoErr(_ error)                {}
func AssertFunc(_ func() bool, _ ...any) {}
