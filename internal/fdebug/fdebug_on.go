//go:build debug

package fdebug

import "fmt"

func ON() bool { return true }

func Assert(cond bool, a ...any) {
	if !cond {
		panic(fmt.Sprint(a...))
	}
}

func Assertf(cond bool, format string, a ...any) {
	if !cond {
		panic(fmt.Sprintf(format, a...))
	}
}

func AssertNoErr(err error) {
	if err != nil {
		panic(err)
	}
}

func AssertFunc(f func() bool, a ...any) {
	if !f() {
		panic(fmt.Sprint(a...))
	}
}
