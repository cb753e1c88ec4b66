//go:build debug

// Package check holds invariant assertions that are compiled in only for
// debug builds (go build -tags debug).
package check

import "fmt"

// Assert panics if cond is false.
func Assert(cond bool, msg string) {
	if !cond {
		panic("meshnode: invariant violated: " + msg)
	}
}

// Assertf panics with a formatted message if cond is false.
func Assertf(cond bool, format string, args ...any) {
	if !cond {
		panic("meshnode: invariant violated: " + fmt.Sprintf(format, args...))
	}
}
