//go:build !debug

// Package check holds invariant assertions that are compiled in only for
// debug builds (go build -tags debug).
package check

// Assert is a no-op in release builds.
func Assert(_ bool, _ string) {}

// Assertf is a no-op in release builds.
func Assertf(_ bool, _ string, _ ...any) {}
