//go:build !organ_debug

package assertx

func assertNonNegative(name string, v int) {}

func assertBoundedLen(name string, length, max int) {}
