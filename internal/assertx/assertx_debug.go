//go:build organ_debug

package assertx

import "fmt"

func assertNonNegative(name string, v int) {
	if v < 0 {
		panic(fmt.Sprintf("assertx: %s went negative: %d", name, v))
	}
}

func assertBoundedLen(name string, length, max int) {
	if length > max {
		panic(fmt.Sprintf("assertx: %s length %d exceeds bound %d", name, length, max))
	}
}
