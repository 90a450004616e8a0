// Package util holds small slice helpers shared by the protocol packages.
package util

import "fmt"

// CloneSlice clones src into a new slice of cloneSize elements.
// A cloneSize of 0 uses the length of src.
func CloneSlice[T any](src []T, cloneSize int) []T {
	if cloneSize == 0 {
		cloneSize = len(src)
	}
	clone := make([]T, cloneSize)
	copy(clone, src)

	return clone
}

// HexDump formats b as space separated upper-case hex pairs for log output.
func HexDump(b []byte) string {
	if len(b) == 0 {
		return ""
	}

	return fmt.Sprintf("% X", b)
}
