//go:build !linux

package aot

// threadID has no portable equivalent outside Linux.
func threadID() int {
	return -1
}
