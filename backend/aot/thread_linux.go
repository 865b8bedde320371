//go:build linux

package aot

import "golang.org/x/sys/unix"

func threadID() int {
	return unix.Gettid()
}
