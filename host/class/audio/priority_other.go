//go:build !linux

package audio

import "runtime"

// escalatePriority pins the calling goroutine to its thread.
func escalatePriority() {
	runtime.LockOSThread()
}
