//go:build linux

package audio

import (
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/ardnew/softuac/pkg"
)

// completionNice is the scheduling priority requested for a stream's
// completion worker.
const completionNice = -10

// escalatePriority pins the calling goroutine to its thread and raises the
// thread's scheduling priority. Failure, typically for lack of privilege,
// leaves the worker at its default priority.
func escalatePriority() {
	runtime.LockOSThread()
	tid := unix.Gettid()
	if err := unix.Setpriority(unix.PRIO_PROCESS, tid, completionNice); err != nil {
		pkg.LogDebug(pkg.ComponentStream, "completion priority unchanged",
			"tid", tid,
			"error", err)
		return
	}
	pkg.LogDebug(pkg.ComponentStream, "completion priority raised",
		"tid", tid,
		"nice", completionNice)
}
