// Package prof collects runtime profiles around a streaming session.
//
// Profiling is compiled in only with the "profile" build tag:
//
//	go build -tags profile ./cmd/uacctl
//
// Without the tag every function is a no-op, so callers keep their
// profiling hooks in place at no cost.
//
// # Sessions
//
// A [Session] starts CPU profiling on [Start] and writes the snapshot
// profiles named in its [Options] on [Session.Stop]:
//
//	s, err := prof.Start(prof.Options{
//	    CPU:    "cpu.prof",
//	    Heap:   "heap.prof",
//	    Block:  "block.prof",
//	})
//	if err != nil {
//	    return err
//	}
//	defer s.Stop()
//
// Block and mutex profiles enable their runtime sampling when the session
// starts and disable it again when it stops. Only one session can profile
// the CPU at a time; a second [Start] with a CPU path returns
// [ErrCPUProfileActive].
//
// # HTTP Endpoints
//
// [Register] mounts the [net/http/pprof] handlers under /debug/pprof/ on a
// caller-provided mux, which lets a metrics server expose them.
package prof
