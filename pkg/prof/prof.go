//go:build profile

package prof

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	rpprof "runtime/pprof"
	"sync"
)

// Profiling errors.
var (
	// ErrCPUProfileActive indicates CPU profiling is already active.
	ErrCPUProfileActive = errors.New("cpu profile already active")

	// ErrInvalidProfile indicates an invalid or unsupported profile type.
	ErrInvalidProfile = errors.New("invalid profile")
)

// Enabled reports whether profiling support is compiled in.
const Enabled = true

var (
	// cpuMutex protects cpuActive.
	cpuMutex sync.Mutex

	// cpuActive indicates whether a session is profiling the CPU.
	cpuActive bool
)

// Session is an active profiling session.
type Session struct {
	opts    Options
	cpuFile *os.File
	once    sync.Once
	err     error
}

// Start begins a profiling session.
func Start(opts Options) (*Session, error) {
	s := &Session{opts: opts}

	if opts.CPU != "" {
		cpuMutex.Lock()
		defer cpuMutex.Unlock()
		if cpuActive {
			return nil, ErrCPUProfileActive
		}
		f, err := os.Create(opts.CPU)
		if err != nil {
			return nil, err
		}
		if err := rpprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, err
		}
		s.cpuFile = f
		cpuActive = true
	}

	if opts.Block != "" {
		runtime.SetBlockProfileRate(1)
	}
	if opts.Mutex != "" {
		runtime.SetMutexProfileFraction(1)
	}
	return s, nil
}

// Stop ends CPU profiling and writes the snapshot profiles. Later calls
// return the result of the first.
func (s *Session) Stop() error {
	s.once.Do(func() { s.err = s.stop() })
	return s.err
}

func (s *Session) stop() error {
	var errs []error

	if s.cpuFile != nil {
		cpuMutex.Lock()
		rpprof.StopCPUProfile()
		cpuActive = false
		cpuMutex.Unlock()
		errs = append(errs, s.cpuFile.Close())
	}

	for _, snap := range s.opts.snapshots() {
		if err := writeSnapshot(snap.profile, snap.path); err != nil {
			errs = append(errs, fmt.Errorf("%s profile: %w", snap.profile, err))
		}
	}

	if s.opts.Block != "" {
		runtime.SetBlockProfileRate(0)
	}
	if s.opts.Mutex != "" {
		runtime.SetMutexProfileFraction(0)
	}
	return errors.Join(errs...)
}

// IsCPUActive reports whether a session is profiling the CPU.
func IsCPUActive() bool {
	cpuMutex.Lock()
	defer cpuMutex.Unlock()
	return cpuActive
}

func writeSnapshot(profile Profile, path string) error {
	p := rpprof.Lookup(string(profile))
	if p == nil {
		return ErrInvalidProfile
	}
	if profile == ProfileHeap {
		runtime.GC()
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.WriteTo(f, 0); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Register mounts the pprof HTTP handlers under /debug/pprof/ on mux.
func Register(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}
