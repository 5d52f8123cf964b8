//go:build profile

package prof

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestStart_CPU(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cpu.prof")

	s, err := Start(Options{CPU: path})
	if err != nil {
		t.Fatalf("Start() error = %v, want nil", err)
	}
	if !IsCPUActive() {
		t.Error("IsCPUActive() = false, want true")
	}

	// A second CPU session should fail fast
	if _, err := Start(Options{CPU: filepath.Join(t.TempDir(), "cpu2.prof")}); !errors.Is(err, ErrCPUProfileActive) {
		t.Errorf("Start() error = %v, want %v", err, ErrCPUProfileActive)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if IsCPUActive() {
		t.Error("IsCPUActive() = true after Stop(), want false")
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestStart_InvalidPath(t *testing.T) {
	_, err := Start(Options{CPU: "/nonexistent/directory/cpu.prof"})
	if err == nil {
		t.Error("Start() error = nil, want error for invalid path")
	}
	if IsCPUActive() {
		t.Error("IsCPUActive() = true after failed Start()")
	}
}

func TestStop_WritesSnapshots(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		Heap:      filepath.Join(dir, "heap.prof"),
		Allocs:    filepath.Join(dir, "allocs.prof"),
		Goroutine: filepath.Join(dir, "goroutine.prof"),
		Block:     filepath.Join(dir, "block.prof"),
		Mutex:     filepath.Join(dir, "mutex.prof"),
	}

	s, err := Start(opts)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	for _, snap := range opts.snapshots() {
		info, err := os.Stat(snap.path)
		if err != nil {
			t.Errorf("os.Stat(%s) error = %v", snap.path, err)
		} else if info.Size() == 0 {
			t.Errorf("%v profile is empty", snap.profile)
		}
	}
}

func TestStop_InvalidSnapshotPath(t *testing.T) {
	s, err := Start(Options{Heap: "/nonexistent/directory/heap.prof"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Stop(); err == nil {
		t.Error("Stop() error = nil, want error for invalid path")
	}
}

func TestRegister(t *testing.T) {
	mux := http.NewServeMux()
	Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /debug/pprof/ status = %d, want %d", rec.Code, http.StatusOK)
	}
}
