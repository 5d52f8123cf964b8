//go:build !profile

package prof

import "net/http"

// Profiling errors (defined for API compatibility but never returned by stubs).
var (
	// ErrCPUProfileActive indicates CPU profiling is already active.
	ErrCPUProfileActive error

	// ErrInvalidProfile indicates an invalid or unsupported profile type.
	ErrInvalidProfile error
)

// Enabled reports whether profiling support is compiled in.
const Enabled = false

// Session is a no-op when built without the "profile" tag.
type Session struct{}

// Start is a no-op when built without the "profile" tag.
func Start(_ Options) (*Session, error) {
	return &Session{}, nil
}

// Stop is a no-op when built without the "profile" tag.
func (*Session) Stop() error {
	return nil
}

// IsCPUActive always returns false when built without the "profile" tag.
func IsCPUActive() bool {
	return false
}

// Register is a no-op when built without the "profile" tag.
func Register(_ *http.ServeMux) {}
