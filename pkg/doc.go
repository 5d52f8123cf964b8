// Package pkg provides shared utilities for the softuac host stack and the
// USB audio class driver.
//
// This package contains common functionality used across the host stack,
// the simulated HAL and the audio class driver, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error types for USB bus and protocol errors
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with a component attribute:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentStream, "stream started", "rate", 48000)
//
// # Errors
//
// Bus errors are defined as sentinel values. The streaming engine relies on
// [ErrNoDevice] to detect that a device has been unplugged:
//
//	if errors.Is(err, pkg.ErrNoDevice) {
//	    // Tear down the session
//	}
package pkg
