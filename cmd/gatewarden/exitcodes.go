package main

import "fmt"

// Exit codes for the gatewarden CLI.
const (
	ExitCompliant      = 0 // Scan completed and the score met the threshold.
	ExitBelowThreshold = 1 // Scan completed but the score fell short.
	ExitError          = 2 // The scan itself failed or arguments were invalid.
)

// exitCodeError is how commands hand a specific process exit code back
// to main across cobra's error path.
type exitCodeError struct {
	code int
	msg  string
}

func (e *exitCodeError) Error() string { return e.msg }

// ExitCode reports the process exit code the error carries.
func (e *exitCodeError) ExitCode() int { return e.code }

// exitError creates an exitCodeError. An empty msg exits silently with
// the given code; callers use that when the verdict is already printed.
func exitError(code int, format string, args ...any) *exitCodeError {
	return &exitCodeError{code: code, msg: fmt.Sprintf(format, args...)}
}
