// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package gate

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for propagation policy and API status mapping.
type Kind string

const (
	KindInvalidRequest     Kind = "invalid_request"
	KindRepoFetchFailed    Kind = "repo_fetch_failed"
	KindRepoTooLarge       Kind = "repo_too_large"
	KindInvalidPattern     Kind = "invalid_pattern"
	KindPatternLibraryLoad Kind = "pattern_library_load"
	KindFileReadError      Kind = "file_read_error"
	KindFileTooLarge       Kind = "file_too_large"
	KindDeadlineExceeded   Kind = "deadline_exceeded"
	KindCancelled          Kind = "cancelled"
	KindCollectorFailed    Kind = "collector_failed"
	KindStorageUnavailable Kind = "storage_unavailable"
	KindInternal           Kind = "internal"
)

// Error carries a kind plus optional operation and path context. It wraps
// an underlying error for errors.Is/As chains.
type Error struct {
	Kind Kind
	Op   string // operation that failed: "fetch.clone", "store.save"
	Path string // file or resource involved, if any
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Path != "":
		return fmt.Sprintf("%s: %s %s: %v", e.Kind, e.Op, e.Path, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind and operation tag.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Ef wraps a formatted message with a kind and operation tag.
func Ef(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// WithPath attaches a file or resource path.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// KindOf returns the kind of err, unwrapping as needed. Plain errors
// report KindInternal; context errors map to their scan-level kinds.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
