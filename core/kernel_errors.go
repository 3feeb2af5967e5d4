package core

import (
	"context"
	"errors"
	"fmt"
)

// KernelErrorKind classifies kernel failures for user-facing hints.
type KernelErrorKind string

const (
	// KernelErrorUnknown is an uncategorized kernel failure.
	KernelErrorUnknown KernelErrorKind = "unknown"
	// KernelErrorUnavailable indicates the kernel is unreachable.
	KernelErrorUnavailable KernelErrorKind = "unavailable"
	// KernelErrorTimeout indicates the run exceeded its deadline.
	KernelErrorTimeout KernelErrorKind = "timeout"
	// KernelErrorCanceled indicates the run was canceled.
	KernelErrorCanceled KernelErrorKind = "canceled"
	// KernelErrorExecute indicates the kernel failed to run the code.
	KernelErrorExecute KernelErrorKind = "execute"
)

// KernelError wraps kernel failures with a stable classification.
type KernelError struct {
	Kind    KernelErrorKind
	Op      string
	Message string
	Err     error
}

// NewKernelError constructs a classified kernel error.
func NewKernelError(kind KernelErrorKind, op string, err error) *KernelError {
	return &KernelError{Kind: kind, Op: op, Err: err}
}

func (e *KernelError) Error() string {
	if e == nil {
		return "kernel error"
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("kernel %s failed", e.Op)
	}
	return "kernel error"
}

func (e *KernelError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KernelErrorKindOf classifies err.
func KernelErrorKindOf(err error) KernelErrorKind {
	var kerr *KernelError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &kerr):
		return kerr.Kind
	case errors.Is(err, context.DeadlineExceeded):
		return KernelErrorTimeout
	case errors.Is(err, context.Canceled):
		return KernelErrorCanceled
	default:
		return KernelErrorUnknown
	}
}
