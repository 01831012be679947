// Package errors provides error wrapping utilities and the failure taxonomy
// for node deployments. Every terminal deployment failure maps to exactly one
// of the sentinel errors below.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Sentinel errors for terminal deployment failures. None of these are retried
// internally; the invoking orchestration layer decides whether to retry the
// whole node.
var (
	// ErrPreconditionFailed indicates the node does not meet a resource
	// requirement (insufficient free memory or disk).
	ErrPreconditionFailed = stderrors.New("precondition failed")

	// ErrIntegrity indicates the downloaded image's checksum does not match
	// the expected value.
	ErrIntegrity = stderrors.New("integrity error")

	// ErrTransfer indicates a network or HTTP-level failure during the fetch.
	ErrTransfer = stderrors.New("transfer error")

	// ErrTimeout indicates the fetch did not reach a terminal state within
	// the configured ceiling.
	ErrTimeout = stderrors.New("timeout")
)

// Wrap wraps an error with additional context information.
// If err is nil, it returns nil without wrapping.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// Kind returns the stable identifier recorded for a deployment failure, or
// an empty string when err is not part of the taxonomy.
func Kind(err error) string {
	switch {
	case stderrors.Is(err, ErrPreconditionFailed):
		return "precondition_failed"
	case stderrors.Is(err, ErrIntegrity):
		return "integrity_error"
	case stderrors.Is(err, ErrTransfer):
		return "transfer_error"
	case stderrors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return ""
	}
}
