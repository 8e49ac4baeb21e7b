package core

import (
	"context"
	"errors"
	"fmt"
)

// BridgeError is the coded error returned by fallible boundary operations.
// It carries the numeric status code alongside a human-readable description,
// replacing the out-parameter code/description pair of a raw FFI surface.
type BridgeError struct {
	Code        Status
	Description string
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Description, int(e.Code))
}

// NewBridgeError builds a BridgeError from a status code and format string.
func NewBridgeError(code Status, format string, args ...any) *BridgeError {
	return &BridgeError{Code: code, Description: fmt.Sprintf(format, args...)}
}

// StatusOf extracts the status code carried by err. Nil maps to StatusOK,
// context cancellation to StatusCancelled, and uncoded errors to
// StatusUnknown so every error can be reported through a callback.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var be *BridgeError
	if errors.As(err, &be) {
		return be.Code
	}

	var coded interface{ Status() Status }
	if errors.As(err, &coded) {
		return coded.Status()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return StatusCancelled
	}
	return StatusUnknown
}
