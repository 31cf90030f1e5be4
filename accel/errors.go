// Package accel structured error types for device failure classification.
package accel

import (
	"errors"
	"fmt"
)

// ErrorType represents categories of device errors
type ErrorType int

const (
	// Device property query failures (no such device, driver failure)
	ErrTypeDeviceQuery ErrorType = iota
	// Host memory allocation failures
	ErrTypeHostAlloc
	// Device memory allocation failures
	ErrTypeDeviceAlloc
	// Host/device transfer failures
	ErrTypeTransfer
	// Launch configurations the device refuses to schedule
	ErrTypeLaunchRejected
	// Failures detected after launch, via synchronization
	ErrTypeExecution
	// Invalid argument errors
	ErrTypeInvalidArg
)

// Error represents a structured device error with context
type Error struct {
	Type    ErrorType
	Op      string // Operation that failed
	Message string // Human-readable message
	Err     error  // Underlying error if any
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("accel %s error in %s: %s (caused by: %v)",
			e.Type.String(), e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("accel %s error in %s: %s",
		e.Type.String(), e.Op, e.Message)
}

// Unwrap allows error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// String returns the error type as a string
func (t ErrorType) String() string {
	switch t {
	case ErrTypeDeviceQuery:
		return "DeviceQuery"
	case ErrTypeHostAlloc:
		return "HostAllocation"
	case ErrTypeDeviceAlloc:
		return "DeviceAllocation"
	case ErrTypeTransfer:
		return "Transfer"
	case ErrTypeLaunchRejected:
		return "LaunchRejected"
	case ErrTypeExecution:
		return "Execution"
	case ErrTypeInvalidArg:
		return "InvalidArgument"
	default:
		return "Unknown"
	}
}

// Common error constructors

// NewDeviceQueryError creates a device property query error
func NewDeviceQueryError(op string, message string, err error) error {
	return &Error{Type: ErrTypeDeviceQuery, Op: op, Message: message, Err: err}
}

// NewHostAllocError creates a host allocation error
func NewHostAllocError(op string, message string, err error) error {
	return &Error{Type: ErrTypeHostAlloc, Op: op, Message: message, Err: err}
}

// NewDeviceAllocError creates a device allocation error
func NewDeviceAllocError(op string, message string, err error) error {
	return &Error{Type: ErrTypeDeviceAlloc, Op: op, Message: message, Err: err}
}

// NewTransferError creates a host/device transfer error
func NewTransferError(op string, message string, err error) error {
	return &Error{Type: ErrTypeTransfer, Op: op, Message: message, Err: err}
}

// NewLaunchRejectedError creates a launch rejection error
func NewLaunchRejectedError(op string, message string, err error) error {
	return &Error{Type: ErrTypeLaunchRejected, Op: op, Message: message, Err: err}
}

// NewExecutionError creates an execution error
func NewExecutionError(op string, message string, err error) error {
	return &Error{Type: ErrTypeExecution, Op: op, Message: message, Err: err}
}

// NewInvalidArgError creates an invalid argument error
func NewInvalidArgError(op string, message string) error {
	return &Error{Type: ErrTypeInvalidArg, Op: op, Message: message}
}

// Common pre-defined errors

var (
	// ErrDoubleFree indicates a buffer was freed twice
	ErrDoubleFree = NewInvalidArgError("Free", "double free detected")

	// ErrClosed indicates use of a device after Close
	ErrClosed = NewInvalidArgError("Device", "device is closed")

	// ErrEventNotRecorded indicates a timing read from an unrecorded event
	ErrEventNotRecorded = NewInvalidArgError("Event", "event has not been recorded")
)

// typeOf extracts the structured type of an error, unwrapping as needed.
func typeOf(err error) (ErrorType, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Type, true
	}
	return 0, false
}

// IsDeviceQuery checks if an error is a device property query error
func IsDeviceQuery(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeDeviceQuery
}

// IsHostAlloc checks if an error is a host allocation error
func IsHostAlloc(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeHostAlloc
}

// IsDeviceAlloc checks if an error is a device allocation error
func IsDeviceAlloc(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeDeviceAlloc
}

// IsTransfer checks if an error is a transfer error
func IsTransfer(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeTransfer
}

// IsLaunchRejected checks if an error is a launch rejection
func IsLaunchRejected(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeLaunchRejected
}

// IsExecution checks if an error is an execution error
func IsExecution(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeExecution
}

// IsInvalidArg checks if an error is an invalid argument error
func IsInvalidArg(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeInvalidArg
}
