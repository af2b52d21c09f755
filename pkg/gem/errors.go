package gem

import (
	"errors"
	"fmt"
)

// Status classifies driver failures.
type Status int

const (
	StatusOK Status = iota
	StatusNoDevice          // no PHY answered / no MAC present
	StatusLinkDown          // negotiation finished without link
	StatusInvalidConfig     // unsupported or missing configuration
	StatusInvalidArgument   // bad caller-supplied value
	StatusTimeout           // bounded hardware wait expired
	StatusWouldBlock        // no complete frame available
	StatusResourceExhausted // DMA ring/buffer allocation failed
)

var statusMessages = map[Status]string{
	StatusOK:                "ok",
	StatusNoDevice:          "no device",
	StatusLinkDown:          "link down",
	StatusInvalidConfig:     "invalid configuration",
	StatusInvalidArgument:   "invalid argument",
	StatusTimeout:           "timeout",
	StatusWouldBlock:        "would block",
	StatusResourceExhausted: "resource exhausted",
}

// String returns the human-readable status message.
func (s Status) String() string {
	if msg, ok := statusMessages[s]; ok {
		return msg
	}
	return fmt.Sprintf("unknown status (%d)", int(s))
}

// Error is the driver's error type: a status code, the operation that
// failed, and an optional underlying cause.
type Error struct {
	Status  Status
	Context string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Context != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s: %v", e.Context, e.Status, e.Cause)
		}
		return fmt.Sprintf("%s: %s", e.Context, e.Status)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Status, e.Cause)
	}
	return e.Status.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches errors by status, so errors.Is(err, ErrWouldBlock) works on
// any wrapped driver error.
func (e *Error) Is(target error) bool {
	var ge *Error
	if errors.As(target, &ge) {
		return e.Status == ge.Status
	}
	return false
}

// Sentinel values for errors.Is checks.
var (
	ErrNoDevice          = &Error{Status: StatusNoDevice}
	ErrLinkDown          = &Error{Status: StatusLinkDown}
	ErrInvalidConfig     = &Error{Status: StatusInvalidConfig}
	ErrInvalidArgument   = &Error{Status: StatusInvalidArgument}
	ErrTimeout           = &Error{Status: StatusTimeout}
	ErrWouldBlock        = &Error{Status: StatusWouldBlock}
	ErrResourceExhausted = &Error{Status: StatusResourceExhausted}
)

func newError(status Status, context string) *Error {
	return &Error{Status: status, Context: context}
}

func wrapError(status Status, context string, cause error) *Error {
	return &Error{Status: status, Context: context, Cause: cause}
}
