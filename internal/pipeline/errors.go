package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failed conversion for the caller.
type Kind string

const (
	KindBadInput               Kind = "bad_input"
	KindExtractionEmpty        Kind = "extraction_empty"
	KindProcessingFailure      Kind = "processing_failure"
	KindResourceExhaustion     Kind = "resource_exhaustion"
	KindTimeout                Kind = "timeout"
	KindServerMisconfiguration Kind = "server_misconfiguration"
)

// ErrPayloadTooLarge is returned by a Request.Video reader that hit the
// upload size limit.
var ErrPayloadTooLarge = errors.New("pipeline: payload exceeds size limit")

// Error is a classified conversion failure. Message is safe to show to the
// caller; Details carries diagnostic text.
type Error struct {
	Kind    Kind
	Message string
	Details string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error. Details defaults to err's text.
func NewError(kind Kind, message string, err error) *Error {
	e := &Error{Kind: kind, Message: message, Err: err}
	if err != nil {
		e.Details = err.Error()
	}
	return e
}

func BadInput(message string) *Error {
	return NewError(KindBadInput, message, nil)
}

func ExtractionEmpty(message, details string) *Error {
	return &Error{Kind: KindExtractionEmpty, Message: message, Details: details}
}

func ProcessingFailure(message string, err error) *Error {
	return NewError(KindProcessingFailure, message, err)
}

func ResourceExhaustion(message string, err error) *Error {
	return NewError(KindResourceExhaustion, message, err)
}

func Timeout(message string, err error) *Error {
	return NewError(KindTimeout, message, err)
}

func ServerMisconfiguration(message string, err error) *Error {
	return NewError(KindServerMisconfiguration, message, err)
}

// KindOf classifies any error. Unclassified errors are processing failures,
// except an exceeded deadline which is a timeout.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, ErrPayloadTooLarge) {
		return KindResourceExhaustion
	}
	return KindProcessingFailure
}
