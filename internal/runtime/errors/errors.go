package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrServiceRequired    = sterrors.New("rpcflow: rpc service is required")
	ErrHandlerRequired    = sterrors.New("rpcflow: handler function is required")
	ErrChannelRequired    = sterrors.New("rpcflow: channel is required")
	ErrTypeRequired       = sterrors.New("rpcflow: rpc type is required")
	ErrPredicateRequired  = sterrors.New("rpcflow: filter predicate is required")
	ErrDuplicateHandler   = sterrors.New("rpcflow: handler already registered")
	ErrServerRunning      = sterrors.New("rpcflow: server is running")
	ErrServerNotRunning   = sterrors.New("rpcflow: server is not running")
	ErrTransportClosed    = sterrors.New("rpcflow: transport closed")
	ErrShutdownTimeout    = sterrors.New("rpcflow: dispatch loop did not stop in time")
	ErrPublisherRequired  = sterrors.New("rpcflow: publisher is required")
	ErrSubscriberRequired = sterrors.New("rpcflow: subscriber is required")
	ErrRequestTimeout     = sterrors.New("rpcflow: request timed out")
	ErrClientClosed       = sterrors.New("rpcflow: client closed")
	ErrPointerTypeNeeded  = sterrors.New("rpcflow: proto message type must be a pointer")
)

// DecodeError reports bytes that are not a well-formed envelope.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("rpcflow: decode envelope: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ValidationError reports a request whose envelope or payload does not match
// the expected schema.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("rpcflow: invalid %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("rpcflow: validation failed: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// EncodeError means a response could not be serialised. It always points at a
// handler that broke its response contract.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("rpcflow: encode response: %v", e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// FilterError wraps a failure raised while a filter predicate was evaluated.
type FilterError struct {
	Index int
	Err   error
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("rpcflow: filter %d failed: %v", e.Index, e.Err)
}

func (e *FilterError) Unwrap() error { return e.Err }

// HandlerError wraps a failure returned or raised by a registered handler.
// Panic holds the recovered value when the handler panicked.
type HandlerError struct {
	Channel string
	Type    string
	Err     error
	Panic   any
}

func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("handler %s/%s panicked: %v", e.Channel, e.Type, e.Panic)
	}
	if e.Err == nil {
		return fmt.Sprintf("handler %s/%s failed", e.Channel, e.Type)
	}
	return e.Err.Error()
}

func (e *HandlerError) Unwrap() error { return e.Err }

// ConfigurationError is raised during server construction, never while serving.
type ConfigurationError struct {
	Channel string
	Type    string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("rpcflow: configuration error for %s/%s: %v", e.Channel, e.Type, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Wire status values carried in response.status.
const (
	StatusOK              = "ok"
	StatusValidationError = "validation_error"
	StatusFilterError     = "filter_error"
	StatusHandlerError    = "handler_error"
)

// StatusOf maps an error from the dispatch path to the status reported to
// callers. A HandlerError wins over anything it wraps.
func StatusOf(err error) string {
	if err == nil {
		return StatusOK
	}
	var (
		handlerErr    *HandlerError
		decodeErr     *DecodeError
		validationErr *ValidationError
		filterErr     *FilterError
	)
	switch {
	case sterrors.As(err, &handlerErr):
		return StatusHandlerError
	case sterrors.As(err, &decodeErr), sterrors.As(err, &validationErr):
		return StatusValidationError
	case sterrors.As(err, &filterErr):
		return StatusFilterError
	default:
		return StatusHandlerError
	}
}
