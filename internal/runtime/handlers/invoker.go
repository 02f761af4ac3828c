package handlers

import (
	"context"
	"encoding/json"
	"errors"

	errspkg "github.com/drblury/rpcflow/internal/runtime/errors"
)

// Invoker is the uniform shape every typed handler is compiled into. It
// returns the response payload as a JSON object; the dispatcher adds status.
type Invoker func(ctx context.Context, call RawCall) (json.RawMessage, error)

// PayloadValidator validates decoded request payloads. Implementations
// typically forward to protovalidate or a struct validator.
type PayloadValidator interface {
	Validate(value any) error
}

// Options configures request decoding for a built handler.
type Options struct {
	// Strict rejects request fields that the payload type does not declare.
	Strict bool
	// Validator, when set, runs after decoding and before the handler.
	Validator PayloadValidator
}

type selfValidator interface {
	Validate() error
}

// handlerFailure tags an error returned by the handler body. A body that
// returns a *errors.ValidationError still reports handler_error; that status
// belongs to the decode and validate stage.
func handlerFailure(raw RawCall, err error) error {
	var handlerErr *errspkg.HandlerError
	if errors.As(err, &handlerErr) {
		return err
	}
	return &errspkg.HandlerError{Channel: raw.Channel, Type: raw.Type, Err: err}
}
