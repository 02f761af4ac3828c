package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	errspkg "github.com/drblury/rpcflow/internal/runtime/errors"
	jsoncodec "github.com/drblury/rpcflow/internal/runtime/jsoncodec"
)

// JSONHandler processes a typed request and returns the typed response.
type JSONHandler[T any, O any] func(ctx context.Context, call Call[T]) (O, error)

// BuildJSONHandler compiles a typed handler into an Invoker. The request is
// decoded into T and validated before the handler runs; any failure there is
// a *errors.ValidationError and the handler is never called.
func BuildJSONHandler[T any, O any](handler JSONHandler[T, O], opts Options) (Invoker, error) {
	if handler == nil {
		return nil, errspkg.ErrHandlerRequired
	}

	return func(ctx context.Context, raw RawCall) (json.RawMessage, error) {
		var payload T
		if err := decodeJSON(raw.Request, &payload, opts.Strict); err != nil {
			return nil, &errspkg.ValidationError{Field: "request", Err: err}
		}
		if err := validatePayload(payload, &payload, opts.Validator); err != nil {
			return nil, err
		}

		out, err := handler(ctx, Call[T]{CallBase: raw.CallBase, Payload: payload})
		if err != nil {
			return nil, handlerFailure(raw, err)
		}

		encoded, err := jsoncodec.Marshal(out)
		if err != nil {
			return nil, &errspkg.EncodeError{Err: fmt.Errorf("marshal %T: %w", out, err)}
		}
		return encoded, nil
	}, nil
}

func decodeJSON(data json.RawMessage, target any, strict bool) error {
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	if strict {
		return jsoncodec.UnmarshalStrict(data, target)
	}
	return jsoncodec.Unmarshal(data, target)
}

// validatePayload runs the payload's own Validate method, then the shared
// validator. ptr must point at value so pointer receivers are found too.
func validatePayload(value, ptr any, validator PayloadValidator) error {
	v, ok := value.(selfValidator)
	if !ok {
		v, ok = ptr.(selfValidator)
	}
	if ok {
		if err := v.Validate(); err != nil {
			return &errspkg.ValidationError{Field: "request", Err: err}
		}
	}
	if validator != nil {
		if err := validator.Validate(value); err != nil {
			var validationErr *errspkg.ValidationError
			if errors.As(err, &validationErr) {
				return err
			}
			return &errspkg.ValidationError{Field: "request", Err: err}
		}
	}
	return nil
}
