package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	errspkg "github.com/drblury/rpcflow/internal/runtime/errors"
)

// ProtoHandler processes a protobuf request and returns a protobuf response.
// Payloads travel as protojson inside the JSON envelope.
type ProtoHandler[T proto.Message, O proto.Message] func(ctx context.Context, call Call[T]) (O, error)

var protoResponseOptions = protojson.MarshalOptions{UseProtoNames: true}

// BuildProtoHandler compiles a protobuf handler into an Invoker. T must be a
// pointer to a generated message type.
func BuildProtoHandler[T proto.Message, O proto.Message](handler ProtoHandler[T, O], opts Options) (Invoker, error) {
	if handler == nil {
		return nil, errspkg.ErrHandlerRequired
	}
	newRequest, err := protoFactory[T]()
	if err != nil {
		return nil, err
	}
	unmarshal := protojson.UnmarshalOptions{DiscardUnknown: !opts.Strict}

	return func(ctx context.Context, raw RawCall) (json.RawMessage, error) {
		payload := newRequest()
		if len(raw.Request) > 0 {
			if err := unmarshal.Unmarshal(raw.Request, payload); err != nil {
				return nil, &errspkg.ValidationError{Field: "request", Err: err}
			}
		}
		if err := validatePayload(payload, payload, opts.Validator); err != nil {
			return nil, err
		}

		out, err := handler(ctx, Call[T]{CallBase: raw.CallBase, Payload: payload})
		if err != nil {
			return nil, handlerFailure(raw, err)
		}
		if isNilProto(out) {
			return json.RawMessage(`{}`), nil
		}

		encoded, err := protoResponseOptions.Marshal(out)
		if err != nil {
			return nil, &errspkg.EncodeError{Err: fmt.Errorf("marshal %T: %w", out, err)}
		}
		return encoded, nil
	}, nil
}

// protoFactory returns a constructor for fresh T values.
func protoFactory[T proto.Message]() (func() T, error) {
	var zero T
	typ := reflect.TypeOf(zero)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, errspkg.ErrPointerTypeNeeded
	}
	elem := typ.Elem()
	return func() T {
		return reflect.New(elem).Interface().(T)
	}, nil
}

func isNilProto(msg proto.Message) bool {
	if msg == nil {
		return true
	}
	val := reflect.ValueOf(msg)
	return val.Kind() == reflect.Ptr && val.IsNil()
}
