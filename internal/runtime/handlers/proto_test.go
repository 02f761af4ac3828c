package handlers

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	errspkg "github.com/drblury/rpcflow/internal/runtime/errors"
	"github.com/tidwall/gjson"
)

func TestBuildProtoHandlerProcessesPayload(t *testing.T) {
	invoke, err := BuildProtoHandler(func(ctx context.Context, call Call[*structpb.Struct]) (*structpb.Struct, error) {
		target := call.Payload.GetFields()["target"].GetStringValue()
		if target != "lamp" {
			t.Fatalf("unexpected payload: %v", call.Payload)
		}
		return structpb.NewStruct(map[string]any{"pong": true, "target": target})
	}, Options{})
	if err != nil {
		t.Fatalf("unexpected error building handler: %v", err)
	}

	out, err := invoke(context.Background(), rawCall(`{"target":"lamp"}`))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if !gjson.GetBytes(out, "pong").Bool() || gjson.GetBytes(out, "target").String() != "lamp" {
		t.Fatalf("unexpected response %s", out)
	}
}

func TestBuildProtoHandlerFreshPayloadPerCall(t *testing.T) {
	var seen []*structpb.Struct
	invoke, _ := BuildProtoHandler(func(ctx context.Context, call Call[*structpb.Struct]) (*structpb.Struct, error) {
		seen = append(seen, call.Payload)
		return nil, nil
	}, Options{})

	out, err := invoke(context.Background(), rawCall(`{"a":1}`))
	if err != nil || string(out) != `{}` {
		t.Fatalf("nil response should encode as empty object, got %s (%v)", out, err)
	}
	if _, err := invoke(context.Background(), rawCall(``)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 2 || seen[0] == seen[1] {
		t.Fatal("expected a distinct payload per call")
	}
	if len(seen[1].GetFields()) != 0 {
		t.Fatalf("empty request should decode to empty message, got %v", seen[1])
	}
}

func TestBuildProtoHandlerUnmarshalError(t *testing.T) {
	invoke, _ := BuildProtoHandler(func(ctx context.Context, call Call[*structpb.Struct]) (*structpb.Struct, error) {
		t.Fatal("handler must not run")
		return nil, nil
	}, Options{})

	_, err := invoke(context.Background(), rawCall(`[1,2]`))
	if !isValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBuildProtoHandlerValidatorError(t *testing.T) {
	invoke, _ := BuildProtoHandler(func(ctx context.Context, call Call[*structpb.Struct]) (*structpb.Struct, error) {
		return nil, nil
	}, Options{Validator: testValidator{err: errors.New("rejected")}})

	if _, err := invoke(context.Background(), rawCall(`{}`)); !isValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBuildProtoHandlerHandlerError(t *testing.T) {
	invoke, _ := BuildProtoHandler(func(ctx context.Context, call Call[*structpb.Struct]) (*structpb.Struct, error) {
		return nil, errors.New("boom")
	}, Options{})

	if _, err := invoke(context.Background(), rawCall(`{}`)); err == nil || err.Error() != "boom" {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestBuildProtoHandlerValidations(t *testing.T) {
	if _, err := BuildProtoHandler[*structpb.Struct, *structpb.Struct](nil, Options{}); !errors.Is(err, errspkg.ErrHandlerRequired) {
		t.Fatalf("expected ErrHandlerRequired, got %v", err)
	}

	_, err := BuildProtoHandler(func(ctx context.Context, call Call[proto.Message]) (*structpb.Struct, error) {
		return nil, nil
	}, Options{})
	if !errors.Is(err, errspkg.ErrPointerTypeNeeded) {
		t.Fatalf("expected ErrPointerTypeNeeded, got %v", err)
	}
}

func TestIsNilProto(t *testing.T) {
	var typedNil *structpb.Struct
	if !isNilProto(nil) || !isNilProto(typedNil) {
		t.Fatal("expected nil messages to be detected")
	}
	if isNilProto(&structpb.Struct{}) {
		t.Fatal("non-nil message reported as nil")
	}
}
