package runtime

import (
	"google.golang.org/protobuf/proto"

	errspkg "github.com/drblury/rpcflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/rpcflow/internal/runtime/handlers"
	"github.com/drblury/rpcflow/internal/runtime/schema"
)

// HandlerRegistration binds a typed JSON handler to (Channel, Type).
type HandlerRegistration[T any, O any] struct {
	Channel string
	Type    string
	Handler handlerpkg.JSONHandler[T, O]
	// Strict overrides Config.StrictRequests for this handler when set.
	Strict *bool
}

// RegisterHandler compiles the typed handler and adds it to the service
// registry. Registering the same (channel, type) twice fails with a
// *errors.ConfigurationError.
func RegisterHandler[T any, O any](svc *Service, cfg HandlerRegistration[T, O]) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}

	invoke, err := handlerpkg.BuildJSONHandler(cfg.Handler, svc.handlerOptions(cfg.Strict))
	if err != nil {
		return &errspkg.ConfigurationError{Channel: cfg.Channel, Type: cfg.Type, Err: err}
	}

	return svc.register(NewHandlerEntry(cfg.Channel, cfg.Type, invoke, schema.Reflect[T](), schema.Reflect[O]()))
}

// ProtoHandlerRegistration binds a protobuf handler to (Channel, Type).
type ProtoHandlerRegistration[T proto.Message, O proto.Message] struct {
	Channel string
	Type    string
	Handler handlerpkg.ProtoHandler[T, O]
	Strict  *bool
}

// RegisterProtoHandler is RegisterHandler for generated protobuf messages.
// Payloads are read and written as protojson.
func RegisterProtoHandler[T proto.Message, O proto.Message](svc *Service, cfg ProtoHandlerRegistration[T, O]) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}

	invoke, err := handlerpkg.BuildProtoHandler(cfg.Handler, svc.handlerOptions(cfg.Strict))
	if err != nil {
		return &errspkg.ConfigurationError{Channel: cfg.Channel, Type: cfg.Type, Err: err}
	}

	return svc.register(NewHandlerEntry(cfg.Channel, cfg.Type, invoke, schema.Reflect[T](), schema.Reflect[O]()))
}

// RawHandlerRegistration binds an untyped invoker. The request payload is
// handed over as received and no schema is recorded.
type RawHandlerRegistration struct {
	Channel string
	Type    string
	Handler handlerpkg.Invoker
}

func RegisterRawHandler(svc *Service, cfg RawHandlerRegistration) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	if cfg.Handler == nil {
		return &errspkg.ConfigurationError{Channel: cfg.Channel, Type: cfg.Type, Err: errspkg.ErrHandlerRequired}
	}
	return svc.register(NewHandlerEntry(cfg.Channel, cfg.Type, cfg.Handler, nil, nil))
}

// MustRegisterHandler panics when RegisterHandler fails. Intended for
// server setup code where a bad registration is a programming error.
func MustRegisterHandler[T any, O any](svc *Service, cfg HandlerRegistration[T, O]) {
	if err := RegisterHandler(svc, cfg); err != nil {
		panic(err)
	}
}

func MustRegisterProtoHandler[T proto.Message, O proto.Message](svc *Service, cfg ProtoHandlerRegistration[T, O]) {
	if err := RegisterProtoHandler(svc, cfg); err != nil {
		panic(err)
	}
}
