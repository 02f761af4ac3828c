package rpcflow

import (
	"context"

	"google.golang.org/protobuf/proto"

	runtimepkg "github.com/drblury/rpcflow/internal/runtime"
	"github.com/drblury/rpcflow/internal/runtime/codec"
	configpkg "github.com/drblury/rpcflow/internal/runtime/config"
	errspkg "github.com/drblury/rpcflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/rpcflow/internal/runtime/handlers"
	idspkg "github.com/drblury/rpcflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/rpcflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/rpcflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/rpcflow/internal/runtime/metadata"
	"github.com/drblury/rpcflow/internal/runtime/schema"
	transportpkg "github.com/drblury/rpcflow/internal/runtime/transport"
	backend "github.com/drblury/rpcflow/transport"
)

type (
	Config               = configpkg.Config
	Service              = runtimepkg.Service
	ServiceDependencies  = runtimepkg.ServiceDependencies
	State                = runtimepkg.State
	TransportFactory     = transportpkg.Factory
	TransportFactoryFunc = transportpkg.FactoryFunc

	HandlerRegistration[T any, O any]                          = runtimepkg.HandlerRegistration[T, O]
	ProtoHandlerRegistration[T proto.Message, O proto.Message] = runtimepkg.ProtoHandlerRegistration[T, O]
	RawHandlerRegistration                                     = runtimepkg.RawHandlerRegistration
	HandlerEntry                                               = runtimepkg.HandlerEntry
	JSONHandler[T any, O any]                                  = handlerpkg.JSONHandler[T, O]
	ProtoHandler[T proto.Message, O proto.Message]             = handlerpkg.ProtoHandler[T, O]
	Invoker                                                    = handlerpkg.Invoker
	Call[T any]                                                = handlerpkg.Call[T]
	RawCall                                                    = handlerpkg.RawCall
	CallBase                                                   = handlerpkg.CallBase
	PayloadValidator                                           = handlerpkg.PayloadValidator

	Filter      = runtimepkg.Filter
	FilterInput = runtimepkg.FilterInput
	Predicate   = runtimepkg.Predicate
	Verdict     = runtimepkg.Verdict
	Scope       = runtimepkg.Scope

	CallContext = runtimepkg.CallContext
	CallHooks   = runtimepkg.CallHooks

	DispatchMetrics         = runtimepkg.DispatchMetrics
	DispatchMetricsSnapshot = runtimepkg.DispatchMetricsSnapshot
	HandlerStats            = runtimepkg.HandlerStats
	LatencyMetrics          = runtimepkg.LatencyMetrics
	DocsResponse            = runtimepkg.DocsResponse
	RPCInfo                 = runtimepkg.RPCInfo

	Client       = runtimepkg.Client
	ClientConfig = runtimepkg.ClientConfig
	CallOption   = runtimepkg.CallOption
	RemoteError  = runtimepkg.RemoteError

	Request  = codec.Request
	Response = codec.Response
	Gateway  = codec.Gateway

	SchemaDocument  = schema.Document
	SchemaSink      = schema.Sink
	SchemaSinkFunc  = schema.SinkFunc
	RedisSchemaSink = schema.RedisSink
	EtcdSchemaSink  = schema.EtcdSink

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	DecodeError        = errspkg.DecodeError
	ValidationError    = errspkg.ValidationError
	EncodeError        = errspkg.EncodeError
	FilterError        = errspkg.FilterError
	HandlerError       = errspkg.HandlerError
	ConfigurationError = errspkg.ConfigurationError

	Capabilities      = backend.Capabilities
	TransportBuilder  = backend.Builder
	TransportConfig   = backend.Config
	TransportRegistry = backend.Registry
	Transport         = backend.Transport
)

var (
	NewService     = runtimepkg.NewService
	TryNewService  = runtimepkg.TryNewService
	ConfigFromEnv  = configpkg.FromEnv
	ValidateConfig = configpkg.ValidateConfig

	RegisterRawHandler = runtimepkg.RegisterRawHandler

	AnyScope        = runtimepkg.AnyScope
	ScopeOf         = runtimepkg.ScopeOf
	BoolPredicate   = runtimepkg.BoolPredicate
	GatewayFilter   = runtimepkg.GatewayFilter
	RateLimitFilter = runtimepkg.RateLimitFilter

	LoggingHooks  = runtimepkg.LoggingHooks
	MetricsHooks  = runtimepkg.MetricsHooks
	AlertingHooks = runtimepkg.AlertingHooks

	NewDispatchMetrics = runtimepkg.NewDispatchMetrics

	NewClient   = runtimepkg.NewClient
	WithRPCID   = runtimepkg.WithRPCID
	WithGateway = runtimepkg.WithGateway
	WithTimeout = runtimepkg.WithTimeout

	EncodeRequest  = codec.EncodeRequest
	DecodeRequest  = codec.DecodeRequest
	EncodeResponse = codec.EncodeResponse
	DecodeResponse = codec.DecodeResponse
	StringID       = codec.StringID

	NewSchemaRegistry  = schema.NewRegistry
	NewRedisSchemaSink = schema.NewRedisSink
	NewEtcdSchemaSink  = schema.NewEtcdSink

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal

	ErrServiceRequired   = errspkg.ErrServiceRequired
	ErrHandlerRequired   = errspkg.ErrHandlerRequired
	ErrChannelRequired   = errspkg.ErrChannelRequired
	ErrTypeRequired      = errspkg.ErrTypeRequired
	ErrPredicateRequired = errspkg.ErrPredicateRequired
	ErrDuplicateHandler  = errspkg.ErrDuplicateHandler
	ErrServerRunning     = errspkg.ErrServerRunning
	ErrServerNotRunning  = errspkg.ErrServerNotRunning
	ErrTransportClosed   = errspkg.ErrTransportClosed
	ErrShutdownTimeout   = errspkg.ErrShutdownTimeout
	ErrRequestTimeout    = errspkg.ErrRequestTimeout
	ErrClientClosed      = errspkg.ErrClientClosed
	StatusOf             = errspkg.StatusOf

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewZapServiceLogger       = loggingpkg.NewZapServiceLogger
	NewZapLogger              = loggingpkg.NewZapLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	DiscardLogger             = loggingpkg.Discard

	NewMetadata = metadatapkg.New

	CreateULID = idspkg.CreateULID

	GetCapabilities          = backend.GetCapabilities
	DefaultTransportRegistry = backend.DefaultRegistry
	RegisterTransport        = backend.Register
	BuildTransport           = backend.Build
)

// Filter verdicts.
const (
	Abstain = runtimepkg.Abstain
	Accept  = runtimepkg.Accept
	Reject  = runtimepkg.Reject
)

const (
	StateStopped  = runtimepkg.StateStopped
	StateRunning  = runtimepkg.StateRunning
	StateStopping = runtimepkg.StateStopping
)

// Wire status values.
const (
	StatusOK              = errspkg.StatusOK
	StatusValidationError = errspkg.StatusValidationError
	StatusFilterError     = errspkg.StatusFilterError
	StatusHandlerError    = errspkg.StatusHandlerError
)

// Metadata keys stamped on every request and response.
const (
	MetadataKeyChannel       = metadatapkg.KeyChannel
	MetadataKeyKind          = metadatapkg.KeyKind
	MetadataKeySender        = metadatapkg.KeySender
	MetadataKeyCorrelationID = metadatapkg.KeyCorrelationID
)

const DocsPath = runtimepkg.DocsPath

func RegisterHandler[T any, O any](svc *Service, cfg HandlerRegistration[T, O]) error {
	return runtimepkg.RegisterHandler(svc, cfg)
}

func MustRegisterHandler[T any, O any](svc *Service, cfg HandlerRegistration[T, O]) {
	runtimepkg.MustRegisterHandler(svc, cfg)
}

func RegisterProtoHandler[T proto.Message, O proto.Message](svc *Service, cfg ProtoHandlerRegistration[T, O]) error {
	return runtimepkg.RegisterProtoHandler(svc, cfg)
}

func MustRegisterProtoHandler[T proto.Message, O proto.Message](svc *Service, cfg ProtoHandlerRegistration[T, O]) {
	runtimepkg.MustRegisterProtoHandler(svc, cfg)
}

// CallJSON calls channel/rpcType and decodes an ok response into O.
func CallJSON[O any](ctx context.Context, c *Client, channel, rpcType string, payload any, opts ...CallOption) (O, error) {
	return runtimepkg.CallJSON[O](ctx, c, channel, rpcType, payload, opts...)
}
