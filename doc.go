// Package rpcflow serves request/response calls over a pub/sub transport.
//
// A server subscribes to one request topic per channel ("request-<channel>")
// and answers on the matching response topic ("response-<channel>"). Every
// request envelope names a type; the server looks up the handler registered
// for (channel, type), runs the filter chain, invokes the handler and
// publishes a response envelope that echoes the caller's rpc_id unchanged.
// The transport (Kafka, RabbitMQ, AWS SNS/SQS, NATS, Redis, or Go channels) is
// selected by Config.PubSubSystem.
//
// A minimal server fills Config, creates a Service, registers handlers with
// RegisterHandler or RegisterProtoHandler, and calls Run:
//
//	svc := rpcflow.NewService(conf, logger, ctx, rpcflow.ServiceDependencies{})
//	rpcflow.MustRegisterHandler(svc, rpcflow.HandlerRegistration[PingRequest, PingResponse]{
//		Channel: "device",
//		Type:    "ping",
//		Handler: ping,
//	})
//	err := svc.Run(ctx)
//
// # Failures
//
// Handler failures never stop the server. A handler error or panic is
// answered with status "handler_error", a payload that does not decode into
// the handler's request type with "validation_error", and a failing filter
// with "filter_error". Requests for unknown types, requests rejected by the
// filters, and envelopes without a usable rpc_id are dropped; callers rely on
// their own timeout for those.
//
// # Filters
//
// Filters vote Accept, Reject or Abstain. The first Accept dispatches the
// request immediately, a Reject drops it unless a later filter accepts it.
// Filters can be scoped to a channel or a type with ScopeOf.
//
// # Observability
//
// CallHooks observe every handler invocation. Dispatch counters are exported
// to Prometheus when Config.MetricsEnabled is set, spans are started through
// the OpenTelemetry tracer provider, and Config.DocsEnabled serves every
// registered RPC with its JSON schemas on DocsPath. Schema documents can be
// mirrored to Redis or etcd with a SchemaSink.
//
// # Client
//
// Client publishes requests and correlates responses by rpc_id; CallJSON
// decodes a successful response into a typed value.
package rpcflow
