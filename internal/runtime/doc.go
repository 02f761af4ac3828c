/*
Package runtime provides the RPC dispatch server behind rpcflow.

# Architecture Overview

A Service owns one publisher/subscriber pair built by the transport factory,
a handler registry keyed by (channel, type), an ordered filter chain and a
single dispatch loop. Requests arrive on "<request prefix><channel>" topics
and responses leave on "<response prefix><channel>".

# Package Structure

## Core Service (service.go, dispatch.go)

Service moves through Stopped, Running and Stopping. Start subscribes every
registered channel and launches the loop; Shutdown sets the stop flag and
waits for the call in flight. The loop receives with a bounded timeout so a
stop request is observed within one ReceiveTimeout.

Each request is decoded, routed by channel and type, checked against the
filter chain and handed to its handler. Handlers run one at a time on the
loop goroutine, so responses are published in the order requests arrived.
A handler that returns an error or panics produces a handler_error response;
the loop itself never stops because of a handler.

## Registration (registry.go, registration.go)

RegisterHandler and RegisterProtoHandler compile typed handlers, reflect
their request and response schemas and store an immutable HandlerEntry.
Duplicate registrations are configuration errors. Registration is only
allowed while the server is stopped.

## Filters (filters.go)

Filters vote Accept, Reject or Abstain. The first Accept dispatches the
message, a Reject drops it unless a later filter accepts, and a message no
filter has an opinion on is processed.

## Observability (hooks.go, metrics.go, docs.go)

CallHooks run around every handler invocation. DispatchMetrics exports
Prometheus counters and keeps per-handler stats for the docs endpoint,
which lists every registered RPC with its schemas.

## Client (client.go)

Client publishes requests and correlates responses by rpc_id.
*/
package runtime
