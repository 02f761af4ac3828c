package runtime

import (
	"context"
	"time"

	loggingpkg "github.com/drblury/rpcflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/rpcflow/internal/runtime/metadata"
)

// CallContext provides information about one dispatched call to hooks.
type CallContext struct {
	// Channel and Type identify the handler.
	Channel string
	Type    string
	// RPCID is the caller's rpc_id as a string.
	RPCID string
	// Topic is the transport topic the request was received from.
	Topic string
	// MessageUUID is the transport message id.
	MessageUUID string
	// Metadata contains the transport headers of the request.
	Metadata metadatapkg.Metadata
	// Context is the context the handler runs with.
	Context context.Context
	// StartedAt is when the handler was invoked.
	StartedAt time.Time
	// Duration is how long the handler took (only set in OnCallDone and OnCallError).
	Duration time.Duration
	// Status is the status reported to the caller (only set in OnCallDone and OnCallError).
	Status string
}

// CallHooks defines callbacks around handler invocation.
// All hooks are optional - nil hooks are simply not called.
type CallHooks struct {
	// OnCallStart is called right before the handler runs.
	OnCallStart func(ctx CallContext)

	// OnCallDone is called when the handler returned a response.
	OnCallDone func(ctx CallContext)

	// OnCallError is called when validation or the handler failed.
	OnCallError func(ctx CallContext, err error)
}

// Merge combines two CallHooks. The hooks from 'other' are called after the
// hooks from 'h'.
func (h CallHooks) Merge(other CallHooks) CallHooks {
	return CallHooks{
		OnCallStart: chainCallHooks(h.OnCallStart, other.OnCallStart),
		OnCallDone:  chainCallHooks(h.OnCallDone, other.OnCallDone),
		OnCallError: chainErrorHooks(h.OnCallError, other.OnCallError),
	}
}

func chainCallHooks(a, b func(CallContext)) func(CallContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx CallContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(CallContext, error)) func(CallContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx CallContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

func (h CallHooks) start(ctx CallContext) {
	if h.OnCallStart != nil {
		h.OnCallStart(ctx)
	}
}

func (h CallHooks) finish(ctx CallContext, err error) {
	if err != nil {
		if h.OnCallError != nil {
			h.OnCallError(ctx, err)
		}
		return
	}
	if h.OnCallDone != nil {
		h.OnCallDone(ctx)
	}
}

// LoggingHooks returns pre-built hooks that log call lifecycle events.
func LoggingHooks(logger loggingpkg.ServiceLogger) CallHooks {
	return CallHooks{
		OnCallStart: func(ctx CallContext) {
			logger.Debug("Call started", loggingpkg.LogFields{
				"channel":      ctx.Channel,
				"type":         ctx.Type,
				"rpc_id":       ctx.RPCID,
				"message_uuid": ctx.MessageUUID,
			})
		},
		OnCallDone: func(ctx CallContext) {
			logger.Info("Call completed", loggingpkg.LogFields{
				"channel":     ctx.Channel,
				"type":        ctx.Type,
				"rpc_id":      ctx.RPCID,
				"status":      ctx.Status,
				"duration_ms": ctx.Duration.Milliseconds(),
			})
		},
		OnCallError: func(ctx CallContext, err error) {
			logger.Error("Call failed", err, loggingpkg.LogFields{
				"channel":     ctx.Channel,
				"type":        ctx.Type,
				"rpc_id":      ctx.RPCID,
				"status":      ctx.Status,
				"duration_ms": ctx.Duration.Milliseconds(),
			})
		},
	}
}

// MetricsHooks returns pre-built hooks that report call outcomes to plain callbacks.
func MetricsHooks(onStart, onDone, onError func(channel, rpcType string)) CallHooks {
	return CallHooks{
		OnCallStart: func(ctx CallContext) {
			if onStart != nil {
				onStart(ctx.Channel, ctx.Type)
			}
		},
		OnCallDone: func(ctx CallContext) {
			if onDone != nil {
				onDone(ctx.Channel, ctx.Type)
			}
		},
		OnCallError: func(ctx CallContext, err error) {
			if onError != nil {
				onError(ctx.Channel, ctx.Type)
			}
		},
	}
}

// AlertingHooks returns pre-built hooks that trigger alerts on call errors.
func AlertingHooks(alertFunc func(ctx CallContext, err error)) CallHooks {
	return CallHooks{
		OnCallError: alertFunc,
	}
}
