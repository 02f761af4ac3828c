package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/rpcflow/internal/runtime/codec"
	errspkg "github.com/drblury/rpcflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/rpcflow/internal/runtime/handlers"
	loggingpkg "github.com/drblury/rpcflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/rpcflow/internal/runtime/metadata"
	transportpkg "github.com/drblury/rpcflow/internal/runtime/transport"
)

// run is the dispatch loop. Requests are handled one at a time, so responses
// leave in the order requests were received.
func (s *Service) run(loop *dispatchLoop) {
	defer s.finish(loop)

	for !loop.shouldStop() {
		delivery, err := loop.adapter.Receive(s.Conf.ReceiveTimeout)
		if err != nil {
			if !loop.shouldStop() {
				loop.err = err
				s.Logger.Error("Dispatch loop lost its transport", err, nil)
			}
			return
		}
		if delivery == nil {
			continue
		}
		s.dispatch(loop, delivery)
	}
}

func (s *Service) finish(loop *dispatchLoop) {
	if err := loop.adapter.Close(); err != nil {
		s.Logger.Error("Failed to close transport adapter", err, nil)
	}

	s.mu.Lock()
	if s.loop == loop {
		s.state = StateStopped
	}
	s.mu.Unlock()

	close(loop.done)
}

// dispatch processes one delivery end to end. The delivery is always acked:
// every outcome, including drops, is final for the server.
func (s *Service) dispatch(loop *dispatchLoop, delivery *transportpkg.Delivery) {
	defer delivery.Ack()

	fields := loggingpkg.LogFields{
		"topic":        delivery.Topic,
		"message_uuid": delivery.Message.UUID,
	}

	channel := delivery.Channel
	if channel == "" {
		var ok bool
		if channel, ok = s.scheme.ChannelFromTopic(delivery.Topic); !ok {
			s.Logger.Error("Dropping message from unknown topic", nil, fields)
			s.metrics.RecordDropped("", "", DropUnknownTopic)
			return
		}
	}
	fields["channel"] = channel

	raw := delivery.Payload()
	req, err := codec.DecodeRequest(raw)
	if err != nil {
		s.rejectMalformed(loop, channel, raw, req, err, fields)
		return
	}
	fields["type"] = req.Type
	fields["rpc_id"] = req.ID()

	entry, ok := s.registry.Find(channel, req.Type)
	if !ok {
		s.Logger.Info("No handler registered for RPC", fields)
		s.metrics.RecordDropped(channel, req.Type, DropUnknownType)
		return
	}

	ctx, span := s.tracer.Start(loop.handlerCtx, "rpc.dispatch",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.channel", channel),
			attribute.String("rpc.type", req.Type),
			attribute.String("rpc.id", req.ID()),
			attribute.String("messaging.message.id", delivery.Message.UUID),
		),
	)
	defer span.End()

	accepted, err := s.filters.ShouldProcess(ctx, FilterInput{
		Channel: channel,
		Request: req,
		Raw:     delivery.Message,
		Handler: entry,
	})
	if err != nil {
		s.Logger.Error("Filter failed", err, fields)
		markSpan(span, errspkg.StatusFilterError, err)
		if s.respond(loop, channel, req.Type, req.RPCID, codec.ErrorPayload(errspkg.StatusFilterError, err), fields) {
			s.metrics.RecordResponse(channel, req.Type, errspkg.StatusFilterError, 0, err)
		}
		return
	}
	if !accepted {
		s.Logger.Debug("Request rejected by filters", fields)
		span.SetAttributes(attribute.Bool("rpc.filtered", true))
		s.metrics.RecordDropped(channel, req.Type, DropFiltered)
		return
	}

	call := handlerpkg.RawCall{
		CallBase: handlerpkg.CallBase{
			Channel:  channel,
			Type:     req.Type,
			RPCID:    req.RPCID,
			Gateway:  req.Gateway,
			Metadata: delivery.Metadata(),
			Logger:   s.Logger.With(fields),
		},
		Request: req.Request,
	}
	callCtx := CallContext{
		Channel:     channel,
		Type:        req.Type,
		RPCID:       req.ID(),
		Topic:       delivery.Topic,
		MessageUUID: delivery.Message.UUID,
		Metadata:    call.Metadata,
		Context:     ctx,
		StartedAt:   time.Now(),
	}

	loop.current.Store(&inflightCall{channel: channel, rpcType: req.Type, rpcID: req.ID(), started: callCtx.StartedAt})
	s.runHook("start", callCtx, func() { s.hooks.start(callCtx) })
	out, err := invoke(ctx, entry, call)
	loop.current.Store(nil)

	callCtx.Duration = time.Since(callCtx.StartedAt)
	callCtx.Status = errspkg.StatusOf(err)

	var encodeErr *errspkg.EncodeError
	if errors.As(err, &encodeErr) {
		s.finishHooks(callCtx, err)
		s.dropUnencodable(span, channel, req.Type, err, fields)
		return
	}

	var payload json.RawMessage
	if err != nil {
		s.Logger.Error("RPC handler failed", err, fields)
		payload = codec.ErrorPayload(callCtx.Status, err)
	} else if payload, err = codec.WithDefaultStatus(out, errspkg.StatusOK); err != nil {
		callCtx.Status = ""
		s.finishHooks(callCtx, err)
		s.dropUnencodable(span, channel, req.Type, err, fields)
		return
	}
	s.finishHooks(callCtx, err)

	markSpan(span, callCtx.Status, err)
	if s.respond(loop, channel, req.Type, req.RPCID, payload, fields) {
		s.metrics.RecordResponse(channel, req.Type, callCtx.Status, callCtx.Duration, err)
	}
}

// invoke is the single boundary where handler failures are contained. A
// returned error or a panic becomes a failed call; nothing escapes to the loop.
func invoke(ctx context.Context, entry *HandlerEntry, call handlerpkg.RawCall) (out json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &errspkg.HandlerError{Channel: entry.Channel, Type: entry.Type, Panic: r}
		}
	}()

	out, err = entry.Invoke(ctx, call)
	if err == nil {
		return out, nil
	}

	var (
		validationErr *errspkg.ValidationError
		encodeErr     *errspkg.EncodeError
		handlerErr    *errspkg.HandlerError
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &encodeErr), errors.As(err, &handlerErr):
		return nil, err
	default:
		return nil, &errspkg.HandlerError{Channel: entry.Channel, Type: entry.Type, Err: err}
	}
}

func (s *Service) finishHooks(callCtx CallContext, err error) {
	s.runHook("finish", callCtx, func() { s.hooks.finish(callCtx, err) })
}

// runHook contains a panicking user hook. The call it observes still gets its
// response and the loop keeps serving.
func (s *Service) runHook(stage string, callCtx CallContext, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("Call hook panicked", fmt.Errorf("hook panicked: %v", r), loggingpkg.LogFields{
				"hook":    stage,
				"channel": callCtx.Channel,
				"type":    callCtx.Type,
				"rpc_id":  callCtx.RPCID,
			})
		}
	}()
	fn()
}

// rejectMalformed answers a request that failed to decode, provided an
// rpc_id can be recovered to correlate the answer. Otherwise it is dropped
// and the caller has to time out.
func (s *Service) rejectMalformed(loop *dispatchLoop, channel string, raw []byte, req *codec.Request, err error, fields loggingpkg.LogFields) {
	var (
		rpcID   json.RawMessage
		rpcType string
	)
	if req != nil {
		rpcID, rpcType = req.RPCID, req.Type
	}
	if rpcID == nil {
		rpcID = codec.SalvageRPCID(raw)
	}
	if rpcType == "" {
		rpcType = codec.SalvageType(raw)
	}

	if rpcID == nil {
		s.Logger.Error("Dropping undecodable request", err, fields)
		s.metrics.RecordDropped(channel, rpcType, DropUndecodable)
		return
	}

	fields["type"] = rpcType
	fields["rpc_id"] = string(rpcID)
	s.Logger.Error("Rejecting malformed request", err, fields)
	if s.respond(loop, channel, rpcType, rpcID, codec.ErrorPayload(errspkg.StatusValidationError, err), fields) {
		s.metrics.RecordResponse(channel, rpcType, errspkg.StatusValidationError, 0, err)
	}
}

// dropUnencodable handles a handler whose response cannot be serialised. It
// is logged as a broken handler contract and no response is sent.
func (s *Service) dropUnencodable(span trace.Span, channel, rpcType string, err error, fields loggingpkg.LogFields) {
	s.Logger.Error("Handler returned a response that cannot be encoded", err, fields)
	markSpan(span, "", err)
	s.metrics.RecordDropped(channel, rpcType, DropEncodeFailure)
}

// respond encodes and publishes one response envelope. Publishing is best
// effort: failures are logged and not retried.
func (s *Service) respond(loop *dispatchLoop, channel, rpcType string, rpcID, payload json.RawMessage, fields loggingpkg.LogFields) bool {
	resp := &codec.Response{
		Type:     rpcType,
		RPCID:    rpcID,
		Response: payload,
		Name:     s.Conf.Name,
	}
	data, err := codec.EncodeResponse(resp)
	if err != nil {
		s.Logger.Error("Failed to encode response", err, fields)
		s.metrics.RecordDropped(channel, rpcType, DropEncodeFailure)
		return false
	}

	md := metadatapkg.New(
		metadatapkg.KeyChannel, channel,
		metadatapkg.KeyKind, metadatapkg.KindResponse,
		metadatapkg.KeySender, s.Conf.Name,
	).With(metadatapkg.KeyCorrelationID, resp.ID())

	topic := s.scheme.ResponseTopic(channel)
	if err := loop.adapter.Publish(topic, data, md); err != nil {
		s.Logger.Error("Failed to publish response", err, fields)
		s.metrics.RecordDropped(channel, rpcType, DropPublishFailed)
		return false
	}
	s.Logger.Trace("Published response", fields)
	return true
}

func markSpan(span trace.Span, status string, err error) {
	if status != "" {
		span.SetAttributes(attribute.String("rpc.status", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
