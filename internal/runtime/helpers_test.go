package runtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/drblury/rpcflow/internal/runtime/codec"
	configpkg "github.com/drblury/rpcflow/internal/runtime/config"
	handlerpkg "github.com/drblury/rpcflow/internal/runtime/handlers"
	loggingpkg "github.com/drblury/rpcflow/internal/runtime/logging"
	transportpkg "github.com/drblury/rpcflow/internal/runtime/transport"
	backend "github.com/drblury/rpcflow/transport"
)

const (
	testServerName  = "test-server"
	responseTimeout = 2 * time.Second
)

type pingRequest struct {
	Target string `json:"target,omitempty"`
	Fail   bool   `json:"fail,omitempty"`
	Panic  bool   `json:"panic,omitempty"`
}

type pongResponse struct {
	Pong   bool   `json:"pong"`
	Target string `json:"target,omitempty"`
}

func pingHandler(ctx context.Context, call handlerpkg.Call[pingRequest]) (pongResponse, error) {
	if call.Payload.Panic {
		panic("ping exploded")
	}
	if call.Payload.Fail {
		return pongResponse{}, errors.New("ping failed")
	}
	return pongResponse{Pong: true, Target: call.Payload.Target}, nil
}

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func newPubSub(t *testing.T) *gochannel.GoChannel {
	t.Helper()
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
	t.Cleanup(func() { _ = ps.Close() })
	return ps
}

func staticFactory(pub message.Publisher, sub message.Subscriber) transportpkg.Factory {
	return transportpkg.FactoryFunc(func(ctx context.Context, conf *configpkg.Config, logger watermill.LoggerAdapter) (backend.Transport, error) {
		return backend.Transport{Publisher: pub, Subscriber: sub}, nil
	})
}

type serviceOption func(conf *configpkg.Config, deps *ServiceDependencies)

func newTestService(t *testing.T, pub message.Publisher, sub message.Subscriber, opts ...serviceOption) *Service {
	t.Helper()
	conf := &configpkg.Config{
		Name:            testServerName,
		PubSubSystem:    "channel",
		ReceiveTimeout:  20 * time.Millisecond,
		ShutdownTimeout: time.Second,
	}
	deps := ServiceDependencies{
		TransportFactory:  staticFactory(pub, sub),
		MetricsRegisterer: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(conf, &deps)
	}

	svc, err := TryNewService(conf, newTestLogger(), context.Background(), deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func startService(t *testing.T, svc *Service) {
	t.Helper()
	require.NoError(t, svc.Start(context.Background()))
}

func subscribeResponses(t *testing.T, ps *gochannel.GoChannel, channel string) <-chan *message.Message {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	msgs, err := ps.Subscribe(ctx, codec.DefaultTopicScheme().ResponseTopic(channel))
	require.NoError(t, err)
	return msgs
}

func publishRaw(t *testing.T, ps *gochannel.GoChannel, channel, payload string) {
	t.Helper()
	msg := message.NewMessage(watermill.NewUUID(), []byte(payload))
	require.NoError(t, ps.Publish(codec.DefaultTopicScheme().RequestTopic(channel), msg))
}

func nextResponse(t *testing.T, msgs <-chan *message.Message) (*codec.Response, []byte) {
	t.Helper()
	select {
	case msg := <-msgs:
		msg.Ack()
		resp, err := codec.DecodeResponse(msg.Payload)
		require.NoError(t, err)
		return resp, msg.Payload
	case <-time.After(responseTimeout):
		t.Fatal("timed out waiting for response")
		return nil, nil
	}
}

func expectNoResponse(t *testing.T, msgs <-chan *message.Message, wait time.Duration) {
	t.Helper()
	select {
	case msg := <-msgs:
		msg.Ack()
		t.Fatalf("unexpected response: %s", msg.Payload)
	case <-time.After(wait):
	}
}

// scriptedSubscriber hands out channels the test controls.
type scriptedSubscriber struct {
	ch chan *message.Message
}

func (s *scriptedSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return s.ch, nil
}

func (s *scriptedSubscriber) Close() error { return nil }

type failingSubscriber struct{ err error }

func (s *failingSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return nil, s.err
}

func (s *failingSubscriber) Close() error { return nil }
