package transport_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/rpcflow/transport"
	"github.com/drblury/rpcflow/transport/transporttest"
)

func TestRoutingFor(t *testing.T) {
	r := transport.RoutingFor(&transporttest.Config{InstanceName: "device cli/1", ResponseTopicPrefix: "resp."})
	assert.Equal(t, "device-cli-1", r.Instance)
	assert.Equal(t, "resp.", r.ResponsePrefix)
	assert.Equal(t, "resp.device-device-cli-1", r.Owned("resp.device"))

	assert.True(t, r.Exclusive("resp.device"))
	assert.False(t, r.Exclusive("request-device"))
}

func TestRoutingForDefaults(t *testing.T) {
	first := transport.RoutingFor(&transporttest.Config{})
	second := transport.RoutingFor(&transporttest.Config{})

	assert.Equal(t, transport.DefaultResponseTopicPrefix, first.ResponsePrefix)
	assert.NotEmpty(t, first.Instance)
	assert.NotEqual(t, first.Instance, second.Instance)
	assert.True(t, first.Exclusive("response-device"))
}

type failingCloser struct {
	transporttest.Subscriber
	err error
}

func (f *failingCloser) Close() error { return f.err }

func TestDirectedSubscriber(t *testing.T) {
	shared := &transporttest.Subscriber{}
	exclusive := &transporttest.Subscriber{}
	sub := &transport.DirectedSubscriber{
		Shared:    shared,
		Exclusive: exclusive,
		Routing:   transport.RoutingFor(&transporttest.Config{InstanceName: "cli"}),
	}

	_, err := sub.Subscribe(context.Background(), "request-device")
	require.NoError(t, err)
	_, err = sub.Subscribe(context.Background(), "response-device")
	require.NoError(t, err)

	assert.Equal(t, []string{"request-device"}, shared.Topics())
	assert.Equal(t, []string{"response-device"}, exclusive.Topics())

	require.NoError(t, sub.Close())
	assert.True(t, shared.Closed())
	assert.True(t, exclusive.Closed())
}

func TestDirectedSubscriberCloseReportsFailures(t *testing.T) {
	closeErr := errors.New("channel closed by broker")
	var sub message.Subscriber = &transport.DirectedSubscriber{
		Shared:    &transporttest.Subscriber{},
		Exclusive: &failingCloser{err: closeErr},
	}
	assert.ErrorIs(t, sub.Close(), closeErr)
}
