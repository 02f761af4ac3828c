// Package nats provides a NATS Core transport. Delivery is at most once: a
// request published while no server is subscribed is lost. Request subjects
// are read in a queue group so each request reaches one server replica;
// response subjects are plain subscriptions that every caller receives.
package nats

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/drblury/rpcflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

// ConnectionName is reported to the NATS server for every connection.
const ConnectionName = "rpcflow"

// RequestQueueGroup is the queue group server replicas share on request subjects.
const RequestQueueGroup = "rpcflow"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register registers the NATS transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// ConnectOptions are passed to every NATS connection opened by Build.
func ConnectOptions() []nc.Option {
	return []nc.Option{
		nc.Name(ConnectionName),
		nc.RetryOnFailedConnect(true),
		nc.MaxReconnects(-1),
		nc.ReconnectWait(time.Second),
	}
}

// Build creates a new NATS transport.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	if url == "" {
		url = nc.DefaultURL
	}
	marshaler := &nats.NATSMarshaler{}
	jetStream := nats.JetStreamConfig{Disabled: true}

	publisher, err := PublisherFactory(
		nats.PublisherConfig{
			URL:         url,
			NatsOptions: ConnectOptions(),
			Marshaler:   marshaler,
			JetStream:   jetStream,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriberConfig := func(queueGroup string) nats.SubscriberConfig {
		return nats.SubscriberConfig{
			URL:              url,
			NatsOptions:      ConnectOptions(),
			Unmarshaler:      marshaler,
			JetStream:        jetStream,
			QueueGroupPrefix: queueGroup,
		}
	}

	requests, err := SubscriberFactory(subscriberConfig(RequestQueueGroup), logger)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}
	responses, err := SubscriberFactory(subscriberConfig(""), logger)
	if err != nil {
		_ = requests.Close()
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher: publisher,
		Subscriber: &transport.DirectedSubscriber{
			Shared:    requests,
			Exclusive: responses,
			Routing:   transport.RoutingFor(cfg),
		},
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}
