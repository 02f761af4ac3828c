// Package rabbitmq provides a RabbitMQ/AMQP transport. Every topic is a
// durable fanout exchange. Request topics are drained by one durable queue
// per topic that all server replicas compete for. Response topics are read
// through a queue per instance, so each caller sees every response and
// picks out its own.
package rabbitmq

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/rpcflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "rabbitmq"

// ConnectionFactory allows overriding the connection creation for testing.
var ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
	return amqp.NewConnection(cfg, logger)
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
	return amqp.NewPublisherWithConnection(cfg, logger, conn)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
	return amqp.NewSubscriberWithConnection(cfg, logger, conn)
}

func init() {
	Register()
}

// Register registers the RabbitMQ transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.RabbitMQCapabilities)
}

// SharedConfig is the topology for request topics: the queue is named after
// the topic and survives broker restarts.
func SharedConfig(url string) amqp.Config {
	return amqp.NewDurablePubSubConfig(url, amqp.GenerateQueueNameTopicName)
}

// InstanceConfig is the topology for response topics. The queue carries the
// instance as suffix and is deleted once its consumer goes away. The
// exchange stays durable so it matches the one the publisher declares.
func InstanceConfig(url string, routing transport.Routing) amqp.Config {
	cfg := amqp.NewDurablePubSubConfig(url, amqp.GenerateQueueNameTopicNameWithSuffix(routing.Instance))
	cfg.Queue.Durable = false
	cfg.Queue.AutoDelete = true
	return cfg
}

// Build connects once and derives the publisher and both subscribers from
// that connection.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetRabbitMQURL()
	routing := transport.RoutingFor(cfg)

	conn, err := ConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   url,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	shared := SharedConfig(url)
	publisher, err := PublisherFactory(shared, logger, conn)
	if err != nil {
		return transport.Transport{}, err
	}

	requests, err := SubscriberFactory(shared, logger, conn)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}
	responses, err := SubscriberFactory(InstanceConfig(url, routing), logger, conn)
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
			Routing:   routing,
		},
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.RabbitMQCapabilities
}
