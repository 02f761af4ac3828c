// Package kafka provides a Kafka transport. Request topics are consumed by
// one consumer group shared by all server replicas, so each request lands on
// a single replica. Response topics are consumed by a group owned by the
// instance, so every caller receives all responses for its channels.
package kafka

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/rpcflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "kafka"

// DefaultConsumerGroup is the request group when the config leaves it empty.
const DefaultConsumerGroup = "rpcflow"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register registers the Kafka transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.KafkaCapabilities)
}

// ConsumerGroups returns the request group and the response group of an
// instance. A fresh response group starts at the newest offset, so a
// restarted caller does not replay old responses.
func ConsumerGroups(cfg transport.Config, routing transport.Routing) (requests, responses string) {
	requests = cfg.GetKafkaConsumerGroup()
	if requests == "" {
		requests = DefaultConsumerGroup
	}
	return requests, routing.Owned(requests)
}

// Build creates a Kafka transport with one publisher and a subscriber per direction.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	brokers := cfg.GetKafkaBrokers()
	routing := transport.RoutingFor(cfg)
	requestGroup, responseGroup := ConsumerGroups(cfg, routing)

	publisher, err := PublisherFactory(kafka.PublisherConfig{
		Brokers:   brokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	var subscribers []message.Subscriber
	for _, group := range []string{requestGroup, responseGroup} {
		sub, err := SubscriberFactory(kafka.SubscriberConfig{
			Brokers:       brokers,
			Unmarshaler:   kafka.DefaultMarshaler{},
			ConsumerGroup: group,
		}, logger)
		if err != nil {
			for _, opened := range subscribers {
				_ = opened.Close()
			}
			_ = publisher.Close()
			return transport.Transport{}, err
		}
		subscribers = append(subscribers, sub)
	}

	logger.Info("Kafka consumer groups", watermill.LogFields{
		"requests":  requestGroup,
		"responses": responseGroup,
	})
	return transport.Transport{
		Publisher: publisher,
		Subscriber: &transport.DirectedSubscriber{
			Shared:    subscribers[0],
			Exclusive: subscribers[1],
			Routing:   routing,
		},
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}
