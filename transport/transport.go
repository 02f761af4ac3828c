// Package transport defines the pub/sub backends an rpcflow server can run on.
// Each backend lives in its own sub-package and registers itself with the
// transport registry from an init function. Import
// github.com/drblury/rpcflow/transport/transports to pull in all of them.
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines a publisher and subscriber pair produced by a builder.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes both halves. The subscriber is closed first so no delivery
// arrives after the publisher is gone.
func (t Transport) Close() error {
	var firstErr error
	if t.Subscriber != nil {
		if err := t.Subscriber.Close(); err != nil {
			firstErr = err
		}
	}
	if t.Publisher != nil {
		if err := t.Publisher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Builder is the function signature for creating a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the configuration values needed by transports, so backends
// do not depend on the full config package.
type Config interface {
	GetPubSubSystem() string

	// GetInstanceName identifies this process. Backends derive the queues
	// and consumer groups it reads responses from.
	GetInstanceName() string
	// GetResponseTopicPrefix marks the topics that every instance consumes
	// on its own instead of competing for.
	GetResponseTopicPrefix() string

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string

	// RabbitMQ
	GetRabbitMQURL() string

	// NATS
	GetNATSURL() string

	// Redis
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// CapabilitiesProvider is implemented by transports that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}
