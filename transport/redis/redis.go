// Package redis provides a Redis Streams transport. Every topic is a stream.
// Request streams are read through one consumer group shared by all server
// replicas, so each request is claimed once and survives a server restart.
// Response streams are read through a group owned by the instance, so every
// caller sees all responses and picks out its own.
package redis

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"

	"github.com/drblury/rpcflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "redis"

// DefaultAddr is dialed when the config leaves the address empty.
const DefaultAddr = "localhost:6379"

// DefaultConsumerGroup reads request streams.
const DefaultConsumerGroup = "rpcflow"

// DefaultMaxLen caps every stream. Responses are only useful while a caller
// is waiting, so streams are trimmed rather than kept forever.
const DefaultMaxLen = 10000

// newestID makes a fresh response group start after the last entry.
const newestID = "$"

// ClientFactory allows overriding the client creation for testing.
var ClientFactory = func(opts *redis.UniversalOptions) redis.UniversalClient {
	return redis.NewUniversalClient(opts)
}

// HealthCheck is run once against the client before the transport is built.
var HealthCheck = func(ctx context.Context, client redis.UniversalClient) error {
	return client.Ping(ctx).Err()
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg redisstream.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return redisstream.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg redisstream.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return redisstream.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register registers the Redis transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.RedisCapabilities)
}

// SubscriberConfigs returns the request and response subscriber settings of
// an instance.
func SubscriberConfigs(client redis.UniversalClient, routing transport.Routing) (requests, responses redisstream.SubscriberConfig) {
	requests = redisstream.SubscriberConfig{
		Client:        client,
		Consumer:      routing.Instance,
		ConsumerGroup: DefaultConsumerGroup,
	}
	responses = redisstream.SubscriberConfig{
		Client:        client,
		Consumer:      routing.Instance,
		ConsumerGroup: routing.Owned(DefaultConsumerGroup),
		OldestId:      newestID,
	}
	return requests, responses
}

// Build creates a Redis Streams transport. All halves share one client,
// which is closed together with the publisher.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	addr := cfg.GetRedisAddr()
	if addr == "" {
		addr = DefaultAddr
	}
	client := ClientFactory(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: cfg.GetRedisPassword(),
		DB:       cfg.GetRedisDB(),
	})
	if err := HealthCheck(ctx, client); err != nil {
		_ = client.Close()
		return transport.Transport{}, err
	}

	routing := transport.RoutingFor(cfg)
	publisher, err := PublisherFactory(redisstream.PublisherConfig{
		Client:        client,
		DefaultMaxlen: DefaultMaxLen,
	}, logger)
	if err != nil {
		_ = client.Close()
		return transport.Transport{}, err
	}
	owned := &clientPublisher{Publisher: publisher, client: client}

	requestCfg, responseCfg := SubscriberConfigs(client, routing)
	requests, err := SubscriberFactory(requestCfg, logger)
	if err != nil {
		_ = owned.Close()
		return transport.Transport{}, err
	}
	responses, err := SubscriberFactory(responseCfg, logger)
	if err != nil {
		_ = requests.Close()
		_ = owned.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher: owned,
		Subscriber: &transport.DirectedSubscriber{
			Shared:    requests,
			Exclusive: responses,
			Routing:   routing,
		},
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.RedisCapabilities
}

// clientPublisher closes the shared client after the publisher. Transport
// closes subscribers first, so the client outlives every reader.
type clientPublisher struct {
	message.Publisher
	client redis.UniversalClient
}

func (p *clientPublisher) Close() error {
	return errors.Join(p.Publisher.Close(), p.client.Close())
}
