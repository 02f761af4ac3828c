package transport

// Capabilities describes the delivery guarantees of a transport backend. The
// server reports them on its docs endpoint and logs them at start.
type Capabilities struct {
	// SupportsOrdering indicates messages on one topic arrive in publish order.
	SupportsOrdering bool `json:"supports_ordering"`

	// SupportsAck indicates the transport supports explicit message acknowledgment.
	SupportsAck bool `json:"supports_ack"`

	// SupportsNack indicates a negative acknowledgment leads to redelivery.
	SupportsNack bool `json:"supports_nack"`

	// Durable indicates messages published while no subscriber is attached are kept.
	Durable bool `json:"durable"`

	// SupportsTracing indicates the transport propagates message metadata as headers.
	SupportsTracing bool `json:"supports_tracing"`

	// MaxMessageSize is the maximum message size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64 `json:"max_message_size"`

	// Name is the human-readable name of the transport.
	Name string `json:"name"`
}

// SupportsReliableDelivery returns true if the transport supports at-least-once
// delivery semantics (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// AtMostOnce reports whether a request can be lost when no server is listening.
// The RPC layer never retries, so callers on such transports rely on their own timeout.
func (c Capabilities) AtMostOnce() bool {
	return !c.Durable
}

var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
	}

	KafkaCapabilities = Capabilities{
		Name:             "kafka",
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsAck:      true,
		Durable:          true,
		MaxMessageSize:   1048576,
	}

	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsAck:      true,
		SupportsNack:     true,
		Durable:          true,
	}

	// NATSCapabilities for NATS core, which is fire-and-forget.
	NATSCapabilities = Capabilities{
		Name:            "nats",
		SupportsTracing: true,
		MaxMessageSize:  1048576,
	}

	AWSCapabilities = Capabilities{
		Name:             "aws",
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsAck:      true,
		SupportsNack:     true,
		Durable:          true,
		MaxMessageSize:   262144,
	}

	// RedisCapabilities for Redis Streams. Entries stay in the stream until
	// trimmed and a nacked entry is redelivered to the group.
	RedisCapabilities = Capabilities{
		Name:             "redis",
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsAck:      true,
		SupportsNack:     true,
		Durable:          true,
		MaxMessageSize:   512 * 1024 * 1024,
	}
)

// GetCapabilities returns the capabilities registered for a transport by name.
// Returns a Capabilities value carrying only the name if the transport is unknown.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
