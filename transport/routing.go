package transport

import (
	"context"
	"errors"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// DefaultResponseTopicPrefix is assumed when the config leaves the prefix empty.
const DefaultResponseTopicPrefix = "response-"

// Routing splits topics by direction. Request topics are shared: every
// server replica reads from one queue or consumer group and each request is
// served once. Response topics are exclusive: every instance reads them
// through its own queue or group, so no caller loses another's answers.
type Routing struct {
	// Instance is a broker safe form of the process name.
	Instance string
	// ResponsePrefix marks exclusive topics.
	ResponsePrefix string
}

// RoutingFor derives the routing of a backend from its config. An instance
// without a name gets a random one, so its exclusive queues never collide.
func RoutingFor(cfg Config) Routing {
	r := Routing{
		Instance:       sanitizeInstance(cfg.GetInstanceName()),
		ResponsePrefix: cfg.GetResponseTopicPrefix(),
	}
	if r.Instance == "" {
		r.Instance = strings.ToLower(watermill.NewULID())
	}
	if r.ResponsePrefix == "" {
		r.ResponsePrefix = DefaultResponseTopicPrefix
	}
	return r
}

// Exclusive reports whether topic is consumed per instance.
func (r Routing) Exclusive(topic string) bool {
	return strings.HasPrefix(topic, r.ResponsePrefix)
}

// Owned appends the instance to base, giving the name of a queue or group
// only this instance reads from.
func (r Routing) Owned(base string) string {
	return base + "-" + r.Instance
}

func sanitizeInstance(name string) string {
	return strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			return c
		default:
			return '-'
		}
	}, strings.TrimSpace(name))
}

// DirectedSubscriber sends each subscription to Exclusive or Shared
// depending on the topic's direction.
type DirectedSubscriber struct {
	Shared    message.Subscriber
	Exclusive message.Subscriber
	Routing   Routing
}

func (d *DirectedSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if d.Routing.Exclusive(topic) {
		return d.Exclusive.Subscribe(ctx, topic)
	}
	return d.Shared.Subscribe(ctx, topic)
}

// Close closes both subscribers and reports every failure.
func (d *DirectedSubscriber) Close() error {
	var errs []error
	for _, sub := range []message.Subscriber{d.Shared, d.Exclusive} {
		if sub == nil {
			continue
		}
		if err := sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
