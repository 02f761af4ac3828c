// Package channel provides an in-memory transport. Every channel transport
// built in one process attaches to the same bus, so a server and a client
// built separately still reach each other. Messages never leave the process.
package channel

import (
	"context"
	"errors"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/rpcflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// OutputChannelBuffer is the per-subscription buffer of the in-memory pubsub.
const OutputChannelBuffer = 64

// ErrDetached is returned by a transport half used after it was closed.
var ErrDetached = errors.New("channel transport: detached from bus")

// Factory allows overriding the bus creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

// bus is the process wide pubsub. It is created by the first attach and
// closed when the last attached half detaches.
type bus struct {
	pub  message.Publisher
	sub  message.Subscriber
	refs int
}

var (
	busMu  sync.Mutex
	active *bus
)

func attach(logger watermill.LoggerAdapter) *bus {
	busMu.Lock()
	defer busMu.Unlock()
	if active == nil {
		pub, sub := Factory(gochannel.Config{OutputChannelBuffer: OutputChannelBuffer}, logger)
		active = &bus{pub: pub, sub: sub}
	}
	// one reference per half
	active.refs += 2
	return active
}

func (b *bus) detach() error {
	busMu.Lock()
	defer busMu.Unlock()
	b.refs--
	if b.refs > 0 {
		return nil
	}
	if active == b {
		active = nil
	}
	subErr := b.sub.Close()
	var pubErr error
	if any(b.pub) != any(b.sub) {
		pubErr = b.pub.Close()
	}
	return errors.Join(subErr, pubErr)
}

func init() {
	Register()
}

// Register registers the channel transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build attaches a new transport to the process bus.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	b := attach(logger)
	return transport.Transport{
		Publisher:  &publisher{bus: b},
		Subscriber: &subscriber{bus: b},
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}

type publisher struct {
	bus  *bus
	once sync.Once
	mu   sync.RWMutex
	done bool
}

func (p *publisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.done {
		return ErrDetached
	}
	return p.bus.pub.Publish(topic, messages...)
}

func (p *publisher) Close() error {
	var err error
	p.once.Do(func() {
		p.mu.Lock()
		p.done = true
		p.mu.Unlock()
		err = p.bus.detach()
	})
	return err
}

// subscriber hands out bus subscriptions. They end when the caller's context
// is cancelled or the bus closes.
type subscriber struct {
	bus  *bus
	once sync.Once
	mu   sync.RWMutex
	done bool
}

func (s *subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.done {
		return nil, ErrDetached
	}
	return s.bus.sub.Subscribe(ctx, topic)
}

func (s *subscriber) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.done = true
		s.mu.Unlock()
		err = s.bus.detach()
	})
	return err
}
