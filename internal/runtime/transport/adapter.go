// Package transport bridges watermill publishers and subscribers to the
// receive-with-timeout model used by the RPC dispatch loop.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/rpcflow/internal/runtime/codec"
	errspkg "github.com/drblury/rpcflow/internal/runtime/errors"
	idspkg "github.com/drblury/rpcflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/rpcflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/rpcflow/internal/runtime/metadata"
)

// Delivery is one message received from a subscribed topic.
type Delivery struct {
	Topic   string
	Channel string
	Message *message.Message
}

func (d *Delivery) Payload() []byte {
	return d.Message.Payload
}

func (d *Delivery) Metadata() metadatapkg.Metadata {
	return metadatapkg.FromWatermill(d.Message.Metadata)
}

// Ack confirms the delivery. Every delivery must be acked or nacked, otherwise
// backends that wait for acknowledgement stop sending on that topic.
func (d *Delivery) Ack() bool {
	return d.Message.Ack()
}

func (d *Delivery) Nack() bool {
	return d.Message.Nack()
}

// Adapter fans every subscribed topic into a single stream consumed through
// Receive. It owns neither the publisher nor the subscriber.
type Adapter struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	scheme     codec.TopicScheme
	logger     loggingpkg.ServiceLogger

	ctx    context.Context
	cancel context.CancelFunc

	incoming chan *Delivery

	mu         sync.Mutex
	subscribed map[string]struct{}
	closed     bool

	failed     chan struct{}
	failOnce   sync.Once
	failReason error

	wg sync.WaitGroup
}

// NewAdapter creates an adapter over pub and sub. Either may be nil for a
// publish-only or receive-only adapter.
func NewAdapter(pub message.Publisher, sub message.Subscriber, scheme codec.TopicScheme, logger loggingpkg.ServiceLogger) *Adapter {
	if logger == nil {
		logger = loggingpkg.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Adapter{
		publisher:  pub,
		subscriber: sub,
		scheme:     scheme,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		incoming:   make(chan *Delivery),
		subscribed: make(map[string]struct{}),
		failed:     make(chan struct{}),
	}
}

func (a *Adapter) Scheme() codec.TopicScheme {
	return a.scheme
}

// Subscribe starts receiving requests for channel.
func (a *Adapter) Subscribe(channel string) error {
	return a.SubscribeTopic(a.scheme.RequestTopic(channel))
}

// SubscribeTopic starts receiving messages published to topic. Subscribing
// to the same topic twice is a no-op.
func (a *Adapter) SubscribeTopic(topic string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return errspkg.ErrTransportClosed
	}
	if a.subscriber == nil {
		return errspkg.ErrSubscriberRequired
	}
	if _, ok := a.subscribed[topic]; ok {
		return nil
	}

	messages, err := a.subscriber.Subscribe(a.ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	a.subscribed[topic] = struct{}{}

	channel, _ := a.scheme.ChannelFromTopic(topic)
	a.wg.Add(1)
	go a.forward(topic, channel, messages)

	a.logger.Debug("Subscribed", loggingpkg.LogFields{"topic": topic, "channel": channel})
	return nil
}

func (a *Adapter) forward(topic, channel string, messages <-chan *message.Message) {
	defer a.wg.Done()
	for {
		select {
		case <-a.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				if a.ctx.Err() == nil {
					a.fail(fmt.Errorf("%w: subscription to %s ended", errspkg.ErrTransportClosed, topic))
				}
				return
			}
			delivery := &Delivery{Topic: topic, Channel: channel, Message: msg}
			select {
			case a.incoming <- delivery:
			case <-a.ctx.Done():
				msg.Nack()
				return
			}
		}
	}
}

func (a *Adapter) fail(reason error) {
	a.failOnce.Do(func() {
		a.failReason = reason
		a.logger.Error("Transport subscription lost", reason, nil)
		close(a.failed)
	})
}

// Receive waits up to timeout for the next delivery. It returns (nil, nil)
// when the timeout elapses and ErrTransportClosed once the adapter is closed
// or a subscription ended underneath it.
func (a *Adapter) Receive(timeout time.Duration) (*Delivery, error) {
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-a.ctx.Done():
		return nil, errspkg.ErrTransportClosed
	default:
	}

	select {
	case delivery := <-a.incoming:
		return delivery, nil
	case <-a.failed:
		return nil, a.failReason
	case <-a.ctx.Done():
		return nil, errspkg.ErrTransportClosed
	case <-timer.C:
		return nil, nil
	}
}

// Publish sends payload to topic with a fresh message id.
func (a *Adapter) Publish(topic string, payload []byte, md metadatapkg.Metadata) error {
	if a.publisher == nil {
		return errspkg.ErrPublisherRequired
	}
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return errspkg.ErrTransportClosed
	}

	msg := message.NewMessage(idspkg.CreateULID(), payload)
	md.Apply(msg)
	if err := a.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Topics returns the topics subscribed so far.
func (a *Adapter) Topics() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	topics := make([]string, 0, len(a.subscribed))
	for topic := range a.subscribed {
		topics = append(topics, topic)
	}
	return topics
}

// Close stops all subscriptions. Messages already handed to forwarders but
// not yet received are nacked so the backend may redeliver them.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.cancel()
	a.wg.Wait()
	return nil
}

// IsClosed reports whether err signals that the adapter can no longer receive.
func IsClosed(err error) bool {
	return errors.Is(err, errspkg.ErrTransportClosed)
}
