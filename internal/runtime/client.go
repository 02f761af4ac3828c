package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/drblury/rpcflow/internal/runtime/codec"
	configpkg "github.com/drblury/rpcflow/internal/runtime/config"
	errspkg "github.com/drblury/rpcflow/internal/runtime/errors"
	idspkg "github.com/drblury/rpcflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/rpcflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/rpcflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/rpcflow/internal/runtime/metadata"
	transportpkg "github.com/drblury/rpcflow/internal/runtime/transport"
)

const DefaultCallTimeout = 5 * time.Second

// ClientConfig configures a Client. Topic prefixes must match the server's.
type ClientConfig struct {
	// Name is stamped as sender on every request. Defaults to "client-<ulid>".
	Name                string
	RequestTopicPrefix  string
	ResponseTopicPrefix string
	// Timeout bounds each Call unless the context expires first.
	Timeout time.Duration
	// PollInterval is the receive timeout of the response loop.
	PollInterval time.Duration
}

func (c *ClientConfig) applyDefaults() {
	if c.Name == "" {
		c.Name = idspkg.ServerName("client")
	}
	if c.RequestTopicPrefix == "" {
		c.RequestTopicPrefix = configpkg.DefaultRequestTopicPrefix
	}
	if c.ResponseTopicPrefix == "" {
		c.ResponseTopicPrefix = configpkg.DefaultResponseTopicPrefix
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultCallTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = configpkg.DefaultReceiveTimeout
	}
}

// RemoteError is returned by CallJSON when the server answered with a
// status other than ok.
type RemoteError struct {
	Channel   string
	Type      string
	Status    string
	Exception string
}

func (e *RemoteError) Error() string {
	if e.Exception != "" {
		return fmt.Sprintf("rpc %s/%s: %s: %s", e.Channel, e.Type, e.Status, e.Exception)
	}
	return fmt.Sprintf("rpc %s/%s: %s", e.Channel, e.Type, e.Status)
}

type callOptions struct {
	rpcID   string
	gateway *codec.Gateway
	timeout time.Duration
}

// CallOption customises a single Call.
type CallOption func(*callOptions)

// WithRPCID replaces the generated rpc_id.
func WithRPCID(id string) CallOption {
	return func(o *callOptions) { o.rpcID = id }
}

// WithGateway attaches gateway information to the request.
func WithGateway(gate, direction string) CallOption {
	return func(o *callOptions) { o.gateway = &codec.Gateway{Gate: gate, Direction: direction} }
}

// WithTimeout overrides ClientConfig.Timeout for one call.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// Client sends requests to RPC servers and waits for the correlated
// responses. It is safe for concurrent use.
type Client struct {
	conf    ClientConfig
	scheme  codec.TopicScheme
	adapter *transportpkg.Adapter
	logger  loggingpkg.ServiceLogger

	mu      sync.Mutex
	pending map[string]chan *codec.Response
	closed  bool

	wg sync.WaitGroup
}

// NewClient creates a client over pub and sub. The client does not own
// them; closing the client leaves both open. On brokers, sub should come
// from a transport whose config names this process, so its response queue
// or consumer group is not shared with other callers.
func NewClient(pub message.Publisher, sub message.Subscriber, conf ClientConfig, logger loggingpkg.ServiceLogger) *Client {
	conf.applyDefaults()
	if logger == nil {
		logger = loggingpkg.Discard()
	}
	scheme := codec.TopicScheme{RequestPrefix: conf.RequestTopicPrefix, ResponsePrefix: conf.ResponseTopicPrefix}
	c := &Client{
		conf:    conf,
		scheme:  scheme,
		adapter: transportpkg.NewAdapter(pub, sub, scheme, logger),
		logger:  logger.With(loggingpkg.LogFields{"client": conf.Name}),
		pending: make(map[string]chan *codec.Response),
	}
	c.wg.Add(1)
	go c.receive()
	return c
}

// Call publishes a request and waits for its response. payload may be nil,
// raw JSON, or any value that marshals to a JSON object.
func (c *Client) Call(ctx context.Context, channel, rpcType string, payload any, opts ...CallOption) (*codec.Response, error) {
	o := callOptions{timeout: c.conf.Timeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rpcID == "" {
		o.rpcID = uuid.NewString()
	}
	if channel == "" {
		return nil, errspkg.ErrChannelRequired
	}
	if rpcType == "" {
		return nil, errspkg.ErrTypeRequired
	}

	request, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}
	data, err := codec.EncodeRequest(&codec.Request{
		Type:    rpcType,
		RPCID:   codec.StringID(o.rpcID),
		Request: request,
		Gateway: o.gateway,
	})
	if err != nil {
		return nil, err
	}

	// The response subscription must exist before the request leaves.
	if err := c.adapter.SubscribeTopic(c.scheme.ResponseTopic(channel)); err != nil {
		return nil, c.mapClosed(err)
	}

	wait, err := c.track(o.rpcID)
	if err != nil {
		return nil, err
	}
	defer c.untrack(o.rpcID)

	md := metadatapkg.New(
		metadatapkg.KeyChannel, channel,
		metadatapkg.KeyKind, metadatapkg.KindRequest,
		metadatapkg.KeySender, c.conf.Name,
		metadatapkg.KeyCorrelationID, o.rpcID,
	)
	if err := c.adapter.Publish(c.scheme.RequestTopic(channel), data, md); err != nil {
		return nil, c.mapClosed(err)
	}

	timer := time.NewTimer(o.timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-wait:
		if !ok {
			return nil, errspkg.ErrClientClosed
		}
		return resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s/%s rpc_id %s after %s", errspkg.ErrRequestTimeout, channel, rpcType, o.rpcID, o.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CallJSON calls the RPC and decodes an ok response into O. Any other
// status is returned as a *RemoteError.
func CallJSON[O any](ctx context.Context, c *Client, channel, rpcType string, payload any, opts ...CallOption) (O, error) {
	var out O
	resp, err := c.Call(ctx, channel, rpcType, payload, opts...)
	if err != nil {
		return out, err
	}
	if status := resp.Status(); status != codec.StatusOK {
		return out, &RemoteError{Channel: channel, Type: rpcType, Status: status, Exception: resp.Exception()}
	}
	if err := resp.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

// Close stops the response loop. Pending calls fail with ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	err := c.adapter.Close()
	c.wg.Wait()
	return err
}

func (c *Client) track(rpcID string) (<-chan *codec.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errspkg.ErrClientClosed
	}
	if _, exists := c.pending[rpcID]; exists {
		return nil, fmt.Errorf("rpcflow: rpc_id %s already in flight", rpcID)
	}
	ch := make(chan *codec.Response, 1)
	c.pending[rpcID] = ch
	return ch, nil
}

func (c *Client) untrack(rpcID string) {
	c.mu.Lock()
	delete(c.pending, rpcID)
	c.mu.Unlock()
}

func (c *Client) receive() {
	defer c.wg.Done()
	for {
		delivery, err := c.adapter.Receive(c.conf.PollInterval)
		if err != nil {
			return
		}
		if delivery == nil {
			continue
		}
		c.route(delivery)
	}
}

// route hands a response to the waiting Call. Responses for other clients
// sharing the topic are ignored.
func (c *Client) route(delivery *transportpkg.Delivery) {
	defer delivery.Ack()

	resp, err := codec.DecodeResponse(delivery.Payload())
	if err != nil {
		c.logger.Debug("Ignoring undecodable response", loggingpkg.LogFields{"topic": delivery.Topic, "error": err.Error()})
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[resp.ID()]
	if ok {
		delete(c.pending, resp.ID())
	}
	c.mu.Unlock()

	if ok {
		ch <- resp
	}
}

func (c *Client) mapClosed(err error) error {
	if transportpkg.IsClosed(err) {
		return errspkg.ErrClientClosed
	}
	return err
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	default:
		data, err := jsoncodec.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("rpcflow: encode request payload: %w", err)
		}
		return data, nil
	}
}
