// Package transporttest holds fakes shared by the transport backend tests.
package transporttest

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Config is a plain struct implementation of transport.Config.
type Config struct {
	PubSubSystem        string
	InstanceName        string
	ResponseTopicPrefix string
	KafkaBrokers        []string
	KafkaConsumerGroup  string
	RabbitMQURL         string
	NATSURL             string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	AWSRegion           string
	AWSAccountID        string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpoint         string
}

func (c *Config) GetPubSubSystem() string        { return c.PubSubSystem }
func (c *Config) GetInstanceName() string        { return c.InstanceName }
func (c *Config) GetResponseTopicPrefix() string { return c.ResponseTopicPrefix }
func (c *Config) GetKafkaBrokers() []string      { return c.KafkaBrokers }
func (c *Config) GetKafkaConsumerGroup() string  { return c.KafkaConsumerGroup }
func (c *Config) GetRabbitMQURL() string         { return c.RabbitMQURL }
func (c *Config) GetNATSURL() string             { return c.NATSURL }
func (c *Config) GetRedisAddr() string           { return c.RedisAddr }
func (c *Config) GetRedisPassword() string       { return c.RedisPassword }
func (c *Config) GetRedisDB() int                { return c.RedisDB }
func (c *Config) GetAWSRegion() string           { return c.AWSRegion }
func (c *Config) GetAWSAccountID() string        { return c.AWSAccountID }
func (c *Config) GetAWSAccessKeyID() string      { return c.AWSAccessKeyID }
func (c *Config) GetAWSSecretAccessKey() string  { return c.AWSSecretAccessKey }
func (c *Config) GetAWSEndpoint() string         { return c.AWSEndpoint }

// Publisher records the topics it was asked to publish to.
type Publisher struct {
	mu     sync.Mutex
	topics []string
	closed bool
}

func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *Publisher) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Publisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

// Subscriber hands out channels that never deliver and records the topics
// it was asked to subscribe to.
type Subscriber struct {
	mu     sync.Mutex
	topics []string
	closed bool
}

func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = append(s.topics, topic)
	return make(chan *message.Message), nil
}

func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Subscriber) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Subscriber) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.topics...)
}
