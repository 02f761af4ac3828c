package schema

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	jsoncodec "github.com/drblury/rpcflow/internal/runtime/jsoncodec"
)

// DefaultRedisPrefix namespaces the hashes written by RedisSink.
const DefaultRedisPrefix = "rpcflow:schema:"

// HashSetter is the subset of a go-redis client used by RedisSink.
type HashSetter interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RedisSink stores each Document as field <type> of hash <prefix><channel>.
type RedisSink struct {
	client HashSetter
	prefix string
}

func NewRedisSink(client HashSetter, prefix string) *RedisSink {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisSink{client: client, prefix: prefix}
}

func (s *RedisSink) Key(channel string) string {
	return s.prefix + channel
}

func (s *RedisSink) Notify(ctx context.Context, doc Document) error {
	data, err := jsoncodec.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode schema %s/%s: %w", doc.Channel, doc.Type, err)
	}
	if err := s.client.HSet(ctx, s.Key(doc.Channel), doc.Type, string(data)).Err(); err != nil {
		return fmt.Errorf("store schema %s/%s in redis: %w", doc.Channel, doc.Type, err)
	}
	return nil
}
