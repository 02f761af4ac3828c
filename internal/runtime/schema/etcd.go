package schema

import (
	"context"
	"fmt"
	"strings"

	clientv3 "go.etcd.io/etcd/client/v3"

	jsoncodec "github.com/drblury/rpcflow/internal/runtime/jsoncodec"
)

// DefaultEtcdPrefix is the key prefix used by EtcdSink.
const DefaultEtcdPrefix = "/rpcflow/schemas"

// EtcdSink stores each Document under <prefix>/<channel>/<type>. When Lease
// is set, entries disappear with the lease, so a crashed server stops
// advertising its RPCs.
type EtcdSink struct {
	kv     clientv3.KV
	prefix string
	Lease  clientv3.LeaseID
}

func NewEtcdSink(kv clientv3.KV, prefix string) *EtcdSink {
	if prefix == "" {
		prefix = DefaultEtcdPrefix
	}
	return &EtcdSink{kv: kv, prefix: strings.TrimSuffix(prefix, "/")}
}

func (s *EtcdSink) Key(channel, rpcType string) string {
	return s.prefix + "/" + channel + "/" + rpcType
}

func (s *EtcdSink) Notify(ctx context.Context, doc Document) error {
	data, err := jsoncodec.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode schema %s/%s: %w", doc.Channel, doc.Type, err)
	}
	var opts []clientv3.OpOption
	if s.Lease != clientv3.NoLease {
		opts = append(opts, clientv3.WithLease(s.Lease))
	}
	if _, err := s.kv.Put(ctx, s.Key(doc.Channel, doc.Type), string(data), opts...); err != nil {
		return fmt.Errorf("store schema %s/%s in etcd: %w", doc.Channel, doc.Type, err)
	}
	return nil
}
