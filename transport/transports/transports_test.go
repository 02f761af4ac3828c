package transports

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drblury/rpcflow/transport"
)

func TestAllTransportsRegistered(t *testing.T) {
	for _, name := range []string{"aws", "channel", "kafka", "nats", "rabbitmq", "redis"} {
		assert.True(t, transport.DefaultRegistry.Has(name), name)
		assert.Equal(t, name, transport.GetCapabilities(name).Name)
	}
}
