// Package transports imports all built-in transports for auto-registration.
// Import this package to have all transports registered with the default registry.
package transports

import (
	_ "github.com/drblury/rpcflow/transport/aws"
	_ "github.com/drblury/rpcflow/transport/channel"
	_ "github.com/drblury/rpcflow/transport/kafka"
	_ "github.com/drblury/rpcflow/transport/nats"
	_ "github.com/drblury/rpcflow/transport/rabbitmq"
	_ "github.com/drblury/rpcflow/transport/redis"
)
