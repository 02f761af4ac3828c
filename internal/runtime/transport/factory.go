package transport

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/rpcflow/internal/runtime/config"
	backend "github.com/drblury/rpcflow/transport"

	// Import all transport packages to register them.
	_ "github.com/drblury/rpcflow/transport/transports"
)

// Factory abstracts how an RPC server obtains its publisher and subscriber.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (backend.Transport, error)
}

// FactoryFunc adapts a plain function to Factory.
type FactoryFunc func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (backend.Transport, error)

func (f FactoryFunc) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (backend.Transport, error) {
	return f(ctx, conf, logger)
}

// DefaultFactory returns the factory backed by the transport registry.
func DefaultFactory() Factory {
	return defaultFactory{}
}

type defaultFactory struct{}

func (defaultFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (backend.Transport, error) {
	if conf == nil {
		return backend.Transport{}, errors.New("config is required")
	}
	return backend.Build(ctx, conf, logger)
}

// Capabilities reports what the configured backend guarantees.
func Capabilities(conf *config.Config) backend.Capabilities {
	if conf == nil {
		return backend.Capabilities{}
	}
	return backend.GetCapabilities(conf.PubSubSystem)
}
