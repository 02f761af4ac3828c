package transport

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
)

// ErrUnknownTransport is returned by Build when no backend answers to the
// configured pubsub system.
var ErrUnknownTransport = errors.New("transport: unknown pubsub system")

type backend struct {
	build Builder
	caps  Capabilities
}

// Registry maps pubsub system names to backends. Names are matched case
// insensitively, the same way config validation reads them.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]backend
}

// DefaultRegistry is the registry backends add themselves to from init.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]backend)}
}

func registryKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds or replaces a backend without declared capabilities.
func (r *Registry) Register(name string, builder Builder) {
	r.RegisterWithCapabilities(name, builder, Capabilities{Name: name})
}

// RegisterWithCapabilities adds or replaces a backend. A nil builder is a
// programming error and panics.
func (r *Registry) RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	if builder == nil {
		panic("transport: nil builder for " + name)
	}
	if caps.Name == "" {
		caps.Name = name
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[registryKey(name)] = backend{build: builder, caps: caps}
}

// GetCapabilities returns what the named backend declared, or a value that
// carries only the name when the backend is unknown.
func (r *Registry) GetCapabilities(name string) Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.backends[registryKey(name)]; ok {
		return b.caps
	}
	return Capabilities{Name: name}
}

// Build runs the backend selected by cfg. A backend that comes back with a
// missing half is rejected and whatever it did return is closed.
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	if cfg == nil {
		return Transport{}, errors.New("transport: config is required")
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	name := cfg.GetPubSubSystem()
	r.mu.RLock()
	b, ok := r.backends[registryKey(name)]
	r.mu.RUnlock()
	if !ok {
		return Transport{}, fmt.Errorf("%w %q (registered: %v)", ErrUnknownTransport, name, r.Names())
	}

	tr, err := b.build(ctx, cfg, logger)
	if err != nil {
		return Transport{}, fmt.Errorf("transport %s: %w", b.caps.Name, err)
	}
	if tr.Publisher == nil || tr.Subscriber == nil {
		_ = tr.Close()
		return Transport{}, fmt.Errorf("transport %s: builder returned an incomplete transport", b.caps.Name)
	}

	routing := RoutingFor(cfg)
	logger.Debug("Transport ready", watermill.LogFields{
		"transport":       b.caps.Name,
		"instance":        routing.Instance,
		"response_prefix": routing.ResponsePrefix,
		"durable":         b.caps.Durable,
	})
	return tr, nil
}

// Names lists the registered backends in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for _, b := range r.backends {
		names = append(names, b.caps.Name)
	}
	slices.Sort(names)
	return names
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.backends[registryKey(name)]
	return ok
}

// Register adds a backend to the default registry.
func Register(name string, builder Builder) {
	DefaultRegistry.Register(name, builder)
}

// RegisterWithCapabilities adds a backend and its capabilities to the default registry.
func RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	DefaultRegistry.RegisterWithCapabilities(name, builder, caps)
}

// Build creates a transport using the default registry.
func Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}
