package runtime

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"

	errspkg "github.com/drblury/rpcflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/rpcflow/internal/runtime/handlers"
)

type handlerKey struct {
	channel string
	rpcType string
}

// HandlerEntry binds one (channel, type) pair to its schemas and invoker.
// Entries are created at registration time and never change afterwards.
type HandlerEntry struct {
	Channel        string
	Type           string
	RequestSchema  *jsonschema.Schema
	ResponseSchema *jsonschema.Schema

	invoke handlerpkg.Invoker
}

// NewHandlerEntry builds an entry around an already compiled invoker.
func NewHandlerEntry(channel, rpcType string, invoke handlerpkg.Invoker, request, response *jsonschema.Schema) *HandlerEntry {
	return &HandlerEntry{
		Channel:        channel,
		Type:           rpcType,
		RequestSchema:  request,
		ResponseSchema: response,
		invoke:         invoke,
	}
}

func (e *HandlerEntry) Invoke(ctx context.Context, call handlerpkg.RawCall) (json.RawMessage, error) {
	return e.invoke(ctx, call)
}

// Registry maps (channel, type) to a HandlerEntry. Writes happen before the
// dispatch loop starts; the lock only guards against misuse during setup.
type Registry struct {
	mu      sync.RWMutex
	entries map[handlerKey]*HandlerEntry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[handlerKey]*HandlerEntry)}
}

// Register adds entry. A second registration for the same pair is a
// *errors.ConfigurationError wrapping ErrDuplicateHandler.
func (r *Registry) Register(entry *HandlerEntry) error {
	if entry == nil || entry.invoke == nil {
		return errspkg.ErrHandlerRequired
	}
	if entry.Channel == "" {
		return &errspkg.ConfigurationError{Channel: entry.Channel, Type: entry.Type, Err: errspkg.ErrChannelRequired}
	}
	if entry.Type == "" {
		return &errspkg.ConfigurationError{Channel: entry.Channel, Type: entry.Type, Err: errspkg.ErrTypeRequired}
	}

	k := handlerKey{channel: entry.Channel, rpcType: entry.Type}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[k]; exists {
		return &errspkg.ConfigurationError{Channel: entry.Channel, Type: entry.Type, Err: errspkg.ErrDuplicateHandler}
	}
	r.entries[k] = entry
	return nil
}

// Find returns the entry for (channel, type). Unknown pairs are a normal
// runtime occurrence and report false rather than an error.
func (r *Registry) Find(channel, rpcType string) (*HandlerEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[handlerKey{channel: channel, rpcType: rpcType}]
	return entry, ok
}

// Channels lists every channel with at least one handler, sorted.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	channels := make([]string, 0)
	for k := range r.entries {
		if _, ok := seen[k.channel]; ok {
			continue
		}
		seen[k.channel] = struct{}{}
		channels = append(channels, k.channel)
	}
	slices.Sort(channels)
	return channels
}

// Entries returns all entries sorted by channel, then type.
func (r *Registry) Entries() []*HandlerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*HandlerEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	slices.SortFunc(entries, func(a, b *HandlerEntry) int {
		if c := strings.Compare(a.Channel, b.Channel); c != 0 {
			return c
		}
		return strings.Compare(a.Type, b.Type)
	})
	return entries
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
