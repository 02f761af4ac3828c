// Package schema publishes the request and response schema of every
// registered RPC so tooling can discover what a server speaks.
package schema

import (
	"context"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
)

// Document describes one (channel, type) pair.
type Document struct {
	Channel  string             `json:"channel"`
	Type     string             `json:"type"`
	Server   string             `json:"server,omitempty"`
	Request  *jsonschema.Schema `json:"request,omitempty"`
	Response *jsonschema.Schema `json:"response,omitempty"`
}

// Reflect builds an inlined JSON schema for T. Pointer types are reflected
// through to the type they point at.
func Reflect[T any]() *jsonschema.Schema {
	t := reflect.TypeFor[T]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: t.Kind() == reflect.Struct && t.Name() != "",
	}
	return r.ReflectFromType(t)
}

// Sink receives a Document whenever a handler is registered. Failures are
// reported but never block registration.
type Sink interface {
	Notify(ctx context.Context, doc Document) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, doc Document) error

func (f SinkFunc) Notify(ctx context.Context, doc Document) error {
	return f(ctx, doc)
}

type key struct {
	channel string
	rpcType string
}

// Registry keeps every Document in memory. The server always owns one so the
// docs endpoint can list schemas without any external store.
type Registry struct {
	mu   sync.RWMutex
	docs map[key]Document
}

func NewRegistry() *Registry {
	return &Registry{docs: make(map[key]Document)}
}

func (r *Registry) Notify(_ context.Context, doc Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[key{doc.Channel, doc.Type}] = doc
	return nil
}

func (r *Registry) Lookup(channel, rpcType string) (Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[key{channel, rpcType}]
	return doc, ok
}

// Documents returns all documents ordered by channel, then type.
func (r *Registry) Documents() []Document {
	r.mu.RLock()
	docs := make([]Document, 0, len(r.docs))
	for _, doc := range r.docs {
		docs = append(docs, doc)
	}
	r.mu.RUnlock()

	slices.SortFunc(docs, func(a, b Document) int {
		if c := strings.Compare(a.Channel, b.Channel); c != 0 {
			return c
		}
		return strings.Compare(a.Type, b.Type)
	})
	return docs
}
