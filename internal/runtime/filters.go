package runtime

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"golang.org/x/time/rate"

	"github.com/drblury/rpcflow/internal/runtime/codec"
	errspkg "github.com/drblury/rpcflow/internal/runtime/errors"
)

// Verdict is a filter's answer for one message.
type Verdict int

const (
	// Abstain means the filter has no opinion about the message.
	Abstain Verdict = iota
	// Accept dispatches the message and skips the remaining filters.
	Accept
	// Reject drops the message unless a later filter accepts it.
	Reject
)

func (v Verdict) String() string {
	switch v {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	default:
		return "abstain"
	}
}

// FilterInput is everything a predicate may inspect.
type FilterInput struct {
	Channel string
	Request *codec.Request
	Raw     *message.Message
	Handler *HandlerEntry
}

// Predicate decides about one message. A returned error (or a panic) is
// reported to the caller as filter_error and the handler is not invoked.
type Predicate func(ctx context.Context, in FilterInput) (Verdict, error)

// BoolPredicate adapts a yes/no function: true accepts, false rejects.
func BoolPredicate(fn func(in FilterInput) bool) Predicate {
	return func(_ context.Context, in FilterInput) (Verdict, error) {
		if fn(in) {
			return Accept, nil
		}
		return Reject, nil
	}
}

// Scope restricts a filter to one channel or type. The zero value matches
// everything.
type Scope struct {
	name string
	set  bool
}

// AnyScope matches every value.
func AnyScope() Scope { return Scope{} }

// ScopeOf matches exactly name.
func ScopeOf(name string) Scope { return Scope{name: name, set: true} }

func (s Scope) Matches(value string) bool {
	return !s.set || s.name == value
}

func (s Scope) String() string {
	if !s.set {
		return "*"
	}
	return s.name
}

// Filter is a predicate with its channel and type scope.
type Filter struct {
	Name      string
	Predicate Predicate
	Channel   Scope
	Type      Scope
}

func (f Filter) applies(channel, rpcType string) bool {
	return f.Channel.Matches(channel) && f.Type.Matches(rpcType)
}

// FilterChain holds filters in registration order.
type FilterChain struct {
	mu      sync.RWMutex
	filters []Filter
}

func (c *FilterChain) Add(f Filter) error {
	if f.Predicate == nil {
		return errspkg.ErrPredicateRequired
	}
	c.mu.Lock()
	c.filters = append(c.filters, f)
	c.mu.Unlock()
	return nil
}

func (c *FilterChain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.filters)
}

// ShouldProcess evaluates the applicable filters in order. The first Accept
// wins immediately. A Reject is remembered but a later Accept overrides it.
// With no applicable opinion the message is processed.
func (c *FilterChain) ShouldProcess(ctx context.Context, in FilterInput) (bool, error) {
	c.mu.RLock()
	filters := slices.Clone(c.filters)
	c.mu.RUnlock()

	rpcType := ""
	if in.Request != nil {
		rpcType = in.Request.Type
	}

	process := true
	for i, f := range filters {
		if !f.applies(in.Channel, rpcType) {
			continue
		}
		verdict, err := evaluate(ctx, f.Predicate, in)
		if err != nil {
			return false, &errspkg.FilterError{Index: i, Err: err}
		}
		switch verdict {
		case Accept:
			return true, nil
		case Reject:
			process = false
		}
	}
	return process, nil
}

func evaluate(ctx context.Context, p Predicate, in FilterInput) (verdict Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			verdict = Abstain
			err = fmt.Errorf("predicate panicked: %v", r)
		}
	}()
	return p(ctx, in)
}

// RateLimitFilter rejects messages once limiter runs out of tokens and
// abstains otherwise, so it never overrides another filter's decision.
func RateLimitFilter(limiter *rate.Limiter) Predicate {
	return func(_ context.Context, _ FilterInput) (Verdict, error) {
		if limiter.Allow() {
			return Abstain, nil
		}
		return Reject, nil
	}
}

// GatewayFilter accepts requests that arrived through one of gates and
// rejects requests from any other gate. Requests without gateway
// information are left to the other filters.
func GatewayFilter(gates ...string) Predicate {
	allowed := make(map[string]struct{}, len(gates))
	for _, gate := range gates {
		allowed[gate] = struct{}{}
	}
	return func(_ context.Context, in FilterInput) (Verdict, error) {
		if in.Request == nil || in.Request.Gateway == nil {
			return Abstain, nil
		}
		if _, ok := allowed[in.Request.Gateway.Gate]; ok {
			return Accept, nil
		}
		return Reject, nil
	}
}
