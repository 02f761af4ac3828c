package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/drblury/rpcflow/internal/runtime/codec"
	errspkg "github.com/drblury/rpcflow/internal/runtime/errors"
)

func constant(v Verdict) Predicate {
	return func(context.Context, FilterInput) (Verdict, error) { return v, nil }
}

func filterInput(channel, rpcType string) FilterInput {
	return FilterInput{Channel: channel, Request: &codec.Request{Type: rpcType}}
}

func TestFilterChainVerdicts(t *testing.T) {
	tests := []struct {
		name    string
		filters []Filter
		want    bool
	}{
		{name: "no filters", want: true},
		{name: "abstain only", filters: []Filter{{Predicate: constant(Abstain)}}, want: true},
		{name: "reject", filters: []Filter{{Predicate: constant(Reject)}}, want: false},
		{name: "accept", filters: []Filter{{Predicate: constant(Accept)}}, want: true},
		{
			name:    "later accept overrides reject",
			filters: []Filter{{Predicate: constant(Reject)}, {Predicate: constant(Accept)}},
			want:    true,
		},
		{
			name:    "accept short circuits",
			filters: []Filter{{Predicate: constant(Accept)}, {Predicate: constant(Reject)}},
			want:    true,
		},
		{
			name:    "out of scope filter is skipped",
			filters: []Filter{{Predicate: constant(Reject), Channel: ScopeOf("other")}},
			want:    true,
		},
		{
			name:    "type scope",
			filters: []Filter{{Predicate: constant(Reject), Type: ScopeOf("ping")}},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := &FilterChain{}
			for _, f := range tt.filters {
				require.NoError(t, chain.Add(f))
			}
			got, err := chain.ShouldProcess(context.Background(), filterInput("device", "ping"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterChainStopsAtAccept(t *testing.T) {
	called := false
	chain := &FilterChain{}
	require.NoError(t, chain.Add(Filter{Predicate: constant(Accept)}))
	require.NoError(t, chain.Add(Filter{Predicate: func(context.Context, FilterInput) (Verdict, error) {
		called = true
		return Reject, nil
	}}))

	ok, err := chain.ShouldProcess(context.Background(), filterInput("device", "ping"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, called)
}

func TestFilterChainErrors(t *testing.T) {
	chain := &FilterChain{}
	assert.ErrorIs(t, chain.Add(Filter{}), errspkg.ErrPredicateRequired)
	assert.Zero(t, chain.Len())

	require.NoError(t, chain.Add(Filter{Predicate: constant(Abstain)}))
	require.NoError(t, chain.Add(Filter{Predicate: func(context.Context, FilterInput) (Verdict, error) {
		return Accept, errors.New("lookup failed")
	}}))

	_, err := chain.ShouldProcess(context.Background(), filterInput("device", "ping"))
	var filterErr *errspkg.FilterError
	require.ErrorAs(t, err, &filterErr)
	assert.Equal(t, 1, filterErr.Index)
	assert.Equal(t, errspkg.StatusFilterError, errspkg.StatusOf(err))

	panicking := &FilterChain{}
	require.NoError(t, panicking.Add(Filter{Predicate: func(context.Context, FilterInput) (Verdict, error) {
		panic("boom")
	}}))
	_, err = panicking.ShouldProcess(context.Background(), filterInput("device", "ping"))
	require.ErrorAs(t, err, &filterErr)
	assert.Contains(t, err.Error(), "boom")
}

func TestScope(t *testing.T) {
	assert.True(t, AnyScope().Matches("anything"))
	assert.True(t, Scope{}.Matches(""))
	assert.True(t, ScopeOf("a").Matches("a"))
	assert.False(t, ScopeOf("a").Matches("b"))
	assert.True(t, ScopeOf("").Matches(""))
	assert.False(t, ScopeOf("").Matches("a"))
	assert.Equal(t, "*", AnyScope().String())
	assert.Equal(t, "a", ScopeOf("a").String())
}

func TestBoolPredicate(t *testing.T) {
	p := BoolPredicate(func(in FilterInput) bool { return in.Channel == "device" })

	v, err := p(context.Background(), filterInput("device", "ping"))
	require.NoError(t, err)
	assert.Equal(t, Accept, v)

	v, err = p(context.Background(), filterInput("sensor", "ping"))
	require.NoError(t, err)
	assert.Equal(t, Reject, v)
	assert.Equal(t, "reject", v.String())
}

func TestGatewayFilter(t *testing.T) {
	p := GatewayFilter("north", "east")

	withGate := func(gate string) FilterInput {
		in := filterInput("device", "ping")
		in.Request.Gateway = &codec.Gateway{Gate: gate, Direction: "in"}
		return in
	}

	v, _ := p(context.Background(), filterInput("device", "ping"))
	assert.Equal(t, Abstain, v)
	v, _ = p(context.Background(), withGate("north"))
	assert.Equal(t, Accept, v)
	v, _ = p(context.Background(), withGate("south"))
	assert.Equal(t, Reject, v)
}

func TestRateLimitFilter(t *testing.T) {
	p := RateLimitFilter(rate.NewLimiter(rate.Every(1<<62), 2))

	for i := 0; i < 2; i++ {
		v, err := p(context.Background(), filterInput("device", "ping"))
		require.NoError(t, err)
		assert.Equal(t, Abstain, v)
	}
	v, err := p(context.Background(), filterInput("device", "ping"))
	require.NoError(t, err)
	assert.Equal(t, Reject, v)
}
