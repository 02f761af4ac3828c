package handlers

import (
	"encoding/json"

	"github.com/drblury/rpcflow/internal/runtime/codec"
	loggingpkg "github.com/drblury/rpcflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/rpcflow/internal/runtime/metadata"
)

// CallBase carries the envelope fields every handler can see besides its
// typed payload.
type CallBase struct {
	Channel  string
	Type     string
	RPCID    json.RawMessage
	Gateway  *codec.Gateway
	Metadata metadatapkg.Metadata
	Logger   loggingpkg.ServiceLogger
}

// ID returns the caller's rpc_id with string ids unquoted.
func (b CallBase) ID() string {
	req := codec.Request{RPCID: b.RPCID}
	return req.ID()
}

// Get retrieves a transport header by key.
func (b CallBase) Get(key string) string {
	return b.Metadata[key]
}

// Gate returns the gateway name or an empty string when the request did not
// pass through a gateway.
func (b CallBase) Gate() string {
	if b.Gateway == nil {
		return ""
	}
	return b.Gateway.Gate
}

// Call is the typed view of one request.
type Call[T any] struct {
	CallBase
	Payload T
}

// RawCall is what the dispatch loop hands to an Invoker. Request is the raw
// request payload from the envelope and may be empty.
type RawCall struct {
	CallBase
	Request json.RawMessage
}
