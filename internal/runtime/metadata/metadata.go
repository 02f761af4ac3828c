package metadata

// Metadata represents the headers carried alongside an RPC message on the
// transport. Envelope fields stay in the payload; headers only describe routing.
type Metadata map[string]string

// Reserved header keys stamped on every RPC message.
const (
	// KeyChannel is the logical RPC channel of the message.
	KeyChannel = "rpc_channel"
	// KeyKind is either KindRequest or KindResponse.
	KeyKind = "rpc_kind"
	// KeySender is the name of the server or client that published the message.
	KeySender = "rpc_sender"
	// KeyCorrelationID mirrors the rpc_id for transports that index headers.
	KeyCorrelationID = "correlation_id"
)

const (
	KindRequest  = "request"
	KindResponse = "response"
)

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	cloned := make(Metadata, len(m))
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// With returns a cloned metadata map containing the provided key/value pair.
// Empty values are skipped.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.Clone()
	if value != "" {
		cloned[key] = value
	}
	return cloned
}

// New constructs a Metadata map from alternating key/value pairs.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}
