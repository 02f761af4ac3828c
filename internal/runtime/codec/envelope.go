// Package codec maps RPC envelopes to and from wire bytes.
//
// Envelopes are JSON objects. The request payload and the caller's rpc_id are
// kept as raw JSON so the server never rewrites them: rpc_id travels back to
// the caller byte for byte, and payload decoding is left to the handler that
// owns the payload schema.
package codec

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	errspkg "github.com/drblury/rpcflow/internal/runtime/errors"
	jsoncodec "github.com/drblury/rpcflow/internal/runtime/jsoncodec"
)

// Gateway is optional routing metadata attached by edge gateways. Filters use
// it to decide whether a request should be served.
type Gateway struct {
	Gate      string `json:"gate"`
	Direction string `json:"direction"`
}

// Request is the inbound envelope.
type Request struct {
	Type    string          `json:"type"`
	RPCID   json.RawMessage `json:"rpc_id,omitempty"`
	Request json.RawMessage `json:"request,omitempty"`
	Gateway *Gateway        `json:"gateway,omitempty"`
}

// ID returns the rpc_id in a log friendly form. String ids are unquoted.
func (r *Request) ID() string {
	return idString(r.RPCID)
}

// Response is the outbound envelope. A nil RPCID is encoded as null.
type Response struct {
	Type     string          `json:"type"`
	RPCID    json.RawMessage `json:"rpc_id"`
	Response json.RawMessage `json:"response"`
	Name     string          `json:"name"`
}

// ID returns the rpc_id in a log friendly form.
func (r *Response) ID() string {
	return idString(r.RPCID)
}

// Status returns response.status, or an empty string when it is missing.
func (r *Response) Status() string {
	return gjson.GetBytes(r.Response, "status").String()
}

// Exception returns response.exception for failed calls.
func (r *Response) Exception() string {
	return gjson.GetBytes(r.Response, "exception").String()
}

// Decode unmarshals the response payload into v.
func (r *Response) Decode(v any) error {
	if len(r.Response) == 0 {
		return errors.New("rpcflow: empty response payload")
	}
	return jsoncodec.Unmarshal(r.Response, v)
}

// StringID encodes s as a JSON string suitable for Request.RPCID.
func StringID(s string) json.RawMessage {
	return json.RawMessage(strconv.Quote(s))
}

// DecodeRequest parses an inbound envelope. Malformed bytes yield a
// *errors.DecodeError; a missing or empty type yields a *errors.ValidationError.
func DecodeRequest(data []byte) (*Request, error) {
	if len(data) == 0 {
		return nil, &errspkg.DecodeError{Err: errors.New("empty message")}
	}
	if !gjson.ValidBytes(data) {
		return nil, &errspkg.DecodeError{Err: errors.New("message is not valid JSON")}
	}
	if !gjson.ParseBytes(data).IsObject() {
		return nil, &errspkg.DecodeError{Err: errors.New("envelope must be a JSON object")}
	}

	var req Request
	if err := jsoncodec.Unmarshal(data, &req); err != nil {
		return nil, &errspkg.DecodeError{Err: err}
	}
	req.RPCID = verbatimID(data, req.RPCID)
	if isNull(req.Request) {
		req.Request = nil
	}
	if req.Type == "" {
		return &req, &errspkg.ValidationError{Field: "type", Err: errors.New("field is required")}
	}
	return &req, nil
}

// EncodeRequest serialises a request envelope. RPCID and Request are
// written as given.
func EncodeRequest(req *Request) ([]byte, error) {
	if req == nil {
		return nil, &errspkg.EncodeError{Err: errors.New("nil request")}
	}
	data, err := jsoncodec.MarshalVerbatim(req)
	if err != nil {
		return nil, &errspkg.EncodeError{Err: err}
	}
	return data, nil
}

// EncodeResponse serialises a response envelope with fields in the order
// type, rpc_id, response, name. RPCID and Response are spliced in as raw
// bytes. Failure means the payload was not valid JSON, which is a broken
// handler contract.
func EncodeResponse(resp *Response) ([]byte, error) {
	if resp == nil {
		return nil, &errspkg.EncodeError{Err: errors.New("nil response")}
	}
	if len(resp.Response) > 0 && !gjson.ValidBytes(resp.Response) {
		return nil, &errspkg.EncodeError{Err: errors.New("response payload is not valid JSON")}
	}
	if len(resp.RPCID) > 0 && !gjson.ValidBytes(resp.RPCID) {
		return nil, &errspkg.EncodeError{Err: errors.New("rpc_id is not valid JSON")}
	}

	data, err := sjson.SetBytes([]byte(`{}`), "type", resp.Type)
	if err == nil {
		data, err = sjson.SetRawBytes(data, "rpc_id", rawOrNull(resp.RPCID))
	}
	if err == nil {
		data, err = sjson.SetRawBytes(data, "response", rawOrNull(resp.Response))
	}
	if err == nil {
		data, err = sjson.SetBytes(data, "name", resp.Name)
	}
	if err != nil {
		return nil, &errspkg.EncodeError{Err: err}
	}
	return data, nil
}

// DecodeResponse parses a response envelope.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := jsoncodec.Unmarshal(data, &resp); err != nil {
		return nil, &errspkg.DecodeError{Err: err}
	}
	resp.RPCID = verbatimID(data, resp.RPCID)
	return &resp, nil
}

// SalvageRPCID extracts rpc_id from bytes that failed to decode. It returns nil
// when no usable id can be recovered.
func SalvageRPCID(data []byte) json.RawMessage {
	result := gjson.GetBytes(data, "rpc_id")
	if !result.Exists() || result.Type == gjson.Null || result.Raw == "" {
		return nil
	}
	if !gjson.Valid(result.Raw) {
		return nil
	}
	return json.RawMessage(result.Raw)
}

// SalvageType extracts the type field from bytes that failed to decode.
func SalvageType(data []byte) string {
	result := gjson.GetBytes(data, "type")
	if result.Type != gjson.String {
		return ""
	}
	return result.Str
}

// verbatimID returns rpc_id exactly as it appears in data, whitespace
// included. Null and absent ids become nil.
func verbatimID(data []byte, decoded json.RawMessage) json.RawMessage {
	if isNull(decoded) {
		return nil
	}
	if result := gjson.GetBytes(data, "rpc_id"); result.Exists() && result.Raw != "" {
		return json.RawMessage(result.Raw)
	}
	return decoded
}

func rawOrNull(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func idString(id json.RawMessage) string {
	if len(id) == 0 {
		return ""
	}
	result := gjson.ParseBytes(id)
	if result.Type == gjson.String {
		return result.Str
	}
	return string(id)
}
