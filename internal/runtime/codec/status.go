package codec

import (
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	errspkg "github.com/drblury/rpcflow/internal/runtime/errors"
)

const (
	StatusOK              = errspkg.StatusOK
	StatusValidationError = errspkg.StatusValidationError
	StatusFilterError     = errspkg.StatusFilterError
	StatusHandlerError    = errspkg.StatusHandlerError
)

// WithDefaultStatus returns payload with "status" set to status unless the
// handler already set one. An empty payload becomes {"status": status}.
func WithDefaultStatus(payload json.RawMessage, status string) (json.RawMessage, error) {
	if isNull(payload) {
		payload = json.RawMessage(`{}`)
	}
	parsed := gjson.ParseBytes(payload)
	if !parsed.IsObject() {
		return nil, &errspkg.EncodeError{Err: errors.New("response payload must be a JSON object")}
	}
	if parsed.Get("status").Exists() {
		return payload, nil
	}
	out, err := sjson.SetBytes(append([]byte(nil), payload...), "status", status)
	if err != nil {
		return nil, &errspkg.EncodeError{Err: err}
	}
	return out, nil
}

// ErrorPayload builds the payload reported for a failed call.
func ErrorPayload(status string, err error) json.RawMessage {
	out, _ := sjson.SetBytes([]byte(`{}`), "status", status)
	if err != nil {
		out, _ = sjson.SetBytes(out, "exception", err.Error())
	}
	return out
}
