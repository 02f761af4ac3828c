package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

var (
	defaultConfig = sonic.ConfigStd

	// strictConfig mirrors ConfigStd but refuses fields the target type does not declare.
	strictConfig = sonic.Config{
		EscapeHTML:            true,
		SortMapKeys:           true,
		CompactMarshaler:      true,
		CopyString:            true,
		ValidateString:        true,
		DisallowUnknownFields: true,
	}.Froze()

	// verbatimConfig leaves embedded raw JSON untouched: no HTML escaping and
	// no compaction of json.Marshaler output.
	verbatimConfig = sonic.Config{
		ValidateString: true,
	}.Froze()
)

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

// MarshalVerbatim encodes v keeping json.RawMessage fields byte for byte.
func MarshalVerbatim(v any) ([]byte, error) {
	return verbatimConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

// UnmarshalStrict decodes data into v and fails on unknown object keys.
func UnmarshalStrict(data []byte, v any) error {
	return strictConfig.Unmarshal(data, v)
}

// Valid reports whether data is a single well-formed JSON value.
func Valid(data []byte) bool {
	return defaultConfig.Valid(data)
}

func Encode(w io.Writer, v any) error {
	enc := defaultConfig.NewEncoder(w)
	return enc.Encode(v)
}

func Decode(r io.Reader, v any) error {
	dec := defaultConfig.NewDecoder(r)
	return dec.Decode(v)
}
