package jsoncodec

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

type testPayload struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestMarshalAndUnmarshal(t *testing.T) {
	in := testPayload{ID: 42, Name: "rpcflow"}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var out testPayload
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if out != in {
		t.Fatalf("expected round trip to match, got %#v", out)
	}

	indented, err := MarshalIndent(in, "", "  ")
	if err != nil {
		t.Fatalf("marshal indent failed: %v", err)
	}
	if !strings.Contains(string(indented), "\n  \"id\"") {
		t.Fatalf("expected indented output, got %s", string(indented))
	}
}

func TestMarshalVerbatimKeepsRawMessages(t *testing.T) {
	in := struct {
		ID   json.RawMessage `json:"id"`
		Note string          `json:"note"`
	}{ID: json.RawMessage(`{ "seq" : "a<b&c>" }`), Note: "x<y"}

	data, err := MarshalVerbatim(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	want := `{"id":{ "seq" : "a<b&c>" },"note":"x<y"}`
	if string(data) != want {
		t.Fatalf("expected %s, got %s", want, string(data))
	}
}

func TestUnmarshalStrictRejectsUnknownFields(t *testing.T) {
	var out testPayload
	if err := UnmarshalStrict([]byte(`{"id":1,"name":"a"}`), &out); err != nil {
		t.Fatalf("expected known fields to decode, got %v", err)
	}
	if err := UnmarshalStrict([]byte(`{"id":1,"extra":true}`), &out); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
	if err := Unmarshal([]byte(`{"id":1,"extra":true}`), &out); err != nil {
		t.Fatalf("expected lenient decode to ignore unknown fields, got %v", err)
	}
}

func TestValid(t *testing.T) {
	if !Valid([]byte(`{"a":[1,2]}`)) {
		t.Fatal("expected valid JSON")
	}
	if Valid([]byte(`{"a":`)) {
		t.Fatal("expected truncated JSON to be invalid")
	}
}

func TestEncodeAndDecode(t *testing.T) {
	buf := &bytes.Buffer{}
	payload := testPayload{ID: 7, Name: "stream"}

	if err := Encode(buf, payload); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var decoded testPayload
	if err := Decode(buf, &decoded); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if decoded != payload {
		t.Fatalf("expected decoded payload to match, got %#v", decoded)
	}
}
