package metadata

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
)

func TestCloneDoesNotAlias(t *testing.T) {
	original := Metadata{"a": "1", "b": "2"}
	clone := original.Clone()
	clone["a"] = "changed"

	if original["a"] != "1" {
		t.Fatalf("expected original map to stay untouched, got %q", original["a"])
	}
	if len(clone) != len(original) {
		t.Fatalf("expected clone to have same size")
	}
}

func TestWithSkipsEmptyValues(t *testing.T) {
	md := New(KeyChannel, "device")
	withKind := md.With(KeyKind, KindRequest)
	if withKind[KeyKind] != KindRequest {
		t.Fatalf("expected kind to be set, got %q", withKind[KeyKind])
	}
	if _, ok := md[KeyKind]; ok {
		t.Fatal("expected original metadata to stay untouched")
	}

	unchanged := md.With(KeySender, "")
	if _, ok := unchanged[KeySender]; ok {
		t.Fatal("expected empty value to be skipped")
	}
}

func TestNewIgnoresDanglingKey(t *testing.T) {
	md := New("a", "1", "b")
	if len(md) != 1 || md["a"] != "1" {
		t.Fatalf("unexpected metadata: %#v", md)
	}
}

func TestWatermillConversion(t *testing.T) {
	msg := message.NewMessage("id", nil)
	New(KeyChannel, "device", KeyKind, KindResponse).Apply(msg)

	if msg.Metadata.Get(KeyChannel) != "device" {
		t.Fatalf("expected channel header, got %q", msg.Metadata.Get(KeyChannel))
	}

	back := FromWatermill(msg.Metadata)
	if back[KeyKind] != KindResponse {
		t.Fatalf("expected kind to survive conversion, got %q", back[KeyKind])
	}
}
