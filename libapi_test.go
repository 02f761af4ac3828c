package rpcflow

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"google.golang.org/protobuf/types/known/structpb"
)

type echoRequest struct {
	Text string `json:"text"`
}

type echoResponse struct {
	Text string `json:"text"`
}

func TestHandlerExportsPropagateErrors(t *testing.T) {
	if err := RegisterHandler[echoRequest, echoResponse](nil, HandlerRegistration[echoRequest, echoResponse]{}); !errors.Is(err, ErrServiceRequired) {
		t.Fatalf("expected service required error, got %v", err)
	}

	if err := RegisterProtoHandler[*structpb.Struct, *structpb.Struct](nil, ProtoHandlerRegistration[*structpb.Struct, *structpb.Struct]{}); !errors.Is(err, ErrServiceRequired) {
		t.Fatalf("expected service required error, got %v", err)
	}
}

func TestServerAndClientExports(t *testing.T) {
	ps := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = ps.Close() })

	factory := TransportFactoryFunc(func(context.Context, *Config, watermill.LoggerAdapter) (Transport, error) {
		return Transport{Publisher: ps, Subscriber: ps}, nil
	})
	svc, err := TryNewService(&Config{Name: "echo", PubSubSystem: "channel", ReceiveTimeout: 20 * time.Millisecond},
		NewSlogServiceLogger(slog.New(slog.DiscardHandler)), context.Background(), ServiceDependencies{TransportFactory: factory})
	if err != nil {
		t.Fatalf("unexpected error creating service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })

	MustRegisterHandler(svc, HandlerRegistration[echoRequest, echoResponse]{
		Channel: "chat",
		Type:    "echo",
		Handler: func(ctx context.Context, call Call[echoRequest]) (echoResponse, error) {
			return echoResponse{Text: call.Payload.Text}, nil
		},
	})
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	client := NewClient(ps, ps, ClientConfig{Timeout: 2 * time.Second}, DiscardLogger())
	t.Cleanup(func() { _ = client.Close() })

	out, err := CallJSON[echoResponse](context.Background(), client, "chat", "echo", echoRequest{Text: "hi"})
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if out.Text != "hi" {
		t.Fatalf("expected echo, got %q", out.Text)
	}
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	if _, err := Marshal(payload); err != nil {
		t.Fatalf("marshal alias failed: %v", err)
	}
	if _, err := MarshalIndent(payload, "", "  "); err != nil {
		t.Fatalf("marshal indent alias failed: %v", err)
	}
	if err := Unmarshal([]byte(`{"hello":"world"}`), &payload); err != nil {
		t.Fatalf("unmarshal alias failed: %v", err)
	}
}

func TestMetadataExport(t *testing.T) {
	md := NewMetadata(MetadataKeyChannel, "device")
	if md[MetadataKeyChannel] != "device" {
		t.Fatalf("expected metadata to contain channel, got %#v", md)
	}
}

func TestStatusExports(t *testing.T) {
	if got := StatusOf(&ValidationError{Field: "request", Err: errors.New("bad")}); got != StatusValidationError {
		t.Fatalf("expected %s, got %s", StatusValidationError, got)
	}
	if got := StatusOf(nil); got != StatusOK {
		t.Fatalf("expected %s, got %s", StatusOK, got)
	}
}
