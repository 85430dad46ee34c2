package observability

import (
	"context"
	"testing"

	"github.com/user/sdtmflow/internal/config"
)

func TestInitOTLP(t *testing.T) {
	cases := []struct {
		name     string
		endpoint string
		protocol string
	}{
		{"grpc", "localhost:4317", "grpc"},
		{"http", "localhost:4318", "http"},
		{"default protocol", "localhost:4318", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			shutdown, err := InitOTLP(context.Background(), config.OTLPConfig{
				Endpoint:    c.endpoint,
				Protocol:    c.protocol,
				ServiceName: "sdtmflow-test",
				Insecure:    true,
			}, "test")
			if err != nil {
				t.Fatalf("failed to init OTLP: %v", err)
			}
			if shutdown == nil {
				t.Fatal("shutdown function is nil")
			}
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_ = shutdown(ctx)
		})
	}
}

func TestInitOTLPDisabled(t *testing.T) {
	shutdown, err := InitOTLP(context.Background(), config.OTLPConfig{}, "test")
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("no-op shutdown returned %v", err)
	}
}

func TestInitOTLPUnknownProtocol(t *testing.T) {
	if _, err := InitOTLP(context.Background(), config.OTLPConfig{Endpoint: "localhost:1", Protocol: "udp"}, "test"); err == nil {
		t.Error("expected error for unknown protocol")
	}
}
