package logger

import (
	"context"
	"testing"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/domain"
)

func TestMaskIP(t *testing.T) {
	cases := map[string]string{
		"":              "",
		"192.168.1.100": "192.168.*.*",
		"localhost":     "***",
		"2001:0db8:85a3:0000:0000:8a2e:0370:7334": "2001:0db8:85a3:0000:*:*:*:*",
	}
	for in, want := range cases {
		if got := MaskIP(in); got != want {
			t.Fatalf("MaskIP(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestActorFields(t *testing.T) {
	fields := ActorFields(domain.Actor{UserID: "u-1", Role: "admin", IPAddress: "10.0.0.7"})
	if len(fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(fields))
	}
	if fields[2].String != "10.0.*.*" {
		t.Fatalf("expected masked ip, got %q", fields[2].String)
	}

	if fields := ActorFields(domain.SystemActor()); len(fields) != 2 {
		t.Fatalf("expected ip to be omitted, got %d fields", len(fields))
	}
}

func TestRequestID(t *testing.T) {
	if got := RequestID(context.Background()); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}
	ctx := context.WithValue(context.Background(), RequestIDKey{}, "req-1")
	if got := RequestID(ctx); got != "req-1" {
		t.Fatalf("expected req-1, got %q", got)
	}
}
