package auth

import (
	"context"
	"testing"
)

func TestBearerKey(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{"empty", "", "", false},
		{"no scheme", "secret-key", "", false},
		{"wrong scheme", "Basic secret-key", "", false},
		{"bearer", "Bearer secret-key", "secret-key", true},
		{"padded", "  Bearer   secret-key  ", "secret-key", true},
		{"blank token", "Bearer    ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := BearerKey(tt.header)
			if got != tt.want || ok != tt.ok {
				t.Fatalf("BearerKey(%q) = %q, %v; want %q, %v", tt.header, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestPrincipalRoundTrip(t *testing.T) {
	ctx := context.Background()
	if _, ok := PrincipalFrom(ctx); ok {
		t.Fatal("empty context should carry no principal")
	}

	p := &Principal{APIKey: "secret-key", UserID: "user-1"}
	got, ok := PrincipalFrom(WithPrincipal(ctx, p))
	if !ok || got.UserID != "user-1" || got.APIKey != "secret-key" {
		t.Fatalf("principal not carried: %+v ok=%v", got, ok)
	}
}
