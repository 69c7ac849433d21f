package server

import (
	"net/http/httptest"
	"testing"
)

func TestNormalizeOrigins(t *testing.T) {
	normalized, allowAll := normalizeOrigins([]string{
		" http://Example.COM ",
		"https://chat.example.com/room/lobby",
		"",
		"no-scheme",
	})

	if allowAll {
		t.Error("No wildcard was configured")
	}
	want := []string{"http://example.com", "https://chat.example.com"}
	if len(normalized) != len(want) {
		t.Fatalf("normalizeOrigins = %v, want %v", normalized, want)
	}
	for i := range want {
		if normalized[i] != want[i] {
			t.Errorf("normalizeOrigins[%d] = %q, want %q", i, normalized[i], want[i])
		}
	}
}

func TestNormalizeOriginsWildcard(t *testing.T) {
	normalized, allowAll := normalizeOrigins([]string{"*", "http://example.com"})
	if !allowAll {
		t.Error("A wildcard entry should allow every origin")
	}
	if len(normalized) != 1 || normalized[0] != "http://example.com" {
		t.Errorf("Wildcard should not swallow the explicit entries, got %v", normalized)
	}
}

func TestCheckOriginAgainstConfiguredList(t *testing.T) {
	SetConfig(&Config{AllowedOrigins: []string{"http://chat.example.com"}})
	t.Cleanup(func() { SetConfig(nil) })

	cases := []struct {
		origin  string
		allowed bool
	}{
		{"http://chat.example.com", true},
		{"HTTP://CHAT.EXAMPLE.COM", true},
		{"http://evil.example.com", false},
		{"", false},
	}
	for _, tc := range cases {
		r := httptest.NewRequest("GET", "/ws", nil)
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		if got := checkOrigin(r); got != tc.allowed {
			t.Errorf("checkOrigin with origin %q = %v, want %v", tc.origin, got, tc.allowed)
		}
	}
}

func TestCheckOriginWildcard(t *testing.T) {
	SetConfig(&Config{AllowedOrigins: []string{"*"}})
	t.Cleanup(func() { SetConfig(nil) })

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "http://anywhere.example.com")
	if !checkOrigin(r) {
		t.Error("Wildcard configuration should admit any well-formed origin")
	}

	// Even with a wildcard, a handshake without an Origin header is refused.
	bare := httptest.NewRequest("GET", "/ws", nil)
	if checkOrigin(bare) {
		t.Error("A handshake without an Origin header should be refused")
	}
}
