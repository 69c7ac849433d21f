// Package server gates WebSocket handshakes on the browser Origin header so
// only pages served from configured hosts can open an event connection.
package server

import (
	"log"
	"net/http"
	"net/url"
	"strings"
)

// normalizeOrigins canonicalizes the configured origin list into
// scheme://host form and reports whether a wildcard entry was present.
// Entries that do not parse as an origin are dropped with a log notice so a
// typo in the configuration fails loudly instead of silently allowing
// nothing.
func normalizeOrigins(origins []string) ([]string, bool) {
	if len(origins) == 0 {
		return nil, false
	}

	normalized := make([]string, 0, len(origins))
	allowAll := false

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			allowAll = true
			continue
		}

		canonical, ok := canonicalOrigin(trimmed)
		if !ok {
			log.Printf("Dropping unparseable origin from configuration: %q", origin)
			continue
		}
		normalized = append(normalized, canonical)
	}

	return normalized, allowAll
}

// canonicalOrigin reduces an origin to lowercase scheme://host so that
// configured values and browser-sent headers compare equal regardless of
// casing or trailing path segments.
func canonicalOrigin(raw string) (string, bool) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// originAllowed reports whether the handshake request's Origin header names
// a configured origin. Requests without an Origin header are refused; the
// event endpoint is only meant for browsers running the room page.
func originAllowed(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" {
		return false
	}

	origin, ok := canonicalOrigin(header)
	if !ok {
		return false
	}

	configMu.RLock()
	defer configMu.RUnlock()

	if allowAllOrigins {
		return true
	}
	_, exists := allowedOrigins[origin]
	return exists
}

// checkOrigin is the upgrader hook deciding whether a handshake may proceed.
func checkOrigin(r *http.Request) bool {
	if originAllowed(r) {
		return true
	}

	log.Printf("Refused event connection from disallowed origin %q", r.Header.Get("Origin"))
	return false
}
