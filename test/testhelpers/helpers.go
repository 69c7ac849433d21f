// Package testhelpers provides common utilities and helper functions for
// testing the Parlor server.
//
// This package contains reusable test utilities shared across unit and
// integration tests: configuring the server under test, logging in, dialing
// event connections, and asserting on received protocol events.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parlorchat/parlor/internal/protocol"
)

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// AssertStatusCode checks if the HTTP response has the expected status code.
// It fails the test with a descriptive error message if the status codes don't match.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
// It fails the test with a descriptive error message if the content types don't match.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// Login obtains a credential token for the display name from the server's
// login endpoint, failing the test on any error.
func Login(t *testing.T, baseURL, username string) string {
	t.Helper()

	body, err := json.Marshal(map[string]string{"username": username})
	if err != nil {
		t.Fatalf("Failed to marshal login request: %v", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(baseURL+"/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Login request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Login for %q returned status %d", username, resp.StatusCode)
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode login response: %v", err)
	}
	if result.Token == "" {
		t.Fatalf("Login for %q returned an empty token", username)
	}
	return result.Token
}

// WebSocketURL converts a test server base URL into the ws:// endpoint URL.
func WebSocketURL(t *testing.T, baseURL string) string {
	t.Helper()
	u, err := url.Parse(baseURL)
	if err != nil {
		t.Fatalf("Failed to parse test server URL: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"
	return u.String()
}

// EventConn wraps a WebSocket connection and decodes protocol envelopes,
// handling frames that batch several newline-separated envelopes.
type EventConn struct {
	t       *testing.T
	Conn    *websocket.Conn
	pending [][]byte
}

// DialEventConn connects to the WebSocket endpoint with the credential
// token and an Origin header, failing the test if the dial fails.
func DialEventConn(t *testing.T, wsURL, token, origin string) *EventConn {
	t.Helper()

	dialURL := wsURL
	if token != "" {
		dialURL += "?token=" + url.QueryEscape(token)
	}

	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(dialURL, header)
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", wsURL, err)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
	return &EventConn{t: t, Conn: conn}
}

// Close closes the underlying connection.
func (c *EventConn) Close() {
	_ = c.Conn.Close()
}

// Send writes an inbound event envelope to the server.
func (c *EventConn) Send(event string, data any) {
	c.t.Helper()
	payload, err := protocol.Marshal(event, data)
	if err != nil {
		c.t.Fatalf("Failed to marshal %s event: %v", event, err)
	}
	if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.t.Fatalf("Failed to send %s event: %v", event, err)
	}
}

// NextEvent returns the next envelope received within the timeout.
func (c *EventConn) NextEvent(timeout time.Duration) (protocol.Envelope, error) {
	c.t.Helper()

	if len(c.pending) == 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			c.t.Fatalf("Failed to set read deadline: %v", err)
		}
		_, frame, err := c.Conn.ReadMessage()
		if err != nil {
			return protocol.Envelope{}, err
		}
		c.pending = bytes.Split(frame, []byte{'\n'})
	}

	raw := c.pending[0]
	c.pending = c.pending[1:]

	var envelope protocol.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		c.t.Fatalf("Failed to decode envelope %q: %v", raw, err)
	}
	return envelope, nil
}

// ExpectEvent reads the next envelope and fails the test unless it carries
// the expected event name. The envelope is returned for payload assertions.
func (c *EventConn) ExpectEvent(event string, timeout time.Duration) protocol.Envelope {
	c.t.Helper()

	envelope, err := c.NextEvent(timeout)
	if err != nil {
		c.t.Fatalf("Expected %s event, got read error: %v", event, err)
	}
	if envelope.Event != event {
		c.t.Fatalf("Expected %s event, got %s (%s)", event, envelope.Event, envelope.Data)
	}
	return envelope
}

// ExpectNoEvent fails the test if any envelope arrives within the timeout.
func (c *EventConn) ExpectNoEvent(timeout time.Duration) {
	c.t.Helper()

	envelope, err := c.NextEvent(timeout)
	if err == nil {
		c.t.Fatalf("Expected no event, but received %s (%s)", envelope.Event, envelope.Data)
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	c.t.Fatalf("Unexpected error while waiting for absence of events: %v", err)
}

// DecodePayload unmarshals an envelope payload into out.
func DecodePayload(t *testing.T, envelope protocol.Envelope, out any) {
	t.Helper()
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		t.Fatalf("Failed to decode %s payload: %v", envelope.Event, err)
	}
}

// WaitFor polls the condition until it holds or the timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, condition func() bool, message string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for condition: %s", message)
}
