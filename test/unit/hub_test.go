// Package unit contains unit tests for individual components of the Parlor server.
package unit

import (
	"testing"
	"time"

	"github.com/parlorchat/parlor/internal/server"
)

// registerClient registers the client with the hub and waits until the
// hub's run loop has processed the registration.
func registerClient(t *testing.T, hub *server.Hub, client *server.Client, wantCount int) {
	t.Helper()

	select {
	case hub.GetRegisterChan() <- client:
	case <-time.After(time.Second):
		t.Fatal("Timed out registering client with hub")
	}

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != wantCount {
		if time.Now().After(deadline) {
			t.Fatalf("Hub client count = %d, want %d", hub.ClientCount(), wantCount)
		}
		time.Sleep(time.Millisecond)
	}
}

// receivePayload reads the next delivered payload from the client's send
// channel, failing the test on timeout.
func receivePayload(t *testing.T, client *server.Client) []byte {
	t.Helper()
	select {
	case payload := <-client.GetSendChan():
		return payload
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for payload delivery")
		return nil
	}
}

// expectNoPayload asserts that nothing is delivered to the client within a
// short window.
func expectNoPayload(t *testing.T, client *server.Client) {
	t.Helper()
	select {
	case payload := <-client.GetSendChan():
		t.Fatalf("Expected no delivery, got %q", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestHub(t *testing.T) (*server.Hub, *server.RoomTable) {
	t.Helper()
	rooms := server.NewRoomTable()
	hub := server.NewHub(rooms)
	go hub.Run()
	t.Cleanup(func() {
		if err := hub.Shutdown(2 * time.Second); err != nil {
			t.Errorf("Hub shutdown failed: %v", err)
		}
	})
	return hub, rooms
}

func TestHubEmitToRoomDeliversToMembers(t *testing.T) {
	hub, rooms := newTestHub(t)

	alice := server.NewClient(nil, hub, "test-alice")
	bob := server.NewClient(nil, hub, "test-bob")
	registerClient(t, hub, alice, 1)
	registerClient(t, hub, bob, 2)

	for _, client := range []*server.Client{alice, bob} {
		if _, err := rooms.Join(client.ID(), "lobby"); err != nil {
			t.Fatalf("Join failed: %v", err)
		}
	}

	hub.EmitToRoom("lobby", []byte("hello lobby"), nil)

	for _, client := range []*server.Client{alice, bob} {
		if payload := receivePayload(t, client); string(payload) != "hello lobby" {
			t.Errorf("Expected %q, got %q", "hello lobby", payload)
		}
	}
}

func TestHubEmitToRoomExcludesSender(t *testing.T) {
	hub, rooms := newTestHub(t)

	alice := server.NewClient(nil, hub, "test-alice")
	bob := server.NewClient(nil, hub, "test-bob")
	registerClient(t, hub, alice, 1)
	registerClient(t, hub, bob, 2)

	for _, client := range []*server.Client{alice, bob} {
		if _, err := rooms.Join(client.ID(), "lobby"); err != nil {
			t.Fatalf("Join failed: %v", err)
		}
	}

	hub.EmitToRoom("lobby", []byte("presence"), alice)

	if payload := receivePayload(t, bob); string(payload) != "presence" {
		t.Errorf("Expected %q, got %q", "presence", payload)
	}
	expectNoPayload(t, alice)
}

func TestHubEmitToRoomSkipsNonMembers(t *testing.T) {
	hub, rooms := newTestHub(t)

	member := server.NewClient(nil, hub, "test-member")
	outsider := server.NewClient(nil, hub, "test-outsider")
	registerClient(t, hub, member, 1)
	registerClient(t, hub, outsider, 2)

	if _, err := rooms.Join(member.ID(), "lobby"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if _, err := rooms.Join(outsider.ID(), "other"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	hub.EmitToRoom("lobby", []byte("scoped"), nil)

	if payload := receivePayload(t, member); string(payload) != "scoped" {
		t.Errorf("Expected %q, got %q", "scoped", payload)
	}
	expectNoPayload(t, outsider)

	// A room with no members is a silent no-op.
	hub.EmitToRoom("nobody-here", []byte("void"), nil)
	expectNoPayload(t, member)
	expectNoPayload(t, outsider)
}

func TestHubEmitToRoomAfterLeave(t *testing.T) {
	hub, rooms := newTestHub(t)

	alice := server.NewClient(nil, hub, "test-alice")
	bob := server.NewClient(nil, hub, "test-bob")
	registerClient(t, hub, alice, 1)
	registerClient(t, hub, bob, 2)

	for _, client := range []*server.Client{alice, bob} {
		if _, err := rooms.Join(client.ID(), "lobby"); err != nil {
			t.Fatalf("Join failed: %v", err)
		}
	}
	rooms.Leave(bob.ID(), "lobby")

	hub.EmitToRoom("lobby", []byte("after leave"), nil)

	if payload := receivePayload(t, alice); string(payload) != "after leave" {
		t.Errorf("Expected %q, got %q", "after leave", payload)
	}
	expectNoPayload(t, bob)
}

func TestHubEmitToAll(t *testing.T) {
	hub, rooms := newTestHub(t)

	alice := server.NewClient(nil, hub, "test-alice")
	bob := server.NewClient(nil, hub, "test-bob")
	registerClient(t, hub, alice, 1)
	registerClient(t, hub, bob, 2)

	// Global emission ignores room membership entirely.
	if _, err := rooms.Join(alice.ID(), "lobby"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	hub.EmitToAll([]byte("global"))

	for _, client := range []*server.Client{alice, bob} {
		if payload := receivePayload(t, client); string(payload) != "global" {
			t.Errorf("Expected %q, got %q", "global", payload)
		}
	}
}

func TestHubSendTo(t *testing.T) {
	hub, _ := newTestHub(t)

	alice := server.NewClient(nil, hub, "test-alice")
	bob := server.NewClient(nil, hub, "test-bob")
	registerClient(t, hub, alice, 1)
	registerClient(t, hub, bob, 2)

	hub.SendTo(alice, []byte("direct"))

	if payload := receivePayload(t, alice); string(payload) != "direct" {
		t.Errorf("Expected %q, got %q", "direct", payload)
	}
	expectNoPayload(t, bob)
}

func TestHubUnregisterStopsDelivery(t *testing.T) {
	hub, rooms := newTestHub(t)

	alice := server.NewClient(nil, hub, "test-alice")
	registerClient(t, hub, alice, 1)
	if _, err := rooms.Join(alice.ID(), "lobby"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	select {
	case hub.GetUnregisterChan() <- alice:
	case <-time.After(time.Second):
		t.Fatal("Timed out unregistering client")
	}

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Hub client count = %d after unregister, want 0", hub.ClientCount())
		}
		time.Sleep(time.Millisecond)
	}

	// Delivery to the unregistered client must not panic and must not
	// resurrect the connection.
	hub.EmitToRoom("lobby", []byte("late"), nil)
	hub.EmitToAll([]byte("late"))
	if hub.ClientCount() != 0 {
		t.Errorf("Emissions resurrected a client, count = %d", hub.ClientCount())
	}
}
