// Package server coordinates client registration, room and global event
// fan-out, and connection cleanup for the Parlor coordinator via the Hub
// type.
package server

import (
	"context"
	"log"
	"sync"
	"time"
)

// Hub manages all live client connections and routes broadcasts. The target
// set of a room broadcast is computed from the membership table at delivery
// time, so a connection that has already left simply does not receive it.
type Hub struct {
	rooms      *RoomTable
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates and initializes a new Hub instance backed by the given
// membership table. The returned Hub is ready to manage connections once
// Run is started.
func NewHub(rooms *RoomTable) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		rooms:      rooms,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// GetRegisterChan returns the channel used for registering new clients to the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients from the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// ClientCount returns the number of currently registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	registered, exists := h.clients[client.id]
	if !exists || registered != client || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// Run starts the hub's main event loop, handling client registration,
// unregistration, and shutdown. This method should be called in a separate
// goroutine as it runs indefinitely.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client.id] = client
			clientCount := len(h.clients)
			h.mutex.Unlock()
			log.Printf("Client %s registered from %s. Total clients: %d", client.id, client.addr, clientCount)

			// Clients without a transport connection come from tests;
			// they have no pumps to run.
			if client.conn != nil {
				h.wg.Add(2)
				go func() {
					defer h.wg.Done()
					client.writePump()
				}()
				go func() {
					defer h.wg.Done()
					client.readPump()
				}()
			}

		case client := <-h.unregister:
			if client == nil {
				continue
			}
			h.mutex.Lock()
			if registered, ok := h.clients[client.id]; ok && registered == client {
				delete(h.clients, client.id)
				client.closed = true
				clientCount := len(h.clients)
				h.mutex.Unlock()
				// Close the channel after releasing the lock.
				close(client.send)
				log.Printf("Client %s unregistered from %s. Total clients: %d", client.id, client.addr, clientCount)
			} else {
				h.mutex.Unlock()
			}
			// Teardown runs exactly once even when the client was
			// already removed by a failed delivery.
			if client.session != nil {
				client.session.Close()
			}
		}
	}
}

// EmitToRoom delivers the payload to every current member of the room,
// optionally excluding one connection (used for presence notices that go to
// the other members). Delivery is best-effort per target: a failed target
// is dropped without aborting the remaining deliveries.
func (h *Hub) EmitToRoom(roomID string, payload []byte, exclude *Client) {
	members := h.rooms.MembersOf(roomID)
	if len(members) == 0 {
		return
	}

	h.mutex.RLock()
	targets := make([]*Client, 0, len(members))
	for _, connID := range members {
		if client, ok := h.clients[connID]; ok {
			targets = append(targets, client)
		}
	}
	h.mutex.RUnlock()

	h.deliver(targets, payload, exclude)
}

// EmitToAll delivers the payload to every registered connection.
func (h *Hub) EmitToAll(payload []byte) {
	h.mutex.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		targets = append(targets, client)
	}
	h.mutex.RUnlock()

	h.deliver(targets, payload, nil)
}

// SendTo delivers the payload to a single connection, best-effort.
func (h *Hub) SendTo(client *Client, payload []byte) {
	h.deliver([]*Client{client}, payload, nil)
}

func (h *Hub) deliver(targets []*Client, payload []byte, exclude *Client) {
	var failed []*Client
	for _, client := range targets {
		if exclude != nil && client == exclude {
			continue
		}
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}
	h.removeFailedClients(failed)
}

// removeFailedClients drops clients that failed to receive a delivery and
// closes their channels. Their session teardown runs through the normal
// unregister path once the pumps exit.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		if registered, exists := h.clients[client.id]; exists && registered == client {
			delete(h.clients, client.id)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			log.Printf("Client %s from %s removed due to full send buffer", client.id, client.addr)
		}
	}
	h.mutex.Unlock()

	// Close channels after releasing the lock.
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients gracefully closes all active client connections.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing client connection from %s: %v", client.addr, err)
				}
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all
// goroutines to complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()

	// Wait for Run() to complete.
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
