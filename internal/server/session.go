// Package server drives the per-connection event flow via the Session
// type: handshake authentication, join/chat/upload dispatch, and teardown.
package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/parlorchat/parlor/internal/auth"
	"github.com/parlorchat/parlor/internal/protocol"
	"github.com/parlorchat/parlor/internal/storage"
)

type sessionState int

const (
	stateConnected sessionState = iota
	stateAuthenticated
	stateClosed
)

// uploadFailedMessage is the inline notice sent to the requester when the
// blob store exhausts its retries.
const uploadFailedMessage = "File upload failed. Please try again."

// Session is the coordinator for one connection. It owns the connection's
// state machine: Connected until the handshake authenticates, then
// Authenticated while events are dispatched, then Closed. Events are
// processed in the order received for a single connection; nothing besides
// authentication is accepted before an identity is bound.
type Session struct {
	client       *Client
	hub          *Hub
	registry     *Registry
	rooms        *RoomTable
	store        storage.BlobStore
	rejoinNotify bool

	mu       sync.Mutex
	state    sessionState
	identity auth.Identity

	closeOnce sync.Once
}

// NewSession wires a session for the client against the app's coordinator
// state. The client dispatches inbound frames to it from its read pump.
func NewSession(app *App, client *Client) *Session {
	s := &Session{
		client:       client,
		hub:          app.hub,
		registry:     app.registry,
		rooms:        app.rooms,
		store:        app.store,
		rejoinNotify: currentConfig().RejoinNotify,
	}
	client.session = s
	return s
}

// errSessionClosed is returned when a connection goes away while its
// handshake verification is still in flight.
var errSessionClosed = errors.New("session closed during handshake")

// Authenticate runs the handshake authentication exactly once. On failure
// the caller must terminate the connection; the session accepts no events
// until an identity is bound. The verifier call happens outside the state
// lock; the registry's own per-connection guard keeps it exactly-once.
func (s *Session) Authenticate(token string) error {
	s.mu.Lock()
	if s.state != stateConnected {
		s.mu.Unlock()
		return ErrAlreadyAuthenticated
	}
	s.mu.Unlock()

	identity, err := s.registry.Authenticate(s.client.id, token)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		// Teardown already ran and found no binding to clean up.
		s.registry.Remove(s.client.id)
		return errSessionClosed
	}
	s.identity = identity
	s.state = stateAuthenticated
	s.mu.Unlock()
	return nil
}

func (s *Session) currentIdentity() (auth.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.state == stateAuthenticated
}

// Dispatch decodes one inbound frame and routes it to the matching event
// handler. Events from unauthenticated or closed sessions are logged and
// dropped; they are never surfaced to other connections.
func (s *Session) Dispatch(raw []byte) {
	identity, ok := s.currentIdentity()
	if !ok {
		log.Printf("Dropping event from unauthenticated connection %s", s.client.id)
		return
	}

	var envelope protocol.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		log.Printf("Invalid frame from %s: %v", s.client.addr, err)
		s.sendError("malformed event")
		return
	}

	switch envelope.Event {
	case protocol.EventJoinRoom:
		var payload protocol.JoinRoom
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			s.sendError("malformed joinRoom payload")
			return
		}
		s.handleJoin(identity, payload.RoomID)

	case protocol.EventChatMessage:
		var payload protocol.ChatInbound
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			s.sendError("malformed chatMessage payload")
			return
		}
		s.handleChat(payload.RoomID, payload.Message)

	case protocol.EventUploadFile:
		var payload protocol.UploadFile
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			s.sendError("malformed uploadFile payload")
			return
		}
		s.handleUpload(identity, payload)

	default:
		s.sendError(fmt.Sprintf("unknown event %q", envelope.Event))
	}
}

// handleJoin validates the room identifier, records membership, and emits
// the welcome to the joiner plus the presence notice to the other members.
// Validation failures go to the joining connection only and mutate nothing.
func (s *Session) handleJoin(identity auth.Identity, roomID string) {
	newlyJoined, err := s.rooms.Join(s.client.id, roomID)
	if err != nil {
		s.sendError(err.Error())
		return
	}
	if !newlyJoined && !s.rejoinNotify {
		return
	}

	count := s.rooms.CountOf(roomID)
	welcome := fmt.Sprintf("Welcome to %s, %s! There are %d member(s) in this room.",
		roomID, identity.DisplayName, count)
	if payload, err := protocol.Marshal(protocol.EventBotMessage, protocol.BotMessage{
		DisplayName: protocol.BotName,
		Message:     welcome,
	}); err == nil {
		s.hub.SendTo(s.client, payload)
	}

	if payload, err := protocol.Marshal(protocol.EventUserJoined, protocol.UserJoined{
		DisplayName: identity.DisplayName,
	}); err == nil {
		s.hub.EmitToRoom(roomID, payload, s.client)
	}

	log.Printf("User %s joined room %s (%d member(s))", identity.DisplayName, roomID, count)
}

// handleChat fans a chat message out to every member of the room including
// the sender. The sender's display name is resolved from the registry.
func (s *Session) handleChat(roomID, message string) {
	if !s.rooms.IsMember(s.client.id, roomID) {
		s.sendError(fmt.Sprintf("you have not joined room %q", roomID))
		return
	}

	identity, err := s.registry.IdentityOf(s.client.id)
	if err != nil {
		log.Printf("Dropping chat from connection %s: %v", s.client.id, err)
		return
	}

	payload, err := protocol.Marshal(protocol.EventChatMessage, protocol.ChatOutbound{
		DisplayName: identity.DisplayName,
		Message:     message,
	})
	if err != nil {
		log.Printf("Error encoding chat message: %v", err)
		return
	}
	s.hub.EmitToRoom(roomID, payload, nil)
}

// handleUpload validates the request, then stores the file through the
// retrying blob store and announces the result. The store call runs off the
// read pump: its retries can span tens of seconds, and a blocked pump would
// stop pong processing until the read deadline kills the connection.
func (s *Session) handleUpload(identity auth.Identity, upload protocol.UploadFile) {
	if !s.rooms.IsMember(s.client.id, upload.RoomID) {
		s.sendError(fmt.Sprintf("you have not joined room %q", upload.RoomID))
		return
	}

	data, err := base64.StdEncoding.DecodeString(upload.Base64Data)
	if err != nil {
		s.sendError("file data is not valid base64")
		return
	}

	go s.storeAndAnnounce(identity, upload, data)
}

// storeAndAnnounce runs the blob store call and emits the outcome. Store
// failures are reported to the requester only; they never affect the
// session or other members.
func (s *Session) storeAndAnnounce(identity auth.Identity, upload protocol.UploadFile, data []byte) {
	url, err := s.store.Store(s.hub.ctx, data, upload.FileName, upload.ContentType)
	if err != nil {
		log.Printf("Upload from %s failed: %v", identity.DisplayName, err)
		if payload, merr := protocol.Marshal(protocol.EventUploadError, uploadFailedMessage); merr == nil {
			s.hub.SendTo(s.client, payload)
		}
		return
	}

	payload, err := protocol.Marshal(protocol.EventFileUploaded, protocol.FileUploaded{
		DisplayName: identity.DisplayName,
		File:        protocol.FileRef{URL: url, FileName: upload.FileName},
	})
	if err != nil {
		log.Printf("Error encoding fileUploaded event: %v", err)
		return
	}
	s.hub.EmitToRoom(upload.RoomID, payload, nil)
	log.Printf("User %s uploaded %s to room %s", identity.DisplayName, upload.FileName, upload.RoomID)
}

// sendError delivers an inline errorMessage to this connection only.
func (s *Session) sendError(message string) {
	payload, err := protocol.Marshal(protocol.EventErrorMessage, message)
	if err != nil {
		return
	}
	s.hub.SendTo(s.client, payload)
}

// Close tears the connection down: every room membership is removed, the
// registry binding is deleted, and a global disconnect notice is emitted if
// an identity was bound. Close is safe to call more than once and safe to
// race with in-flight broadcasts.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = stateClosed
		s.mu.Unlock()

		rooms := s.rooms.LeaveAll(s.client.id)
		identity, hadIdentity := s.registry.Remove(s.client.id)
		if !hadIdentity {
			return
		}

		if payload, err := protocol.Marshal(protocol.EventUserDisconnect, protocol.UserDisconnect{
			DisplayName: identity.DisplayName,
		}); err == nil {
			s.hub.EmitToAll(payload)
		}
		log.Printf("User %s disconnected (left %d room(s))", identity.DisplayName, len(rooms))
	})
}
