// Package protocol defines the wire format exchanged between Parlor clients
// and the coordinator. Every frame is a JSON envelope carrying an event name
// and an event-specific payload.
package protocol

import "encoding/json"

// Inbound event names sent by clients.
const (
	EventJoinRoom    = "joinRoom"
	EventChatMessage = "chatMessage"
	EventUploadFile  = "uploadFile"
)

// Outbound event names emitted by the coordinator. EventChatMessage is used
// in both directions with different payloads.
const (
	EventUserJoined     = "userJoined"
	EventFileUploaded   = "fileUploaded"
	EventUploadError    = "uploadError"
	EventErrorMessage   = "errorMessage"
	EventBotMessage     = "botMessage"
	EventUserDisconnect = "userDisconnect"
)

// BotName is the display name used for coordinator-generated room messages.
const BotName = "ChatBot"

// Envelope wraps every message on the wire with its event name.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRoom is the payload of an inbound joinRoom event.
type JoinRoom struct {
	RoomID string `json:"roomId"`
}

// ChatInbound is the payload of an inbound chatMessage event.
type ChatInbound struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// UploadFile is the payload of an inbound uploadFile event. File bytes are
// carried base64-encoded.
type UploadFile struct {
	Base64Data  string `json:"base64Data"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	RoomID      string `json:"roomId"`
}

// UserJoined announces a new room member to the existing members.
type UserJoined struct {
	DisplayName string `json:"displayName"`
}

// ChatOutbound is the payload of an outbound chatMessage event. The display
// name is always the one resolved by the coordinator, never client-supplied.
type ChatOutbound struct {
	DisplayName string `json:"displayName"`
	Message     string `json:"message"`
}

// FileRef points at a stored upload.
type FileRef struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
}

// FileUploaded announces a completed upload to a room.
type FileUploaded struct {
	DisplayName string  `json:"displayName"`
	File        FileRef `json:"file"`
}

// BotMessage carries a coordinator-generated message such as the join
// welcome. DisplayName is always BotName.
type BotMessage struct {
	DisplayName string `json:"displayName"`
	Message     string `json:"message"`
}

// UserDisconnect announces that a user's connection has closed.
type UserDisconnect struct {
	DisplayName string `json:"displayName"`
}

// Marshal encodes an event and its payload into a wire envelope. The
// uploadError and errorMessage events carry a plain string payload.
func Marshal(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
