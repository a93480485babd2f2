/*
Package chat contains the core logic of the real-time case-chat subsystem: gated
connections, per-case rooms, message enrichment and broadcasting, and batched
persistence of chat history.

This file defines the wire protocol spoken over a WebSocket connection (the event
envelope and its payloads) and the enriched chat message record itself.
*/
package chat

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MaxBodyBytes is the maximum allowed size (in bytes) for a chat message body.
const MaxBodyBytes = 5000

// Kind is the discriminator of a chat message variant.
type Kind string

// Supported chat message kinds. Anything else is rejected at ingest.
const (
	// KindText is a plain text message typed by a participant.
	KindText Kind = "text"

	// KindFileRequest asks the other party to upload a document through the
	// document service; the chat only carries the request.
	KindFileRequest Kind = "file-request"

	// KindSystem is a server- or workflow-generated notice shown inline.
	KindSystem Kind = "system"
)

// Valid reports whether k is one of the supported message kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindFileRequest, KindSystem:
		return true
	default:
		return false
	}
}

// Client-to-server event names.
const (
	EventJoinRoom    = "joinRoom"
	EventLeaveRoom   = "leaveRoom"
	EventChatMessage = "chatMessage"
)

// Server-to-client event names.
const (
	EventMessage    = "message"
	EventError      = "error"
	EventRoomJoined = "roomJoined"
)

// Envelope is the framing shared by every event in both directions: an event name
// plus an event-specific JSON payload.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinRoomPayload asks to join the broadcast room of one case.
type JoinRoomPayload struct {
	CaseID string `json:"caseId"`
}

// LeaveRoomPayload asks to leave a previously joined case room.
type LeaveRoomPayload struct {
	CaseID string `json:"caseId"`
}

// ChatMessagePayload is a client-submitted chat message before enrichment.
type ChatMessagePayload struct {
	CaseID  string `json:"caseId"`
	Message string `json:"message"`
	Kind    Kind   `json:"type"`
}

// RoomJoinedPayload confirms a successful room join back to the requesting connection.
type RoomJoinedPayload struct {
	CaseID    string `json:"caseId"`
	CaseTitle string `json:"caseTitle"`
}

// ErrorPayload carries an operation-local error to a single connection.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Message is the enriched chat message record: the client-submitted body and kind
// plus the server-derived sender identity, message id, and send timestamp. It is
// both the broadcast payload and the unit persisted by the batch flusher.
type Message struct {
	ID           string    `json:"id"`
	CaseID       string    `json:"caseId"`
	SenderID     string    `json:"senderId"`
	SenderName   string    `json:"senderName"`
	SenderAvatar string    `json:"senderAvatar,omitempty"`
	Kind         Kind      `json:"type"`
	Body         string    `json:"message"`
	SentAt       time.Time `json:"sentAt"`
}

// NewMessage constructs an enriched message for the given case, stamping it with a
// fresh message id and the current time.
func NewMessage(caseID string, senderID, senderName, senderAvatar string, kind Kind, body string) Message {
	return Message{
		ID:           uuid.NewString(),
		CaseID:       caseID,
		SenderID:     senderID,
		SenderName:   senderName,
		SenderAvatar: senderAvatar,
		Kind:         kind,
		Body:         body,
		SentAt:       time.Now().UTC(),
	}
}

// NewEnvelope marshals an event name and payload into a wire-ready frame.
func NewEnvelope(event string, payload any) ([]byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Envelope{
		Event:   event,
		Payload: payloadBytes,
	})
}
