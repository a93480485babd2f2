/*
Package chat contains the core logic of the real-time case-chat subsystem.

This file defines the Client struct, representing one gated WebSocket connection. It
manages the connection's lifecycle, the message communication loops (ReadPump and
WritePump), and dispatch of inbound events to the Manager.
*/
package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"lawchat/internal/pkg/errs"
	"lawchat/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxFrameSize = 8192

	// sendQueueSize is the per-connection buffered outbound queue length.
	sendQueueSize = 256
)

// Client represents an active, authenticated WebSocket connection. The identity
// claims are attached once by the connection gate and never re-verified per event;
// token freshness is the caller's responsibility when re-connecting.
type Client struct {
	// id is the opaque connection id; room membership is keyed by it.
	id string

	// conn is the underlying WebSocket connection object.
	conn *websocket.Conn

	// Decoded identity claims from the gated handshake.
	userID   string
	username string
	role     string

	// manager coordinates room membership and the ingest pipeline.
	manager *Manager

	// send is a buffered channel queueing frames waiting to be written.
	send chan []byte

	// closing is closed exactly once when the connection is shutting down.
	closing   chan struct{}
	closeOnce sync.Once

	// rooms tracks the case rooms this connection has joined, for disconnect cleanup.
	rooms   map[string]*Room
	roomsMu sync.Mutex

	logger zerolog.Logger
}

// NewClient constructs a Client for an already-gated connection.
func NewClient(manager *Manager, wsConn *websocket.Conn, userID, username, role string) *Client {
	connID := uuid.NewString()

	clientLogger := logx.Logger().With().
		Str("connection_id", connID).
		Str("user_id", userID).
		Str("role", role).
		Logger()

	return &Client{
		id:       connID,
		conn:     wsConn,
		userID:   userID,
		username: username,
		role:     role,
		manager:  manager,
		send:     make(chan []byte, sendQueueSize),
		closing:  make(chan struct{}),
		rooms:    make(map[string]*Room),
		logger:   clientLogger,
	}
}

// ID returns the opaque connection id.
func (c *Client) ID() string { return c.id }

// UserID returns the authenticated user id attached at the gate.
func (c *Client) UserID() string { return c.userID }

// Username returns the display name claim attached at the gate.
func (c *Client) Username() string { return c.username }

// Role returns the account role claim attached at the gate.
func (c *Client) Role() string { return c.role }

// ReadPump handles reading events from the WebSocket connection.
// It handles heartbeats (Pong), event dispatch, and performs cleanup upon connection closure.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxFrameSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading frame (Client close/going away)")
			}
			break
		}

		c.processInboundEvent(frame)
	}
}

// cleanupOnDisconnect handles the necessary cleanup steps when the client's ReadPump terminates.
// The connection is removed from every joined room; nothing is done to buffered-but-unflushed
// messages, which belong to the Flusher, not the connection.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Info().Msg("Client connection cleanup starting.")

	c.roomsMu.Lock()
	joined := make([]*Room, 0, len(c.rooms))
	for _, room := range c.rooms {
		joined = append(joined, room)
	}
	c.rooms = make(map[string]*Room)
	c.roomsMu.Unlock()

	for _, room := range joined {
		room.UnregisterClient(c)
	}

	c.closeOnce.Do(func() {
		close(c.closing)
	})

	if err := c.conn.Close(); err != nil {
		c.logger.Error().Err(err).Msg("Client connection close error")
	}
}

// processInboundEvent handles one raw event frame received from the client.
func (c *Client) processInboundEvent(frame []byte) {
	var envelope Envelope

	if err := json.Unmarshal(frame, &envelope); err != nil {
		c.logger.Warn().Err(err).
			Bytes("frame", frame).
			Msg("Client sent invalid JSON")
		return
	}

	ctx := context.Background()

	switch envelope.Event {
	case EventJoinRoom:
		var payload JoinRoomPayload
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil || payload.CaseID == "" {
			c.logger.Warn().Err(err).Msg("Client sent invalid joinRoom payload")
			c.SendError(errs.NewError(errs.ErrInvalidParams))
			return
		}
		c.manager.JoinRoom(ctx, c, payload.CaseID)

	case EventLeaveRoom:
		var payload LeaveRoomPayload
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil || payload.CaseID == "" {
			c.logger.Warn().Err(err).Msg("Client sent invalid leaveRoom payload")
			c.SendError(errs.NewError(errs.ErrInvalidParams))
			return
		}
		c.manager.LeaveRoom(c, payload.CaseID)

	case EventChatMessage:
		var payload ChatMessagePayload
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil || payload.CaseID == "" {
			c.logger.Warn().Err(err).Msg("Client sent invalid chatMessage payload")
			c.SendError(errs.NewError(errs.ErrInvalidParams))
			return
		}
		c.manager.SendMessage(ctx, c, payload)

	default:
		c.logger.Warn().Str("event", envelope.Event).Msg("Client sent unsupported event")
	}
}

// WritePump handles writing frames from the Client.send channel to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.writeQueuedFrame(frame) {
				return
			}

		case <-c.closing:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err == nil {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			}
			return

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedFrame writes one frame pulled from the send channel to the WebSocket.
// Returns true if the WritePump loop should continue, false if it should terminate.
func (c *Client) writeQueuedFrame(frame []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.Error().Err(err).Msg("Error writing frame")
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping message to maintain the connection heartbeat.
// Returns false if the WritePump loop should terminate due to write failure.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// queueFrame attempts to enqueue an already-marshaled frame for delivery.
// It returns false when the connection is closing or its queue is full.
func (c *Client) queueFrame(frame []byte) bool {
	select {
	case <-c.closing:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send queue full, dropping frame")
		return false
	}
}

// SendEvent marshals and queues an event for this connection only.
func (c *Client) SendEvent(event string, payload any) {
	frame, err := NewEnvelope(event, payload)
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("Error marshaling event for client")
		return
	}

	c.queueFrame(frame)
}

// SendError queues an error event for this connection only.
func (c *Client) SendError(customErr *errs.CustomError) {
	if customErr == nil {
		customErr = errs.NewError(errs.ErrUnknown)
	}

	c.SendEvent(EventError, ErrorPayload{
		Code:    customErr.Code,
		Message: customErr.Message,
	})
}

// trackRoom records a joined room for disconnect cleanup.
func (c *Client) trackRoom(room *Room) {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()

	c.rooms[room.CaseID] = room
}

// untrackRoom forgets a room after the connection has left it.
func (c *Client) untrackRoom(caseID string) {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()

	delete(c.rooms, caseID)
}

// joinedRoom returns the tracked room for caseID, or nil when not joined.
func (c *Client) joinedRoom(caseID string) *Room {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()

	return c.rooms[caseID]
}
