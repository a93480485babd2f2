/*
Package chat contains the core logic of the real-time case-chat subsystem.

This file defines the Manager struct, the central coordinator. It owns the registry
of live case rooms and runs the ingest pipeline: authorization against the case
service, sender enrichment through the identity cache, room fan-out, and handoff to
the batch flusher. The same authorization predicate guards both the join and send
paths, so the access rule cannot drift between them.
*/
package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"lawchat/internal/app/cases"
	"lawchat/internal/pkg/errs"
	"lawchat/internal/pkg/logx"
)

// CaseLookup resolves cases for authorization. Implemented by the cases repository
// in production and by fakes in tests.
type CaseLookup interface {
	GetCase(ctx context.Context, caseID string) (*cases.Case, error)
}

// Manager coordinates all active case rooms and processes chat operations on behalf
// of gated connections.
type Manager struct {
	// rooms stores all live Room instances, keyed by case id.
	rooms map[string]*Room

	// mu protects concurrent access to the rooms map.
	mu sync.RWMutex

	// cleanup is the channel Rooms use to ask the Manager to forget them.
	cleanup chan string

	// wg waits for the runCleanupLoop goroutine during shutdown.
	wg sync.WaitGroup

	cases      CaseLookup
	identities *IdentityCache
	flusher    *Flusher

	logger zerolog.Logger
}

// NewManager constructs a Manager wired to its collaborators and starts its cleanup loop.
func NewManager(caseLookup CaseLookup, identities *IdentityCache, flusher *Flusher) *Manager {
	managerLogger := logx.Logger().With().Str("component", "Manager").Logger()

	m := &Manager{
		rooms:      make(map[string]*Room),
		cleanup:    make(chan string, 10),
		cases:      caseLookup,
		identities: identities,
		flusher:    flusher,
		logger:     managerLogger,
	}

	m.wg.Add(1)

	go m.runCleanupLoop()

	return m
}

// runCleanupLoop is a blocking loop that listens on the cleanup channel.
// When a case id is received, it removes the corresponding room from the registry.
func (m *Manager) runCleanupLoop() {
	defer m.wg.Done()

	m.logger.Info().Msg("Cleanup loop started.")

	for caseID := range m.cleanup {
		m.deleteRoom(caseID)
	}

	m.logger.Info().Msg("Cleanup loop stopped.")
}

// deleteRoom removes the specified room from the Manager's rooms map.
func (m *Manager) deleteRoom(caseID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[caseID]; ok {
		delete(m.rooms, caseID)
		m.logger.Info().Str("case_id", caseID).Msg("Room successfully removed.")
	}
}

// getOrCreateRoom returns the live room for a case, starting one when none exists.
// Rooms have no persisted existence; they are reconstructed as connections join.
func (m *Manager) getOrCreateRoom(caseID, caseTitle string) *Room {
	m.mu.RLock()
	room, ok := m.rooms[caseID]
	m.mu.RUnlock()

	if ok {
		return room
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if room, ok = m.rooms[caseID]; ok {
		return room
	}

	room = NewRoom(caseID, caseTitle, m.cleanup)
	m.rooms[caseID] = room

	go room.Run()

	m.logger.Info().Str("case_id", caseID).Msg("New Room created and started.")
	return room
}

// GetRoom retrieves a live Room by case id, or nil when no connection has it open.
func (m *Manager) GetRoom(caseID string) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[caseID]
	if !ok {
		return nil
	}
	return room
}

// resolveAuthorizedCase fetches the case and applies the shared access rule for the
// given connection. failureCode is the generic error used when the lookup itself
// fails (UpstreamLookupError); denial and not-found map to their own codes.
func (m *Manager) resolveAuthorizedCase(ctx context.Context, c *Client, caseID string, failureCode int) (*cases.Case, *errs.CustomError) {
	caseData, err := m.cases.GetCase(ctx, caseID)
	if err != nil {
		if errors.Is(err, cases.ErrNotFound) {
			m.logger.Warn().
				Str("case_id", caseID).
				Str("user_id", c.UserID()).
				Msg("Operation on unknown case.")
			return nil, errs.NewError(errs.ErrCaseNotFound)
		}

		m.logger.Error().
			Err(err).
			Str("case_id", caseID).
			Str("user_id", c.UserID()).
			Msg("Case lookup failed.")
		return nil, errs.NewError(failureCode)
	}

	if !caseData.AccessibleBy(c.UserID(), c.Role()) {
		m.logger.Warn().
			Str("case_id", caseID).
			Str("user_id", c.UserID()).
			Str("role", c.Role()).
			Msg("Unauthorized case chat access attempt.")
		return nil, errs.NewError(errs.ErrCaseAccessDenied)
	}

	return caseData, nil
}

// JoinRoom authorizes the connection for the case and adds it to the case's room.
// On success the room confirms with a roomJoined event once membership is effective;
// on denial or failure the connection receives an error event and joins nothing.
func (m *Manager) JoinRoom(ctx context.Context, c *Client, caseID string) {
	caseData, customErr := m.resolveAuthorizedCase(ctx, c, caseID, errs.ErrRoomJoinFailed)
	if customErr != nil {
		c.SendError(customErr)
		return
	}

	room := m.getOrCreateRoom(caseID, caseData.Title)
	room.RegisterClient(c)
	c.trackRoom(room)
}

// LeaveRoom removes the connection from the case's room, if it had joined it.
func (m *Manager) LeaveRoom(c *Client, caseID string) {
	room := c.joinedRoom(caseID)
	if room == nil {
		return
	}

	room.UnregisterClient(c)
	c.untrackRoom(caseID)
}

// SendMessage runs the ingest pipeline for one chat message: validate, re-authorize
// (defense in depth — a connection could attempt to message a room it never joined),
// enrich with sender identity, broadcast to the room, and buffer for persistence.
// Any failure is reported to the sender only; nothing is broadcast or buffered then.
func (m *Manager) SendMessage(ctx context.Context, c *Client, payload ChatMessagePayload) {
	if !payload.Kind.Valid() {
		c.SendError(errs.NewError(errs.ErrMessageKindInvalid))
		return
	}

	if len(payload.Message) > MaxBodyBytes {
		c.SendError(errs.NewError(errs.ErrMessageContentTooLong))
		return
	}

	if _, customErr := m.resolveAuthorizedCase(ctx, c, payload.CaseID, errs.ErrMessageSendFailed); customErr != nil {
		c.SendError(customErr)
		return
	}

	identity, err := m.identities.Resolve(ctx, c.UserID())
	if err != nil {
		m.logger.Error().
			Err(err).
			Str("user_id", c.UserID()).
			Msg("Sender identity lookup failed.")
		c.SendError(errs.NewError(errs.ErrMessageSendFailed))
		return
	}

	msg := NewMessage(payload.CaseID, c.UserID(), identity.Username, identity.AvatarURL, payload.Kind, payload.Message)

	// Live fan-out first, then the persistence buffer, matching the delivery
	// contract: members see the message immediately, durability follows on the
	// next flush tick.
	if room := m.GetRoom(payload.CaseID); room != nil {
		room.Broadcast(msg)
	}

	m.flusher.Append(msg)
}

// Shutdown gracefully shuts down the Manager and all managed rooms.
// It stops all room Run loops, closes the cleanup channel, and waits for the cleanup goroutine to exit.
func (m *Manager) Shutdown() {
	m.logger.Info().Msg("Shutting down Manager cleanup loop...")

	m.mu.Lock()

	for _, room := range m.rooms {
		room.Stop()
	}
	m.rooms = make(map[string]*Room)

	m.mu.Unlock()

	close(m.cleanup)
	m.wg.Wait()

	m.logger.Info().Msg("Manager shutdown complete.")
}
