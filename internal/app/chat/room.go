/*
Package chat contains the core logic of the real-time case-chat subsystem.

This file defines the Room struct, the broadcast group of one case. Membership is
keyed by connection id, so one participant may be present from several tabs or
devices at once and individual connections can be evicted by server-side policy.
*/
package chat

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lawchat/internal/pkg/logx"
)

const (
	broadcastChannelBuffer  = 256
	membershipChannelBuffer = 16
)

// RoomInactivityTimeout is the duration after which an empty room shuts itself down.
// Rooms have no persisted existence; they are rebuilt on the next join.
const RoomInactivityTimeout = 5 * time.Minute

// Room represents the live broadcast group of one case.
type Room struct {
	// CaseID is the case this room belongs to; it is also the room's name.
	CaseID string

	// caseTitle is echoed back in join confirmations.
	caseTitle string

	// clients maps connection id to the member connection. Only authorized
	// connections are ever added (the Manager checks before registering).
	clients map[string]*Client

	// broadcast carries enriched messages to be fanned out to every member.
	broadcast chan Message

	// register and unregister carry membership changes into the Run loop.
	register   chan *Client
	unregister chan *Client

	// evict carries connection ids to be removed by server-side policy.
	evict chan string

	// cleanupChan notifies the Manager that this room has shut down.
	cleanupChan chan<- string

	// stopChan signals the Run loop to stop immediately.
	stopChan chan struct{}
	stopOnce sync.Once

	// shutdownTimer tracks room inactivity.
	shutdownTimer *time.Timer

	// mu protects access to the clients map.
	mu sync.RWMutex

	logger zerolog.Logger
}

// NewRoom creates and initializes a new Room for the given case.
func NewRoom(caseID, caseTitle string, cleanupChan chan<- string) *Room {
	roomLogger := logx.Logger().With().
		Str("case_id", caseID).
		Logger()

	return &Room{
		CaseID:        caseID,
		caseTitle:     caseTitle,
		clients:       make(map[string]*Client),
		broadcast:     make(chan Message, broadcastChannelBuffer),
		register:      make(chan *Client, membershipChannelBuffer),
		unregister:    make(chan *Client, membershipChannelBuffer),
		evict:         make(chan string, membershipChannelBuffer),
		cleanupChan:   cleanupChan,
		stopChan:      make(chan struct{}),
		shutdownTimer: time.NewTimer(RoomInactivityTimeout),
		logger:        roomLogger,
	}
}

// Stop sends a signal to immediately terminate the Room's Run loop.
func (r *Room) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
}

// Run starts the main event loop for the Room.
// It handles membership changes, message fan-out, and inactivity shutdown.
func (r *Room) Run() {
	defer func() {
		r.shutdownTimer.Stop()

		r.logger.Info().Msg("Room Run loop finished. Notifying Manager for cleanup.")

		func() {
			defer func() {
				if rec := recover(); rec != nil {
					logx.Warn("Recovered from panic during Manager cleanup notification (channel likely closed).")
				}
			}()

			select {
			case r.cleanupChan <- r.CaseID:
			default:
				r.logger.Warn().Msg("Manager cleanup channel blocked/full. Skipping cleanup notification.")
			}
		}()
	}()

	for {
		select {
		case client := <-r.register:
			r.mu.Lock()
			r.clients[client.ID()] = client
			total := len(r.clients)
			r.mu.Unlock()

			r.resetInactivityTimer()

			r.logger.Info().
				Str("connection_id", client.ID()).
				Str("user_id", client.UserID()).
				Int("total_connections", total).
				Msg("Connection joined room.")

			// Confirmed from inside the loop so the client holds the
			// confirmation only once its membership is visible to fan-out.
			client.SendEvent(EventRoomJoined, RoomJoinedPayload{
				CaseID:    r.CaseID,
				CaseTitle: r.caseTitle,
			})

		case client := <-r.unregister:
			r.removeConnection(client.ID(), "disconnect")

		case connID := <-r.evict:
			r.removeConnection(connID, "evicted")

		case message := <-r.broadcast:
			frame, err := NewEnvelope(EventMessage, message)
			if err != nil {
				r.logger.Error().
					Str("message_id", message.ID).
					Err(err).
					Msg("Error marshaling message for broadcast.")
				continue
			}

			// Fan out to every member, the sender's own connections included;
			// the sender's UI updates from this event rather than a local echo.
			r.mu.RLock()
			for _, client := range r.clients {
				if !client.queueFrame(frame) {
					r.logger.Warn().
						Str("connection_id", client.ID()).
						Msg("Member send queue full or closed, unregistering.")

					select {
					case r.unregister <- client:
					default:
						r.logger.Warn().Msg("Unregister channel full, skipping member cleanup.")
					}
				}
			}
			r.mu.RUnlock()

		case <-r.shutdownTimer.C:
			r.mu.RLock()
			empty := len(r.clients) == 0
			r.mu.RUnlock()

			if empty {
				r.logger.Info().Msgf("Room inactivity timeout (%s) reached. Shutting down Room.Run() loop.", RoomInactivityTimeout)
				return
			}
			r.resetInactivityTimer()

		case <-r.stopChan:
			r.logger.Info().Msg("Room forced stop initiated.")
			return
		}
	}
}

// removeConnection deletes one connection from the member map and restarts the
// inactivity countdown when the room becomes empty.
func (r *Room) removeConnection(connID string, reason string) {
	r.mu.Lock()
	client, ok := r.clients[connID]
	if ok {
		delete(r.clients, connID)
	}
	remaining := len(r.clients)
	r.mu.Unlock()

	if !ok {
		r.logger.Warn().
			Str("connection_id", connID).
			Msg("Remove failed for unknown/already removed connection.")
		return
	}

	client.untrackRoom(r.CaseID)

	r.logger.Info().
		Str("connection_id", connID).
		Str("user_id", client.UserID()).
		Str("reason", reason).
		Int("total_connections", remaining).
		Msg("Connection left room.")

	if remaining == 0 {
		r.resetInactivityTimer()
	}
}

func (r *Room) resetInactivityTimer() {
	if !r.shutdownTimer.Stop() {
		select {
		case <-r.shutdownTimer.C:
		default:
		}
	}
	r.shutdownTimer.Reset(RoomInactivityTimeout)
}

// RegisterClient safely adds a connection to the registration queue.
func (r *Room) RegisterClient(client *Client) {
	select {
	case r.register <- client:
	default:
		r.logger.Warn().Msg("Room register channel blocked, join dropped.")
	}
}

// UnregisterClient safely adds a connection to the removal queue.
func (r *Room) UnregisterClient(client *Client) {
	select {
	case r.unregister <- client:
	default:
		r.logger.Warn().Msg("Room unregister channel blocked. Connection cleanup still proceeding.")
	}
}

// Evict removes a single connection from the room by server-side policy, e.g. when
// a lawyer is unassigned from the case mid-session.
func (r *Room) Evict(connID string) {
	select {
	case r.evict <- connID:
	default:
		r.logger.Warn().Str("connection_id", connID).Msg("Room evict channel blocked, eviction dropped.")
	}
}

// Broadcast queues an enriched message for fan-out to every member connection.
func (r *Room) Broadcast(message Message) {
	select {
	case r.broadcast <- message:
	default:
		r.logger.Warn().
			Str("message_id", message.ID).
			Msg("Broadcast channel full, dropping live fan-out.")
	}
}

// Members returns the connection ids currently joined to the room.
func (r *Room) Members() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}
