package ws

import (
	"encoding/json"
	"log"
	"strings"
	"sync"

	"messaging-service/internal/models"
)

// Client is a live socket session the hub can deliver to.
type Client interface {
	ID() string
	UserID() int
	Send(payload []byte) error
	Close(code int, reason string)
}

type sessionEntry struct {
	client Client
	info   ConnInfo
	state  SessionState
	rooms  map[string]struct{}
}

// HubStats is a point-in-time view of the registry.
type HubStats struct {
	Sessions int            `json:"sessions"`
	Rooms    int            `json:"rooms"`
	Members  map[string]int `json:"members"`
}

// Hub maintains live sessions and the rooms they are subscribed to.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry     // sessionID -> entry
	rooms    map[string]map[string]Client // room -> sessionID -> client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]*sessionEntry),
		rooms:    make(map[string]map[string]Client),
	}
}

// Attach registers an authenticated session and subscribes it to its user room.
// A user may hold several sessions at once.
func (h *Hub) Attach(client Client, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sessions[client.ID()] = &sessionEntry{
		client: client,
		info:   info,
		state:  StateAuthenticated,
		rooms:  make(map[string]struct{}),
	}
	h.joinLocked(models.UserRoom(client.UserID()), client.ID())
}

// Detach removes a session from every room. Unknown sessions are ignored.
func (h *Hub) Detach(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	for room := range entry.rooms {
		h.leaveLocked(room, sessionID)
	}
	entry.state = StateClosed
	delete(h.sessions, sessionID)
}

// Join subscribes the session to room. Joining twice is a no-op.
// It reports false when the session is not attached.
func (h *Hub) Join(sessionID, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.joinLocked(room, sessionID)
}

// Leave unsubscribes the session from room.
func (h *Hub) Leave(sessionID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(room, sessionID)
}

// InRoom reports whether the session is subscribed to room.
func (h *Hub) InRoom(sessionID, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	entry, ok := h.sessions[sessionID]
	if !ok {
		return false
	}
	_, in := entry.rooms[room]
	return in
}

// State returns the lifecycle state of a session. Unknown sessions are closed.
func (h *Hub) State(sessionID string) SessionState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if entry, ok := h.sessions[sessionID]; ok {
		return entry.state
	}
	return StateClosed
}

// EmitToRoom writes event to every session in room except exceptSessionID.
// Recipients are snapshotted under the read lock and written outside it.
func (h *Hub) EmitToRoom(room string, event models.SocketEvent, exceptSessionID string) (delivered, dropped int) {
	h.mu.RLock()
	members := h.rooms[room]
	recipients := make([]Client, 0, len(members))
	for id, client := range members {
		if id == exceptSessionID {
			continue
		}
		recipients = append(recipients, client)
	}
	h.mu.RUnlock()

	if len(recipients) == 0 {
		return 0, 0
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("ws: marshal event failed: event=%s err=%v", event.Event, err)
		return 0, len(recipients)
	}

	for _, client := range recipients {
		if err := client.Send(payload); err != nil {
			dropped++
			continue
		}
		delivered++
	}
	return delivered, dropped
}

// SendTo writes event to a single session.
func (h *Hub) SendTo(sessionID string, event models.SocketEvent) error {
	h.mu.RLock()
	entry, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return errSessionClosed
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return entry.client.Send(payload)
}

// Stats summarizes sessions and room sizes.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := HubStats{
		Sessions: len(h.sessions),
		Rooms:    len(h.rooms),
		Members:  make(map[string]int, len(h.rooms)),
	}
	for room, members := range h.rooms {
		stats.Members[room] = len(members)
	}
	return stats
}

// Close terminates every session and clears the registry.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]Client, 0, len(h.sessions))
	for _, entry := range h.sessions {
		clients = append(clients, entry.client)
	}
	h.sessions = make(map[string]*sessionEntry)
	h.rooms = make(map[string]map[string]Client)
	h.mu.Unlock()

	for _, client := range clients {
		client.Close(1001, "server shutdown")
	}
}

func (h *Hub) joinLocked(room, sessionID string) bool {
	entry, ok := h.sessions[sessionID]
	if !ok {
		return false
	}

	members := h.rooms[room]
	if members == nil {
		members = make(map[string]Client)
		h.rooms[room] = members
	}
	members[sessionID] = entry.client
	entry.rooms[room] = struct{}{}
	entry.state = stateFor(entry)
	return true
}

func (h *Hub) leaveLocked(room, sessionID string) {
	if members := h.rooms[room]; members != nil {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if entry, ok := h.sessions[sessionID]; ok {
		delete(entry.rooms, room)
		entry.state = stateFor(entry)
	}
}

func stateFor(entry *sessionEntry) SessionState {
	for room := range entry.rooms {
		if strings.HasPrefix(room, "conv:") {
			return StateJoined
		}
	}
	return StateAuthenticated
}
