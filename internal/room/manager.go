// Package room binds realtime connections to rooms and fans frames out to them.
package room

import (
	"encoding/json"
	"sync"

	"github.com/gogotex/gogotex/backend/go-collab/internal/presence"
	"github.com/gogotex/gogotex/backend/go-collab/internal/wire"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/logger"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/metrics"
)

// Conn is the manager's view of a realtime connection. Send must not block:
// it enqueues the frame on the connection's FIFO queue and reports whether
// the frame was accepted.
type Conn interface {
	ID() string
	Send(frame []byte) bool
}

// Manager owns the roomID -> connections arena. A room entry is created by
// the first Join and removed when its last connection leaves. Membership
// changes and the broadcasts they trigger run under one lock, so every member
// observes user-list updates in the same order.
type Manager struct {
	mu       sync.Mutex
	presence *presence.Registry
	rooms    map[string]map[Conn]struct{}
}

func NewManager(p *presence.Registry) *Manager {
	if p == nil {
		p = presence.NewRegistry()
	}
	return &Manager{presence: p, rooms: make(map[string]map[Conn]struct{})}
}

// Join registers c in roomID under name and sends the updated participant
// list to every member, c included.
func (m *Manager) Join(c Conn, roomID, name string) []presence.Participant {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.rooms[roomID]
	if !ok {
		members = make(map[Conn]struct{})
		m.rooms[roomID] = members
	}
	members[c] = struct{}{}
	m.presence.AddParticipant(roomID, name)

	list := m.presence.ListParticipants(roomID)
	m.broadcastUserList(roomID, list)
	m.observe()
	logger.WithFields(logger.Fields{"room": roomID, "participant": name, "conn": c.ID(), "members": len(members)}).Info("joined room")
	return list
}

// Leave unbinds c, removes name from the room and re-broadcasts the list to
// whoever remains.
func (m *Manager) Leave(c Conn, roomID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if members, ok := m.rooms[roomID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(m.rooms, roomID)
		}
	}
	m.presence.RemoveParticipant(roomID, name)

	m.broadcastUserList(roomID, m.presence.ListParticipants(roomID))
	m.observe()
	logger.WithFields(logger.Fields{"room": roomID, "participant": name, "conn": c.ID()}).Info("left room")
}

// Broadcast enqueues frame on every connection bound to roomID except
// exclude (which may be nil). It returns the number of accepted deliveries.
func (m *Manager) Broadcast(roomID string, frame []byte, exclude Conn) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.broadcast(roomID, frame, exclude)
}

// BroadcastEvent wraps data in an event frame and broadcasts it.
func (m *Manager) BroadcastEvent(roomID, event string, data json.RawMessage, exclude Conn) (int, error) {
	frame, err := wire.EncodeRaw(event, data)
	if err != nil {
		return 0, err
	}
	n := m.Broadcast(roomID, frame, exclude)
	metrics.FramesBroadcast.WithLabelValues(event).Add(float64(n))
	return n, nil
}

func (m *Manager) broadcast(roomID string, frame []byte, exclude Conn) int {
	delivered := 0
	for c := range m.rooms[roomID] {
		if exclude != nil && c == exclude {
			continue
		}
		if c.Send(frame) {
			delivered++
		}
	}
	return delivered
}

func (m *Manager) broadcastUserList(roomID string, list []presence.Participant) {
	entries := make([]wire.UserEntry, 0, len(list))
	for _, p := range list {
		entries = append(entries, wire.UserEntry{Name: p.Name, Color: string(p.Color)})
	}
	frame, err := wire.Encode(wire.EventUpdateUserList, entries)
	if err != nil {
		logger.Errorf("encode user list for room %s: %v", roomID, err)
		return
	}
	n := m.broadcast(roomID, frame, nil)
	metrics.FramesBroadcast.WithLabelValues(wire.EventUpdateUserList).Add(float64(n))
}

func (m *Manager) observe() {
	metrics.RoomsActive.Set(float64(len(m.rooms)))
	metrics.ParticipantsActive.Set(float64(m.presence.Participants()))
}

// Participants returns the ordered participant snapshot for roomID.
func (m *Manager) Participants(roomID string) []presence.Participant {
	return m.presence.ListParticipants(roomID)
}

// Members reports how many connections are bound to roomID.
func (m *Manager) Members(roomID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms[roomID])
}

// Rooms reports how many rooms have at least one bound connection.
func (m *Manager) Rooms() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}
