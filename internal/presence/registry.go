// Package presence tracks who is in each room and which color they were given.
package presence

import (
	"math/rand"
	"sync"
	"time"
)

// Color is a CSS hex color shown next to a participant's name.
type Color string

// Palette is the fixed, ordered set of presence colors.
var Palette = []Color{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4",
	"#42d4f4", "#f032e6", "#9a6324", "#469990", "#808000",
}

// Participant is a named, colored room occupant.
type Participant struct {
	Name  string `json:"name"`
	Color Color  `json:"color"`
}

type room struct {
	participants []Participant
	colors       map[string]Color
}

// Registry holds the per-room participant lists and color tables.
// A room exists from its first participant until its last one is removed.
type Registry struct {
	mu      sync.Mutex
	palette []Color
	rooms   map[string]*room
	pick    func(n int) int
}

// Option customizes a Registry.
type Option func(*Registry)

// WithPalette overrides the default palette.
func WithPalette(p []Color) Option {
	return func(r *Registry) { r.palette = append([]Color(nil), p...) }
}

// WithPicker overrides the random index source used when the palette is exhausted.
func WithPicker(pick func(n int) int) Option {
	return func(r *Registry) { r.pick = pick }
}

func NewRegistry(opts ...Option) *Registry {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var rngMu sync.Mutex
	r := &Registry{
		palette: Palette,
		rooms:   make(map[string]*room),
		pick: func(n int) int {
			rngMu.Lock()
			defer rngMu.Unlock()
			return rng.Intn(n)
		},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Registry) room(roomID string) *room {
	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{colors: make(map[string]Color)}
		r.rooms[roomID] = rm
	}
	return rm
}

// AssignColor returns the color held by name in roomID, allocating one if needed.
func (r *Registry) AssignColor(roomID, name string) Color {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm := r.room(roomID)
	c := r.assignColor(rm, name)
	if len(rm.participants) == 0 {
		delete(r.rooms, roomID)
	}
	return c
}

func (r *Registry) assignColor(rm *room, name string) Color {
	if c, ok := rm.colors[name]; ok {
		return c
	}
	inUse := make(map[Color]bool, len(rm.participants))
	for _, p := range rm.participants {
		if p.Name != name {
			inUse[p.Color] = true
		}
	}
	for _, c := range r.palette {
		if !inUse[c] {
			rm.colors[name] = c
			return c
		}
	}
	// more participants than colors: reuse is allowed
	c := r.palette[r.pick(len(r.palette))]
	rm.colors[name] = c
	return c
}

// AddParticipant appends name to the room unless it is already listed.
func (r *Registry) AddParticipant(roomID, name string) Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm := r.room(roomID)
	for _, p := range rm.participants {
		if p.Name == name {
			return p
		}
	}
	p := Participant{Name: name, Color: r.assignColor(rm, name)}
	rm.participants = append(rm.participants, p)
	return p
}

// RemoveParticipant drops name from the room. The room and its color table
// are discarded once no participant is left.
func (r *Registry) RemoveParticipant(roomID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return
	}
	for i, p := range rm.participants {
		if p.Name == name {
			rm.participants = append(rm.participants[:i], rm.participants[i+1:]...)
			break
		}
	}
	if len(rm.participants) == 0 {
		delete(r.rooms, roomID)
	}
}

// ListParticipants returns an ordered copy of the room's participants.
func (r *Registry) ListParticipants(roomID string) []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return []Participant{}
	}
	out := make([]Participant, len(rm.participants))
	copy(out, rm.participants)
	return out
}

// Rooms reports how many rooms currently hold state.
func (r *Registry) Rooms() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Participants reports the total participant count across rooms.
func (r *Registry) Participants() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rm := range r.rooms {
		n += len(rm.participants)
	}
	return n
}
