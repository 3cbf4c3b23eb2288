package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
)

// MemoryRepo keeps documents in process memory. It is the default backend and
// the one used by unit tests; contents do not survive a restart.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[string]*document.Document
	now   func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string]*document.Document), now: time.Now}
}

func (m *MemoryRepo) Create(_ context.Context, doc *document.Document) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[doc.RoomID]; ok {
		return nil, document.ErrAlreadyExists
	}
	d := doc.Clone()
	d.ID = d.RoomID
	d.CreatedAt = m.now()
	d.UpdatedAt = d.CreatedAt
	m.store[d.RoomID] = d
	return d.Clone(), nil
}

func (m *MemoryRepo) Get(_ context.Context, roomID string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.store[roomID]; ok {
		return d.Clone(), nil
	}
	return nil, document.ErrNotFound
}

func (m *MemoryRepo) UpdateContent(_ context.Context, roomID string, content json.RawMessage) (*document.Document, error) {
	return m.update(roomID, func(d *document.Document) {
		d.Content = append(json.RawMessage(nil), content...)
	})
}

func (m *MemoryRepo) UpdateTitle(_ context.Context, roomID, title string) (*document.Document, error) {
	return m.update(roomID, func(d *document.Document) { d.Title = title })
}

func (m *MemoryRepo) update(roomID string, mutate func(*document.Document)) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[roomID]
	if !ok {
		return nil, document.ErrNotFound
	}
	mutate(d)
	d.UpdatedAt = m.now()
	return d.Clone(), nil
}

// Ping always succeeds.
func (m *MemoryRepo) Ping(context.Context) error { return nil }

// Len reports how many documents are held.
func (m *MemoryRepo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}
