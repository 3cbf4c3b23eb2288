package document

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
)

// DefaultTitle is given to documents created by the first join to a room.
const DefaultTitle = "Untitled Document"

// Document is the persisted snapshot of one room's editor. ID and RoomID
// hold the same value: there is exactly one document per room.
type Document struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"roomId"`
	Title     string          `json:"title"`
	Content   json.RawMessage `json:"content,omitempty"`
	OwnerID   string          `json:"ownerId,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Clone returns a deep copy so callers never share Content bytes.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	if d.Content != nil {
		c.Content = append(json.RawMessage(nil), d.Content...)
	}
	return &c
}

// SameContent reports whether two snapshots are byte-equal once surrounding
// whitespace is ignored.
func SameContent(a, b json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b))
}

// Store is the document persistence used by realtime sessions. Every call is
// keyed by roomID; there is no version check, the last write wins.
//
//go:generate mockgen -source=models.go -destination=mocks/store_mock.go -package=mocks
type Store interface {
	// Get returns ErrNotFound when the room has no document.
	Get(ctx context.Context, roomID string) (*Document, error)
	// Create stores d under d.RoomID and returns ErrAlreadyExists when the
	// room already has a document.
	Create(ctx context.Context, d *Document) (*Document, error)
	UpdateContent(ctx context.Context, roomID string, content json.RawMessage) (*Document, error)
	UpdateTitle(ctx context.Context, roomID, title string) (*Document, error)
}

// Pinger is implemented by stores that can report backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
