package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
	"github.com/gogotex/gogotex/backend/go-collab/internal/document/repository"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/logger"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/metrics"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

const defaultTimeout = 5 * time.Second

// Archiver keeps a copy of saved snapshots outside the document store.
type Archiver interface {
	Archive(ctx context.Context, roomID string, content json.RawMessage) error
	Latest(ctx context.Context, roomID string) (json.RawMessage, error)
}

// Service wraps a document.Store with per-operation timeouts, metrics and
// the optional snapshot archive. It satisfies document.Store itself.
type Service struct {
	store   document.Store
	archive Archiver
	timeout time.Duration
}

type Option func(*Service)

// WithArchive copies every saved snapshot to a.
func WithArchive(a Archiver) Option {
	return func(s *Service) { s.archive = a }
}

// WithTimeout bounds each store call. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(store document.Store, opts ...Option) *Service {
	s := &Service{store: store, timeout: defaultTimeout}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewMemoryService returns a Service backed by the in-memory repository.
func NewMemoryService(opts ...Option) *Service {
	return New(repository.NewMemoryRepo(), opts...)
}

// NewMongoService returns a Service backed by a MongoDB collection.
// Caller is responsible for creating the collection (and client) and passing it in.
func NewMongoService(ctx context.Context, col *mongo.Collection, opts ...Option) (*Service, error) {
	repo, err := repository.NewMongoRepo(ctx, col)
	if err != nil {
		return nil, err
	}
	return New(repo, opts...), nil
}

// NewRedisService returns a Service storing documents as Redis strings.
func NewRedisService(client *redis.Client, prefix string, opts ...Option) *Service {
	return New(repository.NewRedisRepo(client, prefix), opts...)
}

func (s *Service) Get(ctx context.Context, roomID string) (*document.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	d, err := s.store.Get(ctx, roomID)
	observe("get", err)
	return d, err
}

// Create stores a new document. When an archive is configured and holds a
// snapshot for the room, that snapshot replaces the initial content so a room
// whose store entry was lost resumes from its last save.
func (s *Service) Create(ctx context.Context, d *document.Document) (*document.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	d = d.Clone()
	if d.Title == "" {
		d.Title = document.DefaultTitle
	}
	if s.archive != nil {
		latest, err := s.archive.Latest(ctx, d.RoomID)
		switch {
		case err == nil:
			d.Content = latest
		case !errors.Is(err, document.ErrNotFound):
			logger.Warnf("archive lookup for room %s: %v", d.RoomID, err)
		}
	}
	out, err := s.store.Create(ctx, d)
	observe("create", err)
	return out, err
}

// UpdateContent overwrites the room's snapshot (last writer wins) and then
// archives it. Archive failures are logged, never returned.
func (s *Service) UpdateContent(ctx context.Context, roomID string, content json.RawMessage) (*document.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	d, err := s.store.UpdateContent(ctx, roomID, content)
	observe("update_content", err)
	if err != nil {
		return nil, err
	}
	if s.archive != nil {
		if aerr := s.archive.Archive(ctx, roomID, content); aerr != nil {
			metrics.ArchiveWrites.WithLabelValues("error").Inc()
			logger.Errorf("archive snapshot for room %s: %v", roomID, aerr)
		} else {
			metrics.ArchiveWrites.WithLabelValues("ok").Inc()
		}
	}
	return d, nil
}

func (s *Service) UpdateTitle(ctx context.Context, roomID, title string) (*document.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	d, err := s.store.UpdateTitle(ctx, roomID, title)
	observe("update_title", err)
	return d, err
}

// Ping checks the store and the archive when they can report reachability.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.store.(document.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}
	if p, ok := s.archive.(document.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("archive: %w", err)
		}
	}
	return nil
}

func observe(op string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, document.ErrNotFound):
		result = "not_found"
	case errors.Is(err, document.ErrAlreadyExists):
		result = "conflict"
	default:
		result = "error"
	}
	metrics.StoreOperations.WithLabelValues(op, result).Inc()
}
