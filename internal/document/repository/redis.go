package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
	"github.com/redis/go-redis/v9"
)

const maxTxAttempts = 5

// RedisRepo implements the document store on Redis. Each document is stored as
// JSON under key "<prefix><roomId>" without expiry. Updates use WATCH/MULTI so
// concurrent title and content writes never overwrite each other's fields.
type RedisRepo struct {
	client *redis.Client
	prefix string
}

// NewRedisRepo creates a Redis-based document repository. Prefix may be empty.
func NewRedisRepo(client *redis.Client, prefix string) *RedisRepo {
	if prefix == "" {
		prefix = "doc:"
	}
	return &RedisRepo{client: client, prefix: prefix}
}

func (r *RedisRepo) key(roomID string) string {
	return r.prefix + roomID
}

func (r *RedisRepo) Create(ctx context.Context, doc *document.Document) (*document.Document, error) {
	now := time.Now().UTC()
	d := doc.Clone()
	d.ID = d.RoomID
	d.CreatedAt = now
	d.UpdatedAt = now
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	ok, err := r.client.SetNX(ctx, r.key(d.RoomID), b, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("create document %s: %w", d.RoomID, err)
	}
	if !ok {
		return nil, document.ErrAlreadyExists
	}
	return d, nil
}

func (r *RedisRepo) Get(ctx context.Context, roomID string) (*document.Document, error) {
	b, err := r.client.Get(ctx, r.key(roomID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, document.ErrNotFound
		}
		return nil, fmt.Errorf("get document %s: %w", roomID, err)
	}
	var d document.Document
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", roomID, err)
	}
	return &d, nil
}

func (r *RedisRepo) UpdateContent(ctx context.Context, roomID string, content json.RawMessage) (*document.Document, error) {
	return r.update(ctx, roomID, func(d *document.Document) {
		d.Content = append(json.RawMessage(nil), content...)
	})
}

func (r *RedisRepo) UpdateTitle(ctx context.Context, roomID, title string) (*document.Document, error) {
	return r.update(ctx, roomID, func(d *document.Document) { d.Title = title })
}

func (r *RedisRepo) update(ctx context.Context, roomID string, mutate func(*document.Document)) (*document.Document, error) {
	key := r.key(roomID)
	var out *document.Document
	txf := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return document.ErrNotFound
			}
			return err
		}
		var d document.Document
		if err := json.Unmarshal(b, &d); err != nil {
			return err
		}
		mutate(&d)
		d.UpdatedAt = time.Now().UTC()
		nb, err := json.Marshal(&d)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, nb, 0)
			return nil
		})
		if err == nil {
			out = &d
		}
		return err
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, document.ErrNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("update document %s: %w", roomID, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("update document %s: %w", roomID, redis.TxFailedErr)
}

func (r *RedisRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
