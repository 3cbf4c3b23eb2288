package repository

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisRepo(t *testing.T) (*RedisRepo, *mr.Miniredis) {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRepo(client, "test:doc:"), m
}

func TestRedisRepo_CreateGetUpdate(t *testing.T) {
	repo, m := newRedisRepo(t)
	ctx := context.Background()

	_, err := repo.Get(ctx, "r1")
	require.ErrorIs(t, err, document.ErrNotFound)

	created, err := repo.Create(ctx, &document.Document{RoomID: "r1", Title: document.DefaultTitle, Content: json.RawMessage(`{"ops":[]}`)})
	require.NoError(t, err)
	require.Equal(t, "r1", created.ID)
	require.True(t, m.Exists("test:doc:r1"))

	_, err = repo.Create(ctx, &document.Document{RoomID: "r1", Content: json.RawMessage(`{}`)})
	require.ErrorIs(t, err, document.ErrAlreadyExists)

	_, err = repo.UpdateContent(ctx, "r1", json.RawMessage(`{"ops":[{"insert":"saved"}]}`))
	require.NoError(t, err)
	_, err = repo.UpdateTitle(ctx, "r1", "Plan")
	require.NoError(t, err)

	got, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, "Plan", got.Title)
	require.JSONEq(t, `{"ops":[{"insert":"saved"}]}`, string(got.Content))
	require.Equal(t, created.CreatedAt.Unix(), got.CreatedAt.Unix())

	require.NoError(t, repo.Ping(ctx))
}

func TestRedisRepo_UpdateMissing(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()
	_, err := repo.UpdateContent(ctx, "nope", json.RawMessage(`{}`))
	require.ErrorIs(t, err, document.ErrNotFound)
	_, err = repo.UpdateTitle(ctx, "nope", "x")
	require.ErrorIs(t, err, document.ErrNotFound)
}

func TestRedisRepo_ConcurrentFieldUpdatesBothLand(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()
	_, err := repo.Create(ctx, &document.Document{RoomID: "r1", Content: json.RawMessage(`{"ops":[]}`)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := repo.UpdateTitle(ctx, "r1", "Title")
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := repo.UpdateContent(ctx, "r1", json.RawMessage(`{"ops":[{"insert":"x"}]}`))
		assert.NoError(t, err)
	}()
	wg.Wait()

	got, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, "Title", got.Title)
	require.JSONEq(t, `{"ops":[{"insert":"x"}]}`, string(got.Content))
}
