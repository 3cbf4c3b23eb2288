package repository

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepoLifecycle(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()

	_, err := r.Get(ctx, "r1")
	require.ErrorIs(t, err, document.ErrNotFound)

	d, err := r.Create(ctx, &document.Document{RoomID: "r1", Title: document.DefaultTitle, Content: json.RawMessage(`{"ops":[]}`), OwnerID: "alice"})
	require.NoError(t, err)
	require.Equal(t, "r1", d.ID)
	require.False(t, d.CreatedAt.IsZero())

	_, err = r.Create(ctx, &document.Document{RoomID: "r1", Content: json.RawMessage(`{}`)})
	require.ErrorIs(t, err, document.ErrAlreadyExists)
	require.Equal(t, 1, r.Len())

	up, err := r.UpdateContent(ctx, "r1", json.RawMessage(`{"ops":[{"insert":"hi"}]}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"ops":[{"insert":"hi"}]}`, string(up.Content))

	up, err = r.UpdateTitle(ctx, "r1", "Notes")
	require.NoError(t, err)
	require.Equal(t, "Notes", up.Title)

	got, err := r.Get(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, "Notes", got.Title)
	require.Equal(t, "alice", got.OwnerID)
	require.JSONEq(t, `{"ops":[{"insert":"hi"}]}`, string(got.Content))

	_, err = r.UpdateContent(ctx, "missing", json.RawMessage(`{}`))
	require.ErrorIs(t, err, document.ErrNotFound)
	_, err = r.UpdateTitle(ctx, "missing", "x")
	require.ErrorIs(t, err, document.ErrNotFound)
}

func TestMemoryRepoReturnsCopies(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	_, err := r.Create(ctx, &document.Document{RoomID: "r1", Content: json.RawMessage(`{"a":1}`)})
	require.NoError(t, err)

	got, err := r.Get(ctx, "r1")
	require.NoError(t, err)
	got.Content[1] = 'X'
	got.Title = "mutated"

	again, err := r.Get(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(again.Content))
	require.Empty(t, again.Title)
}
