package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
	"github.com/gogotex/gogotex/backend/go-collab/internal/document/mocks"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeArchive struct {
	mu      sync.Mutex
	saved   map[string]json.RawMessage
	failPut bool
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{saved: map[string]json.RawMessage{}}
}

func (f *fakeArchive) Archive(_ context.Context, roomID string, content json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut {
		return errors.New("bucket unavailable")
	}
	f.saved[roomID] = append(json.RawMessage(nil), content...)
	return nil
}

func (f *fakeArchive) Latest(_ context.Context, roomID string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.saved[roomID]
	if !ok {
		return nil, document.ErrNotFound
	}
	return c, nil
}

func TestServiceCreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	svc := NewMemoryService()

	d, err := svc.Create(ctx, &document.Document{RoomID: "r1", Content: json.RawMessage(`{"ops":[]}`), OwnerID: "Alice"})
	require.NoError(t, err)
	require.Equal(t, document.DefaultTitle, d.Title)
	require.Equal(t, "r1", d.ID)

	_, err = svc.Create(ctx, &document.Document{RoomID: "r1"})
	require.ErrorIs(t, err, document.ErrAlreadyExists)

	_, err = svc.UpdateContent(ctx, "r1", json.RawMessage(`{"ops":[{"insert":"hi"}]}`))
	require.NoError(t, err)
	_, err = svc.UpdateTitle(ctx, "r1", "Notes")
	require.NoError(t, err)

	got, err := svc.Get(ctx, "r1")
	require.NoError(t, err)
	require.JSONEq(t, `{"ops":[{"insert":"hi"}]}`, string(got.Content))
	require.Equal(t, "Notes", got.Title)

	_, err = svc.Get(ctx, "missing")
	require.ErrorIs(t, err, document.ErrNotFound)
	require.NoError(t, svc.Ping(ctx))
}

func TestServiceArchivesSavesAndRestoresOnCreate(t *testing.T) {
	ctx := context.Background()
	arch := newFakeArchive()
	svc := NewMemoryService(WithArchive(arch))

	_, err := svc.Create(ctx, &document.Document{RoomID: "r1", Content: json.RawMessage(`{"ops":[]}`)})
	require.NoError(t, err)

	before := testutil.ToFloat64(metrics.ArchiveWrites.WithLabelValues("ok"))
	_, err = svc.UpdateContent(ctx, "r1", json.RawMessage(`{"v":2}`))
	require.NoError(t, err)
	require.Equal(t, before+1, testutil.ToFloat64(metrics.ArchiveWrites.WithLabelValues("ok")))

	// a fresh store with the same archive resumes from the archived snapshot
	restored := NewMemoryService(WithArchive(arch))
	d, err := restored.Create(ctx, &document.Document{RoomID: "r1", Content: json.RawMessage(`{"ops":[]}`)})
	require.NoError(t, err)
	require.JSONEq(t, `{"v":2}`, string(d.Content))
}

func TestServiceArchiveFailureDoesNotFailSave(t *testing.T) {
	ctx := context.Background()
	arch := newFakeArchive()
	arch.failPut = true
	svc := NewMemoryService(WithArchive(arch))
	_, err := svc.Create(ctx, &document.Document{RoomID: "r1"})
	require.NoError(t, err)

	before := testutil.ToFloat64(metrics.ArchiveWrites.WithLabelValues("error"))
	d, err := svc.UpdateContent(ctx, "r1", json.RawMessage(`{"v":1}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"v":1}`, string(d.Content))
	require.Equal(t, before+1, testutil.ToFloat64(metrics.ArchiveWrites.WithLabelValues("error")))
}

func TestServiceStoreErrorsAreCounted(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	boom := errors.New("connection reset")
	store.EXPECT().UpdateContent(gomock.Any(), "r1", gomock.Any()).Return(nil, boom)
	store.EXPECT().Get(gomock.Any(), "r2").Return(nil, document.ErrNotFound)

	svc := New(store)
	before := testutil.ToFloat64(metrics.StoreOperations.WithLabelValues("update_content", "error"))
	_, err := svc.UpdateContent(context.Background(), "r1", json.RawMessage(`{}`))
	require.ErrorIs(t, err, boom)
	require.Equal(t, before+1, testutil.ToFloat64(metrics.StoreOperations.WithLabelValues("update_content", "error")))

	nf := testutil.ToFloat64(metrics.StoreOperations.WithLabelValues("get", "not_found"))
	_, err = svc.Get(context.Background(), "r2")
	require.ErrorIs(t, err, document.ErrNotFound)
	require.Equal(t, nf+1, testutil.ToFloat64(metrics.StoreOperations.WithLabelValues("get", "not_found")))
}

func TestServiceCallsCarryDeadline(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().UpdateTitle(gomock.Any(), "r1", "T").DoAndReturn(
		func(ctx context.Context, roomID, title string) (*document.Document, error) {
			_, ok := ctx.Deadline()
			require.True(t, ok)
			return &document.Document{RoomID: roomID, Title: title}, nil
		})

	_, err := New(store, WithTimeout(0)).UpdateTitle(context.Background(), "r1", "T")
	require.NoError(t, err)
}
