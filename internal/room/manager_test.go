package room

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/gogotex/gogotex/backend/go-collab/internal/presence"
	"github.com/gogotex/gogotex/backend/go-collab/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	refuse bool
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse {
		return false
	}
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeConn) messages(t *testing.T) []wire.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]wire.Message, 0, len(f.frames))
	for _, b := range f.frames {
		m, err := wire.Decode(b)
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func (f *fakeConn) lastUserList(t *testing.T) []wire.UserEntry {
	msgs := f.messages(t)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Event == wire.EventUpdateUserList {
			var list []wire.UserEntry
			require.NoError(t, json.Unmarshal(msgs[i].Data, &list))
			return list
		}
	}
	t.Fatalf("no %s frame for %s", wire.EventUpdateUserList, f.id)
	return nil
}

func TestJoinBroadcastsListIncludingJoiner(t *testing.T) {
	m := NewManager(presence.NewRegistry())
	a := &fakeConn{id: "a"}
	b := &fakeConn{id: "b"}

	m.Join(a, "r1", "alice")
	require.Equal(t, []wire.UserEntry{{Name: "alice", Color: string(presence.Palette[0])}}, a.lastUserList(t))

	list := m.Join(b, "r1", "bob")
	require.Len(t, list, 2)
	want := []wire.UserEntry{
		{Name: "alice", Color: string(presence.Palette[0])},
		{Name: "bob", Color: string(presence.Palette[1])},
	}
	assert.Equal(t, want, a.lastUserList(t))
	assert.Equal(t, want, b.lastUserList(t))
	assert.Equal(t, 2, m.Members("r1"))
}

func TestLeaveUpdatesRemainingMembers(t *testing.T) {
	m := NewManager(nil)
	a := &fakeConn{id: "a"}
	b := &fakeConn{id: "b"}
	m.Join(a, "r1", "alice")
	m.Join(b, "r1", "bob")

	before := len(a.messages(t))
	m.Leave(b, "r1", "bob")

	assert.Equal(t, []wire.UserEntry{{Name: "alice", Color: string(presence.Palette[0])}}, a.lastUserList(t))
	assert.Len(t, a.messages(t), before+1)
	assert.Equal(t, 1, m.Members("r1"))

	m.Leave(a, "r1", "alice")
	assert.Equal(t, 0, m.Rooms())
	assert.Empty(t, m.Participants("r1"))
}

func TestBroadcastExcludesSender(t *testing.T) {
	m := NewManager(nil)
	a := &fakeConn{id: "a"}
	b := &fakeConn{id: "b"}
	c := &fakeConn{id: "c"}
	other := &fakeConn{id: "other"}
	m.Join(a, "r1", "alice")
	m.Join(b, "r1", "bob")
	m.Join(c, "r1", "carol")
	m.Join(other, "r2", "dave")

	n, err := m.BroadcastEvent("r1", wire.EventEditDelta, json.RawMessage(`{"ops":[{"insert":"x"}]}`), a)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	last := func(f *fakeConn) wire.Message {
		msgs := f.messages(t)
		return msgs[len(msgs)-1]
	}
	assert.Equal(t, wire.EventUpdateUserList, last(a).Event)
	assert.Equal(t, wire.EventEditDelta, last(b).Event)
	assert.Equal(t, `{"ops":[{"insert":"x"}]}`, string(last(c).Data))
	assert.Equal(t, wire.EventUpdateUserList, last(other).Event)
}

func TestBroadcastCountsOnlyAcceptedFrames(t *testing.T) {
	m := NewManager(nil)
	a := &fakeConn{id: "a"}
	b := &fakeConn{id: "b", refuse: true}
	m.Join(a, "r1", "alice")
	m.Join(b, "r1", "bob")

	assert.Equal(t, 1, m.Broadcast("r1", []byte(`{"event":"x","data":null}`), nil))
	assert.Equal(t, 0, m.Broadcast("missing", []byte(`{}`), nil))
}

func TestDuplicateNameSharesOneListing(t *testing.T) {
	m := NewManager(nil)
	a1 := &fakeConn{id: "a1"}
	a2 := &fakeConn{id: "a2"}
	m.Join(a1, "r1", "alice")
	m.Join(a2, "r1", "alice")

	assert.Len(t, a2.lastUserList(t), 1)
	assert.Equal(t, 2, m.Members("r1"))
}

func TestConcurrentJoinLeave(t *testing.T) {
	m := NewManager(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := &fakeConn{id: string(rune('A' + i%26))}
			name := c.id + "-" + string(rune('a'+i%26))
			m.Join(c, "r1", name)
			m.Broadcast("r1", []byte(`{"event":"edit-delta","data":1}`), c)
			m.Leave(c, "r1", name)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, m.Rooms())
}
