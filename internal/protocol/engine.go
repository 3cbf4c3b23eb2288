// Package protocol implements the per-connection synchronization state machine.
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/gogotex/gogotex/backend/go-collab/internal/config"
	"github.com/gogotex/gogotex/backend/go-collab/internal/document"
	"github.com/gogotex/gogotex/backend/go-collab/internal/presence"
	"github.com/gogotex/gogotex/backend/go-collab/internal/room"
	"github.com/gogotex/gogotex/backend/go-collab/internal/wire"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/logger"
	"github.com/gogotex/gogotex/backend/go-collab/pkg/metrics"
	"golang.org/x/time/rate"
)

// State of one connection.
type State int

const (
	Unjoined State = iota
	Joined
	Closed
)

func (s State) String() string {
	switch s {
	case Unjoined:
		return "unjoined"
	case Joined:
		return "joined"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Drop reasons reported in collab_events_dropped_total.
const (
	dropMalformed     = "malformed"
	dropNotJoined     = "not_joined"
	dropAlreadyJoined = "already_joined"
	dropClosed        = "closed"
	dropRoomMismatch  = "room_mismatch"
	dropUnknown       = "unknown_event"
	dropRateLimited   = "rate_limited"
)

// Rooms is the part of room.Manager the engine needs.
type Rooms interface {
	Join(c room.Conn, roomID, name string) []presence.Participant
	Leave(c room.Conn, roomID, name string)
	BroadcastEvent(roomID, event string, data json.RawMessage, exclude room.Conn) (int, error)
}

// Relay forwards an edit operation from one connection to the rest of its
// room. Implementations may transform operations; the default does not.
type Relay interface {
	Relay(roomID string, from room.Conn, op json.RawMessage) error
}

// PassthroughRelay broadcasts operations byte-for-byte to every other member.
type PassthroughRelay struct {
	Rooms Rooms
}

func (p PassthroughRelay) Relay(roomID string, from room.Conn, op json.RawMessage) error {
	_, err := p.Rooms.BroadcastEvent(roomID, wire.EventEditDelta, op, from)
	return err
}

type Options struct {
	// LoadOnCreate also sends load-document to the participant whose join
	// created the room's document.
	LoadOnCreate   bool
	InitialContent json.RawMessage
	DefaultTitle   string
	// EventRPS and EventBurst limit inbound events per connection; zero
	// disables the limit.
	EventRPS   float64
	EventBurst int
	// Relay defaults to PassthroughRelay over the engine's Rooms.
	Relay Relay
}

// DefaultInitialContent is the empty editor state stored for new documents.
var DefaultInitialContent = json.RawMessage(`{"ops":[]}`)

// OptionsFromConfig maps session configuration onto engine options.
func OptionsFromConfig(c config.SessionConfig) Options {
	o := Options{
		LoadOnCreate: c.LoadOnCreate,
		DefaultTitle: c.DefaultTitle,
		EventRPS:     c.EventRPS,
		EventBurst:   c.EventBurst,
	}
	if c.InitialContent != "" && json.Valid([]byte(c.InitialContent)) {
		o.InitialContent = json.RawMessage(c.InitialContent)
	} else if c.InitialContent != "" {
		logger.Warnf("COLLAB_INITIAL_CONTENT is not valid JSON, using %s", DefaultInitialContent)
	}
	return o
}

// Engine drives one connection through Unjoined -> Joined -> Closed. Handle
// is called sequentially by the connection's read loop.
type Engine struct {
	conn    room.Conn
	rooms   Rooms
	store   document.Store
	relay   Relay
	opts    Options
	limiter *rate.Limiter

	mu     sync.Mutex
	state  State
	roomID string
	name   string
}

func NewEngine(conn room.Conn, rooms Rooms, store document.Store, opts Options) *Engine {
	if len(opts.InitialContent) == 0 {
		opts.InitialContent = DefaultInitialContent
	}
	if opts.DefaultTitle == "" {
		opts.DefaultTitle = document.DefaultTitle
	}
	e := &Engine{conn: conn, rooms: rooms, store: store, relay: opts.Relay, opts: opts}
	if e.relay == nil {
		e.relay = PassthroughRelay{Rooms: rooms}
	}
	if opts.EventRPS > 0 {
		burst := opts.EventBurst
		if burst <= 0 {
			burst = int(opts.EventRPS) + 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(opts.EventRPS), burst)
	}
	return e
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Room returns the joined room and participant name, empty while Unjoined.
func (e *Engine) Room() (roomID, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.roomID, e.name
}

// Handle dispatches one inbound message. Protocol violations are dropped.
func (e *Engine) Handle(ctx context.Context, msg wire.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !known(msg.Event) {
		metrics.EventsReceived.WithLabelValues("unknown").Inc()
		e.drop(msg.Event, dropUnknown)
		return
	}
	metrics.EventsReceived.WithLabelValues(msg.Event).Inc()

	if e.state == Closed {
		e.drop(msg.Event, dropClosed)
		return
	}
	if e.limiter != nil && !e.limiter.Allow() {
		e.drop(msg.Event, dropRateLimited)
		return
	}
	if msg.Event == wire.EventJoin {
		e.join(ctx, msg)
		return
	}
	if e.state != Joined {
		e.drop(msg.Event, dropNotJoined)
		return
	}

	switch msg.Event {
	case wire.EventEditDelta:
		e.editDelta(msg)
	case wire.EventSave:
		e.save(ctx, msg)
	case wire.EventTitleUpdate:
		e.titleUpdate(ctx, msg)
	case wire.EventGetDocument:
		e.getDocument(ctx)
	case wire.EventLeave:
		e.leave()
	}
}

// Close moves the engine to Closed, leaving the room when joined. It is safe
// to call more than once.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.leave()
}

func (e *Engine) leave() {
	if e.state == Joined {
		e.rooms.Leave(e.conn, e.roomID, e.name)
	}
	e.state = Closed
}

func (e *Engine) join(ctx context.Context, msg wire.Message) {
	if e.state != Unjoined {
		e.drop(msg.Event, dropAlreadyJoined)
		return
	}
	var req wire.JoinRequest
	if err := msg.Bind(&req); err != nil {
		e.drop(msg.Event, dropMalformed)
		return
	}
	name := req.DisplayName()
	if name == "" || req.RoomID == "" {
		e.drop(msg.Event, dropMalformed)
		return
	}

	e.rooms.Join(e.conn, req.RoomID, name)
	e.state = Joined
	e.roomID = req.RoomID
	e.name = name
	e.bootstrap(ctx)
}

// bootstrap loads or creates the room's document after a join. Store
// failures are logged; the connection stays joined without a load.
func (e *Engine) bootstrap(ctx context.Context) {
	d, err := e.store.Get(ctx, e.roomID)
	if err == nil {
		e.sendLoad(d.Content)
		return
	}
	if !errors.Is(err, document.ErrNotFound) {
		e.storeFailed("get", err)
		return
	}

	created, err := e.store.Create(ctx, &document.Document{
		ID:      e.roomID,
		RoomID:  e.roomID,
		Title:   e.opts.DefaultTitle,
		Content: e.opts.InitialContent,
		OwnerID: e.name,
	})
	switch {
	case err == nil:
		// content differs from the initial state when it was restored from
		// the snapshot archive
		if e.opts.LoadOnCreate || !document.SameContent(created.Content, e.opts.InitialContent) {
			e.sendLoad(created.Content)
		}
	case errors.Is(err, document.ErrAlreadyExists):
		// another joiner created it first
		if d, err := e.store.Get(ctx, e.roomID); err == nil {
			e.sendLoad(d.Content)
		} else {
			e.storeFailed("get", err)
		}
	default:
		e.storeFailed("create", err)
	}
}

func (e *Engine) editDelta(msg wire.Message) {
	if len(msg.Data) == 0 {
		e.drop(msg.Event, dropMalformed)
		return
	}
	if err := e.relay.Relay(e.roomID, e.conn, msg.Data); err != nil {
		e.drop(msg.Event, dropMalformed)
	}
}

func (e *Engine) save(ctx context.Context, msg wire.Message) {
	if len(msg.Data) == 0 || !json.Valid(msg.Data) {
		e.drop(msg.Event, dropMalformed)
		return
	}
	if _, err := e.store.UpdateContent(ctx, e.roomID, msg.Data); err != nil {
		e.storeFailed("update_content", err)
		return
	}
	if _, err := e.rooms.BroadcastEvent(e.roomID, wire.EventApplySavedState, msg.Data, e.conn); err != nil {
		logger.Errorf("broadcast saved state for room %s: %v", e.roomID, err)
	}
}

func (e *Engine) titleUpdate(ctx context.Context, msg wire.Message) {
	var req wire.TitleUpdate
	if err := msg.Bind(&req); err != nil {
		e.drop(msg.Event, dropMalformed)
		return
	}
	// an omitted roomId means the joined room
	if req.RoomID != "" && req.RoomID != e.roomID {
		e.drop(msg.Event, dropRoomMismatch)
		return
	}
	if _, err := e.store.UpdateTitle(ctx, e.roomID, req.NewTitle); err != nil {
		e.storeFailed("update_title", err)
		return
	}
	data, err := json.Marshal(req.NewTitle)
	if err != nil {
		logger.Errorf("encode title for room %s: %v", e.roomID, err)
		return
	}
	if _, err := e.rooms.BroadcastEvent(e.roomID, wire.EventTitleChanged, data, nil); err != nil {
		logger.Errorf("broadcast title for room %s: %v", e.roomID, err)
	}
}

func (e *Engine) getDocument(ctx context.Context) {
	d, err := e.store.Get(ctx, e.roomID)
	if err != nil {
		if !errors.Is(err, document.ErrNotFound) {
			e.storeFailed("get", err)
		}
		return
	}
	e.sendLoad(d.Content)
}

func (e *Engine) sendLoad(content json.RawMessage) {
	if len(content) == 0 {
		content = e.opts.InitialContent
	}
	frame, err := wire.EncodeRaw(wire.EventLoadDocument, content)
	if err != nil {
		logger.Errorf("encode stored document for room %s: %v", e.roomID, err)
		return
	}
	if e.conn.Send(frame) {
		metrics.FramesBroadcast.WithLabelValues(wire.EventLoadDocument).Inc()
	}
}

func (e *Engine) drop(event, reason string) {
	metrics.EventsDropped.WithLabelValues(reason).Inc()
	logger.WithFields(logger.Fields{
		"conn":   e.conn.ID(),
		"event":  event,
		"reason": reason,
		"state":  e.state.String(),
	}).Debug("dropped event")
}

func (e *Engine) storeFailed(op string, err error) {
	logger.WithFields(logger.Fields{
		"conn": e.conn.ID(),
		"room": e.roomID,
		"op":   op,
	}).Errorf("document store: %v", err)
}

func known(event string) bool {
	switch event {
	case wire.EventJoin, wire.EventEditDelta, wire.EventSave, wire.EventTitleUpdate,
		wire.EventGetDocument, wire.EventLeave:
		return true
	}
	return false
}
