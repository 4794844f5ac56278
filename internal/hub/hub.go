package hub

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/duelrelay/internal/engine"
	"github.com/DoyleJ11/duelrelay/internal/history"
	"github.com/DoyleJ11/duelrelay/internal/metrics"
	"github.com/DoyleJ11/duelrelay/internal/room"
	"github.com/DoyleJ11/duelrelay/pkg/types"
	"go.uber.org/zap"
)

var ErrStopped = errors.New("hub stopped")

type HubMsg interface{ isHubMsg() }

type Connect struct{ SessionID string }

type Disconnect struct{ SessionID string }

type Join struct {
	RoomID    string
	SessionID string
	Sink      room.Sink
}

type Relay struct {
	RoomID    string
	SessionID string
	Kind      engine.Kind
	Msg       types.ClientMessage
	Sink      room.Sink
}

type GetRoom struct {
	RoomID string
	Reply  chan *room.Room
}

// Stats is test and diagnostics only.
type Stats struct {
	Reply chan Counts
}

type Counts struct {
	Rooms    int
	Sessions int
}

type ShutdownHub struct{}

func (Connect) isHubMsg()     {}
func (Disconnect) isHubMsg()  {}
func (Join) isHubMsg()        {}
func (Relay) isHubMsg()       {}
func (GetRoom) isHubMsg()     {}
func (Stats) isHubMsg()       {}
func (ShutdownHub) isHubMsg() {}

type Options struct {
	Log     *zap.Logger
	Metrics *metrics.Metrics
	History history.Recorder

	// IdleTimeout > 0 enables the reaper.
	IdleTimeout  time.Duration
	ReapInterval time.Duration
}

// Hub is the room registry. One goroutine owns the rooms map, so lookup and
// creation for a room id never interleave; everything inside a room is
// serialized by that room's own goroutine.
type Hub struct {
	inbox chan HubMsg
	rooms map[string]*room.Room
	// session id -> room ids it has asked to join
	sessions map[string]map[string]struct{}

	opts Options
	log  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, opts Options) *Hub {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Discard()
	}
	if opts.History == nil {
		opts.History = history.Nop{}
	}

	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		rooms:    make(map[string]*room.Room),
		sessions: make(map[string]map[string]struct{}),
		opts:     opts,
		log:      opts.Log.Named("hub"),
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

// Send queues m unless the hub has stopped.
func (h *Hub) Send(m HubMsg) bool {
	select {
	case <-h.ctx.Done():
		return false
	default:
	}
	select {
	case h.inbox <- m:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Room looks up a room by id. A nil room with a nil error means not found.
func (h *Hub) Room(ctx context.Context, roomID string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if !h.Send(GetRoom{RoomID: roomID, Reply: reply}) {
		return nil, ErrStopped
	}
	select {
	case lb := <-reply:
		return lb, nil
	case <-h.ctx.Done():
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) loop() {
	var reap <-chan time.Time
	if h.opts.IdleTimeout > 0 {
		ticker := time.NewTicker(h.opts.ReapInterval)
		defer ticker.Stop()
		reap = ticker.C
	}

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case now := <-reap:
			h.reap(now)

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Connect:
				if _, ok := h.sessions[msg.SessionID]; !ok {
					h.sessions[msg.SessionID] = map[string]struct{}{}
					h.opts.Metrics.SessionsActive.Inc()
				}

			case Disconnect:
				rooms, ok := h.sessions[msg.SessionID]
				if !ok {
					break
				}
				delete(h.sessions, msg.SessionID)
				h.opts.Metrics.SessionsActive.Dec()
				for roomID := range rooms {
					h.leave(roomID, msg.SessionID)
				}

			case Join:
				h.track(msg.SessionID, msg.RoomID)
				if lb := h.rooms[msg.RoomID]; lb != nil {
					if lb.Send(room.Join{SessionID: msg.SessionID, Sink: msg.Sink}) {
						break
					}
					delete(h.rooms, msg.RoomID)
				}
				h.rooms[msg.RoomID] = room.New(h.ctx, msg.RoomID, msg.SessionID, msg.Sink, room.Options{
					Log:     h.opts.Log,
					Metrics: h.opts.Metrics,
					History: h.opts.History,
				})

			case Relay:
				lb := h.rooms[msg.RoomID]
				if lb == nil {
					h.log.Info("relay for unknown room dropped",
						zap.String("room", msg.RoomID),
						zap.String("session", msg.SessionID),
						zap.String("kind", string(msg.Kind)))
					h.opts.Metrics.Dropped.WithLabelValues(metrics.DropNoRoom).Inc()
					break
				}
				lb.Send(room.Relay{SessionID: msg.SessionID, Kind: msg.Kind, Msg: msg.Msg, Sink: msg.Sink})

			case GetRoom:
				msg.Reply <- h.rooms[msg.RoomID] // May be nil

			case Stats:
				msg.Reply <- Counts{Rooms: len(h.rooms), Sessions: len(h.sessions)}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) track(sessionID, roomID string) {
	rooms, ok := h.sessions[sessionID]
	if !ok {
		rooms = map[string]struct{}{}
		h.sessions[sessionID] = rooms
		h.opts.Metrics.SessionsActive.Inc()
	}
	rooms[roomID] = struct{}{}
}

// leave removes the registry entry before the room hears about it when the
// leaver is the host, so no later join can reach a room that is going away.
func (h *Hub) leave(roomID, sessionID string) {
	lb := h.rooms[roomID]
	if lb == nil {
		return
	}
	if lb.Host() == sessionID {
		delete(h.rooms, roomID)
	}
	lb.Send(room.Leave{SessionID: sessionID})
}

func (h *Hub) reap(now time.Time) {
	for id, lb := range h.rooms {
		idle := now.Sub(lb.LastActive())
		if idle < h.opts.IdleTimeout {
			continue
		}
		h.log.Info("reaping idle room", zap.String("room", id), zap.Duration("idle", idle))
		delete(h.rooms, id)
		lb.Send(room.Close{Reason: "idle"})
		h.opts.Metrics.RoomsReaped.Inc()
	}
}

func (h *Hub) shutdown() {
	for _, lb := range h.rooms {
		lb.Send(room.Shutdown{})
	}
	clear(h.rooms)
	clear(h.sessions)
	h.opts.Metrics.SessionsActive.Set(0)
	h.cancel()
}
