package room

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DoyleJ11/duelrelay/internal/engine"
	"github.com/DoyleJ11/duelrelay/internal/history"
	"github.com/DoyleJ11/duelrelay/internal/metrics"
	"github.com/DoyleJ11/duelrelay/pkg/types"
	"go.uber.org/zap"
)

// Sink is where a session wants to receive frames. Send must not block; a
// false return means the frame was not queued.
type Sink interface {
	Send(types.ServerMessage) bool
}

type Msg interface{ isRoomMsg() }

type Join struct {
	SessionID string
	Sink      Sink
}

func (Join) isRoomMsg() {}

type Leave struct{ SessionID string }

func (Leave) isRoomMsg() {}

// Relay carries a gameplay message. Sink is the sender, used only for
// protocol error replies.
type Relay struct {
	SessionID string
	Kind      engine.Kind
	Msg       types.ClientMessage
	Sink      Sink
}

func (Relay) isRoomMsg() {}

// Close ends the room regardless of who is in it.
type Close struct{ Reason string }

func (Close) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type View struct {
	State      engine.State
	LastActive time.Time
}

type Options struct {
	Log     *zap.Logger
	Metrics *metrics.Metrics
	History history.Recorder
}

type Room struct {
	id    string
	host  string
	inbox chan Msg
	state engine.State
	sinks map[string]Sink

	lastActive atomic.Int64

	log     *zap.Logger
	metrics *metrics.Metrics
	history history.Recorder

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// New creates the room with hostID already seated and tells the host its
// role. Called by the registry when a join names an unknown room id.
func New(parent context.Context, roomID, hostID string, host Sink, opts Options) *Room {
	ctx, cancel := context.WithCancel(parent)
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Discard()
	}
	if opts.History == nil {
		opts.History = history.Nop{}
	}

	events, state := engine.Create(roomID, hostID)
	l := &Room{
		id:      roomID,
		host:    hostID,
		inbox:   make(chan Msg, 64),
		state:   state,
		sinks:   map[string]Sink{hostID: host},
		log:     opts.Log.Named("room").With(zap.String("room", roomID)),
		metrics: opts.Metrics,
		history: opts.History,
		ctx:     ctx,
		cancel:  cancel,
	}
	l.touch()

	l.metrics.RoomsActive.Inc()
	l.metrics.Joins.WithLabelValues(string(engine.RoleHost)).Inc()
	l.record(history.KindRoomCreated, hostID)
	l.log.Info("room created", zap.String("host", hostID))
	l.dispatch(events, types.ClientMessage{})

	go l.loop()
	return l
}

func (l *Room) ID() string { return l.id }

// Host never changes for the lifetime of a room.
func (l *Room) Host() string { return l.host }

func (l *Room) Done() <-chan struct{} { return l.ctx.Done() }

func (l *Room) LastActive() time.Time { return time.Unix(0, l.lastActive.Load()) }

// Send queues m unless the room has stopped.
func (l *Room) Send(m Msg) bool {
	select {
	case <-l.ctx.Done():
		return false
	default:
	}
	select {
	case l.inbox <- m:
		return true
	case <-l.ctx.Done():
		return false
	}
}

// View asks the room goroutine for a copy of its state.
func (l *Room) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if !l.Send(GetState{Reply: reply}) {
		return View{}, engine.ErrRoomDestroyed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-l.ctx.Done():
		return View{}, engine.ErrRoomDestroyed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (l *Room) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.stop()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.touch()
				l.join(msg)

			case Leave:
				l.touch()
				l.apply(engine.Command{Type: engine.CmdLeave, SessionID: msg.SessionID}, types.ClientMessage{})
				if msg.SessionID != l.host {
					delete(l.sinks, msg.SessionID)
				}

			case Relay:
				l.touch()
				l.relay(msg)

			case Close:
				l.log.Info("closing room", zap.String("reason", msg.Reason))
				l.apply(engine.Command{Type: engine.CmdClose, Reason: msg.Reason}, types.ClientMessage{})

			case GetState:
				msg.Reply <- View{State: l.state, LastActive: l.LastActive()}

			case Shutdown:
				l.stop()
				return
			}

			if l.state.Phase == engine.PhaseDestroyed {
				l.stop()
				return
			}
		}
	}
}

func (l *Room) join(msg Join) {
	events, newState, err := engine.Apply(l.state, engine.Command{Type: engine.CmdJoin, SessionID: msg.SessionID})
	switch {
	case errors.Is(err, engine.ErrRoomFull):
		l.log.Info("room full", zap.String("session", msg.SessionID))
		l.metrics.Joins.WithLabelValues("room_full").Inc()
		msg.Sink.Send(types.ServerMessage{Type: types.MsgRoomFull, RoomID: l.id})
		return
	case err != nil:
		l.log.Info("join rejected", zap.String("session", msg.SessionID), zap.Error(err))
		l.metrics.ProtocolErrors.WithLabelValues(types.CodeAlreadyInRoom).Inc()
		msg.Sink.Send(types.ErrorMessage(types.CodeAlreadyInRoom, err.Error()))
		return
	}

	l.sinks[msg.SessionID] = msg.Sink
	l.state = newState
	l.metrics.Joins.WithLabelValues(string(engine.RoleClient)).Inc()
	l.record(history.KindPeerJoined, msg.SessionID)
	l.log.Info("client joined", zap.String("session", msg.SessionID))
	l.dispatch(events, types.ClientMessage{})
}

func (l *Room) relay(msg Relay) {
	events, _, err := engine.Apply(l.state, engine.Command{Type: engine.CmdRelay, SessionID: msg.SessionID, Kind: msg.Kind})
	if err != nil {
		code := types.CodeRoleMismatch
		if errors.Is(err, engine.ErrNotInRoom) {
			code = types.CodeNotInRoom
		}
		l.log.Debug("relay rejected", zap.String("session", msg.SessionID), zap.String("kind", string(msg.Kind)), zap.Error(err))
		l.metrics.ProtocolErrors.WithLabelValues(code).Inc()
		if msg.Sink != nil {
			msg.Sink.Send(types.ErrorMessage(code, err.Error()))
		}
		return
	}
	l.dispatch(events, msg.Msg)
}

func (l *Room) apply(cmd engine.Command, payload types.ClientMessage) {
	events, newState, err := engine.Apply(l.state, cmd)
	if err != nil {
		l.log.Warn("command failed", zap.String("cmd", string(cmd.Type)), zap.Error(err))
		return
	}
	l.state = newState
	l.dispatch(events, payload)
}

// dispatch turns engine events into frames. Delivery is fire-and-forget.
func (l *Room) dispatch(events []engine.Event, payload types.ClientMessage) {
	for _, e := range events {
		switch e.Type {
		case engine.EvtRoleAssigned:
			l.deliver(e.To, types.ServerMessage{Type: types.MsgRoleAssigned, RoomID: l.id, Role: string(e.Role)})

		case engine.EvtPeerJoined:
			l.deliver(e.To, types.ServerMessage{Type: types.MsgPlayerJoined, RoomID: l.id, PeerID: e.PeerID})

		case engine.EvtRelayed:
			if l.deliver(e.To, types.Forward(payload)) {
				l.metrics.Relayed.WithLabelValues(string(e.Kind)).Inc()
			}

		case engine.EvtRelayDropped:
			// Peer not there yet; the sender is not told.
			l.log.Debug("no counterpart, dropping", zap.String("kind", string(e.Kind)))
			l.metrics.Dropped.WithLabelValues(metrics.DropNoCounterpart).Inc()

		case engine.EvtPlayerLeft:
			l.record(history.KindPlayerLeft, e.PeerID)
			l.log.Info("client left", zap.String("session", e.PeerID))
			l.deliver(e.To, types.ServerMessage{Type: types.MsgPlayerLeft, RoomID: l.id, PeerID: e.PeerID})

		case engine.EvtHostDisconnected:
			l.deliver(e.To, types.ServerMessage{Type: types.MsgHostDisconnected, RoomID: l.id})

		case engine.EvtRoomClosed:
			l.deliver(e.To, types.ServerMessage{Type: types.MsgRoomClosed, RoomID: l.id, Reason: e.Reason})

		case engine.EvtRoomDestroyed:
			l.record(history.KindRoomDestroyed, l.host)
			l.log.Info("room destroyed")
		}
	}
}

func (l *Room) deliver(to string, msg types.ServerMessage) bool {
	sink, ok := l.sinks[to]
	if !ok {
		return false
	}
	if !sink.Send(msg) {
		l.log.Warn("outbox full, dropping", zap.String("session", to), zap.String("type", msg.Type))
		l.metrics.Dropped.WithLabelValues(metrics.DropSlowConsumer).Inc()
		return false
	}
	return true
}

func (l *Room) record(kind history.Kind, sessionID string) {
	l.history.Record(history.Entry{RoomID: l.id, SessionID: sessionID, Kind: kind, At: time.Now()})
}

func (l *Room) touch() { l.lastActive.Store(time.Now().UnixNano()) }

func (l *Room) stop() {
	l.stopOnce.Do(func() {
		clear(l.sinks)
		l.metrics.RoomsActive.Dec()
		l.cancel()
	})
}
