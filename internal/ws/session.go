package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/DoyleJ11/duelrelay/pkg/types"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

type joinStatus int

const (
	statusIdle joinStatus = iota
	statusJoining
	statusSeated
)

// Session is one websocket connection. It is the room.Sink for that
// connection: rooms push frames into out and a single writer drains it.
type Session struct {
	id     string
	out    chan types.ServerMessage
	cancel context.CancelFunc
	log    *zap.Logger

	mu     sync.Mutex
	roomID string
	status joinStatus
}

func newSession(id string, outbox int, cancel context.CancelFunc, log *zap.Logger) *Session {
	return &Session{
		id:     id,
		out:    make(chan types.ServerMessage, outbox),
		cancel: cancel,
		log:    log.With(zap.String("session", id)),
	}
}

func (s *Session) ID() string { return s.id }

// Send never blocks. A full outbox means the peer stopped reading; the
// connection is dropped and the normal disconnect path takes over.
func (s *Session) Send(m types.ServerMessage) bool {
	s.observe(m)
	select {
	case s.out <- m:
		return true
	default:
		s.log.Warn("outbox full, disconnecting", zap.String("type", m.Type))
		s.cancel()
		return false
	}
}

// observe tracks room membership from what the relay tells this session.
func (s *Session) observe(m types.ServerMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch m.Type {
	case types.MsgRoleAssigned:
		s.status = statusSeated
	case types.MsgRoomFull:
		s.status, s.roomID = statusIdle, ""
	case types.MsgHostDisconnected, types.MsgRoomClosed:
		if m.RoomID == s.roomID {
			s.status, s.roomID = statusIdle, ""
		}
	}
}

// beginJoin returns an error code when the session may not join right now.
// A seated session never moves to another room.
func (s *Session) beginJoin(roomID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case statusJoining:
		return types.CodeJoinPending
	case statusSeated:
		return types.CodeAlreadyInRoom
	}
	s.status, s.roomID = statusJoining, roomID
	return ""
}

func (s *Session) writePump(ctx context.Context, conn *websocket.Conn, opts Options) {
	defer s.cancel()

	var ping <-chan time.Time
	if opts.PingInterval > 0 {
		ticker := time.NewTicker(opts.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case m := <-s.out:
			payload, err := json.Marshal(m)
			if err != nil {
				s.log.Error("marshal frame", zap.String("type", m.Type), zap.Error(err))
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, opts.WriteTimeout)
			err = conn.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				s.log.Debug("write failed", zap.Error(err))
				return
			}

		case <-ping:
			pctx, cancel := context.WithTimeout(ctx, opts.WriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				s.log.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}
