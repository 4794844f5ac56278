package peer

import (
	"context"
	"errors"

	"github.com/DoyleJ11/duelrelay/pkg/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// Conn is a websocket link to the relay.
type Conn struct {
	ws *websocket.Conn
}

func Dial(ctx context.Context, url string) (*Conn, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c.SetReadLimit(1 << 20)
	return &Conn{ws: c}, nil
}

func (c *Conn) Send(ctx context.Context, m types.ClientMessage) error {
	return wsjson.Write(ctx, c.ws, m)
}

func (c *Conn) Recv(ctx context.Context) (types.ServerMessage, error) {
	var m types.ServerMessage
	err := wsjson.Read(ctx, c.ws, &m)
	return m, err
}

func (c *Conn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "bye")
}

type Receiver interface {
	Recv(ctx context.Context) (types.ServerMessage, error)
}

// Run joins the room and feeds frames into m until the room is gone, the
// room is full, or rx fails. Errors from game callbacks are logged and the
// loop keeps going.
func Run(ctx context.Context, rx Receiver, m *Machine) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	for {
		msg, err := rx.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := m.Handle(ctx, msg); err != nil {
			if errors.Is(err, ErrRoomFull) {
				return err
			}
			m.log.Warn("handle failed", zap.String("type", msg.Type), zap.Error(err))
		}
		if m.State() == StateClosed {
			return nil
		}
	}
}
