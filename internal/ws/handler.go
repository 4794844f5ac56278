package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/DoyleJ11/duelrelay/internal/engine"
	"github.com/DoyleJ11/duelrelay/internal/hub"
	"github.com/DoyleJ11/duelrelay/internal/metrics"
	"github.com/DoyleJ11/duelrelay/pkg/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Options struct {
	OutboxSize     int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
	AllowedOrigins []string
	Metrics        *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.OutboxSize <= 0 {
		o.OutboxSize = 256
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 20
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Discard()
	}
	return o
}

func Handler(h *hub.Hub, opts Options, log *zap.Logger) http.HandlerFunc {
	opts = opts.withDefaults()
	log = log.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.AllowedOrigins,
		})
		if err != nil {
			log.Debug("accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		conn.SetReadLimit(opts.ReadLimit)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sess := newSession(uuid.NewString(), opts.OutboxSize, cancel, log)
		if !h.Send(hub.Connect{SessionID: sess.ID()}) {
			conn.Close(websocket.StatusTryAgainLater, "shutting down")
			return
		}
		defer h.Send(hub.Disconnect{SessionID: sess.ID()})
		sess.log.Info("connected", zap.String("remote", r.RemoteAddr))

		go sess.writePump(ctx, conn, opts)

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					sess.log.Info("closed by peer")
				default:
					sess.log.Info("disconnected", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				reject(sess, opts, types.CodeBadJSON, "bad json")
				continue
			}
			route(h, sess, opts, cm)
		}
	}
}

func route(h *hub.Hub, sess *Session, opts Options, cm types.ClientMessage) {
	if cm.Type == types.MsgJoinGame {
		if cm.RoomID == "" {
			reject(sess, opts, types.CodeMissingRoom, "roomId is required")
			return
		}
		if code := sess.beginJoin(cm.RoomID); code != "" {
			reject(sess, opts, code, "join refused")
			return
		}
		h.Send(hub.Join{RoomID: cm.RoomID, SessionID: sess.ID(), Sink: sess})
		return
	}

	kind, ok := toKind(cm.Type)
	if !ok {
		reject(sess, opts, types.CodeUnknownType, "unknown type")
		return
	}
	if cm.RoomID == "" {
		reject(sess, opts, types.CodeMissingRoom, "roomId is required")
		return
	}
	h.Send(hub.Relay{RoomID: cm.RoomID, SessionID: sess.ID(), Kind: kind, Msg: cm, Sink: sess})
}

func reject(sess *Session, opts Options, code, msg string) {
	opts.Metrics.ProtocolErrors.WithLabelValues(code).Inc()
	sess.Send(types.ErrorMessage(code, msg))
}

func toKind(msgType string) (engine.Kind, bool) {
	switch msgType {
	case types.MsgSyncMap:
		return engine.KindMapSync, true
	case types.MsgSubmitActions:
		return engine.KindActionSubmission, true
	case types.MsgSyncReplay:
		return engine.KindReplaySync, true
	case types.MsgTurnComplete:
		return engine.KindTurnResolution, true
	default:
		return "", false
	}
}
