package peer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DoyleJ11/duelrelay/pkg/types"
	"go.uber.org/zap"
)

// Host owns the ground truth. It resolves a turn once its own batch and the
// client's batch are both in and a client is seated.
type Host struct {
	m *Machine

	peerID string
	local  json.RawMessage
	remote json.RawMessage
	turn   int
}

func (h *Host) PeerID() string {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	return h.peerID
}

// Turn counts resolved turns.
func (h *Host) Turn() int {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	return h.turn
}

// SyncMap pushes a fresh snapshot to the client. Without a peer the relay
// drops it.
func (h *Host) SyncMap(ctx context.Context) error {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	return h.syncMap(ctx)
}

// Submit records the host's own batch for the current turn.
func (h *Host) Submit(ctx context.Context, actions json.RawMessage) error {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	if h.m.state != StatePlaying {
		return ErrNotPlaying
	}
	if h.local != nil {
		return ErrAwaitingTurn
	}
	h.local = actions
	return h.tryResolve(ctx)
}

func (h *Host) handle(ctx context.Context, msg types.ServerMessage) error {
	switch msg.Type {
	case types.MsgPlayerJoined:
		h.peerID = msg.PeerID
		h.remote = nil
		h.m.log.Info("peer joined", zap.String("peer", msg.PeerID))
		return h.syncMap(ctx)

	case types.MsgPlayerLeft:
		h.m.log.Info("peer left", zap.String("peer", msg.PeerID))
		h.peerID = ""
		h.remote = nil
		return nil

	case types.MsgClientActions:
		if h.remote != nil {
			h.m.log.Warn("client batch replaced before resolution")
		}
		h.remote = msg.Actions
		if h.remote == nil {
			h.remote = json.RawMessage("null")
		}
		return h.tryResolve(ctx)

	default:
		h.m.log.Debug("host ignoring frame", zap.String("type", msg.Type))
		return nil
	}
}

func (h *Host) syncMap(ctx context.Context) error {
	mapState, playersState, err := h.m.game.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return h.m.send(ctx, types.ClientMessage{
		Type:         types.MsgSyncMap,
		MapState:     mapState,
		PlayersState: playersState,
	})
}

func (h *Host) tryResolve(ctx context.Context) error {
	if h.peerID == "" || h.local == nil || h.remote == nil {
		return nil
	}
	res, err := h.m.game.Resolve(h.local, h.remote)
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}
	h.local, h.remote = nil, nil
	h.turn++

	if len(res.Replay) > 0 {
		replay, err := json.Marshal(res.Replay)
		if err != nil {
			return fmt.Errorf("encode replay: %w", err)
		}
		if err := h.m.send(ctx, types.ClientMessage{Type: types.MsgSyncReplay, ReplayActions: replay}); err != nil {
			return err
		}
	}
	h.m.log.Debug("turn resolved", zap.Int("turn", h.turn))
	return h.m.send(ctx, types.ClientMessage{
		Type:      types.MsgTurnComplete,
		NewState:  res.NewState,
		BattleLog: res.BattleLog,
	})
}

// Client renders what the host sends and submits its own batches.
type Client struct {
	m *Machine

	awaiting bool
	turn     int
}

// Awaiting reports whether a batch was sent and the turn is unresolved.
func (c *Client) Awaiting() bool {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	return c.awaiting
}

func (c *Client) Turn() int {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	return c.turn
}

func (c *Client) Submit(ctx context.Context, actions json.RawMessage) error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if c.m.state != StatePlaying {
		return ErrNotPlaying
	}
	if c.awaiting {
		return ErrAwaitingTurn
	}
	if err := c.m.send(ctx, types.ClientMessage{Type: types.MsgSubmitActions, Actions: actions}); err != nil {
		return err
	}
	c.awaiting = true
	return nil
}

func (c *Client) handle(_ context.Context, msg types.ServerMessage) error {
	switch msg.Type {
	case types.MsgSyncMap:
		if err := c.m.game.Restore(msg.MapState, msg.PlayersState); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		// A resync starts a fresh turn.
		c.awaiting = false
		c.m.state = StatePlaying
		c.m.log.Info("map synced")
		return nil

	case types.MsgSyncReplay:
		if c.m.state != StatePlaying {
			return fmt.Errorf("%w: sync_replay in %s", ErrUnexpected, c.m.state)
		}
		var actions []types.ReplayAction
		if len(msg.ReplayActions) > 0 {
			if err := json.Unmarshal(msg.ReplayActions, &actions); err != nil {
				return fmt.Errorf("decode replay: %w", err)
			}
		}
		return c.m.game.Replay(actions)

	case types.MsgTurnUpdate:
		if c.m.state != StatePlaying {
			return fmt.Errorf("%w: turn_update in %s", ErrUnexpected, c.m.state)
		}
		if err := c.m.game.ApplyTurn(msg.NewState, msg.BattleLog); err != nil {
			return fmt.Errorf("apply turn: %w", err)
		}
		c.awaiting = false
		c.turn++
		return nil

	default:
		c.m.log.Debug("client ignoring frame", zap.String("type", msg.Type))
		return nil
	}
}
