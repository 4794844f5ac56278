// Package peer is the browser-side half of the protocol: it joins a room,
// learns its role, and drives game setup and the turn loop from the frames
// the relay forwards. Game rules stay behind the Game interface.
package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/DoyleJ11/duelrelay/pkg/types"
	"go.uber.org/zap"
)

var (
	ErrWrongRole    = errors.New("operation not available for this role")
	ErrNotPlaying   = errors.New("game is not in progress")
	ErrAwaitingTurn = errors.New("actions already submitted for this turn")
	ErrRoomFull     = errors.New("room is full")
	ErrUnexpected   = errors.New("unexpected message for current state")
)

type State string

const (
	StateConnecting  State = "connecting"
	StateRolePending State = "role_pending"
	StateHostSetup   State = "host_setup"
	StateClientWait  State = "client_wait"
	StatePlaying     State = "playing"
	StateClosed      State = "closed"
)

// Transport carries frames to the relay. Implementations must preserve the
// order of calls.
type Transport interface {
	Send(ctx context.Context, m types.ClientMessage) error
}

// Resolution is what the host's game logic produces for one turn.
type Resolution struct {
	Replay    []types.ReplayAction
	NewState  json.RawMessage
	BattleLog json.RawMessage
}

// Game is the local game state. Snapshot and Restore double as the accessor
// pair external tooling uses to inspect or edit it.
type Game interface {
	Generate() error
	Snapshot() (mapState, playersState json.RawMessage, err error)
	Restore(mapState, playersState json.RawMessage) error
	Resolve(hostActions, clientActions json.RawMessage) (Resolution, error)
	Replay(actions []types.ReplayAction) error
	ApplyTurn(newState, battleLog json.RawMessage) error
}

type Machine struct {
	roomID string
	game   Game
	tr     Transport
	log    *zap.Logger

	mu     sync.Mutex
	state  State
	host   *Host
	client *Client
}

func New(roomID string, game Game, tr Transport, log *zap.Logger) *Machine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Machine{
		roomID: roomID,
		game:   game,
		tr:     tr,
		log:    log.Named("peer").With(zap.String("room", roomID)),
		state:  StateConnecting,
	}
}

func (m *Machine) RoomID() string { return m.roomID }

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start asks the relay for a seat. Call once the transport is connected.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnecting {
		return fmt.Errorf("%w: start in %s", ErrUnexpected, m.state)
	}
	if err := m.send(ctx, types.ClientMessage{Type: types.MsgJoinGame}); err != nil {
		return err
	}
	m.state = StateRolePending
	return nil
}

// AsHost returns the host-only operations, or ErrWrongRole.
func (m *Machine) AsHost() (*Host, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.host == nil {
		return nil, ErrWrongRole
	}
	return m.host, nil
}

// AsClient returns the client-only operations, or ErrWrongRole.
func (m *Machine) AsClient() (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil, ErrWrongRole
	}
	return m.client, nil
}

// Handle applies one frame from the relay.
func (m *Machine) Handle(ctx context.Context, msg types.ServerMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch msg.Type {
	case types.MsgRoleAssigned:
		return m.onRole(msg.Role)

	case types.MsgRoomFull:
		m.log.Warn("room full")
		m.state = StateClosed
		return ErrRoomFull

	case types.MsgHostDisconnected, types.MsgRoomClosed:
		m.log.Info("room gone", zap.String("type", msg.Type), zap.String("reason", msg.Reason))
		m.state = StateClosed
		return nil

	case types.MsgError:
		m.log.Warn("relay error", zap.String("code", msg.Code), zap.String("error", msg.Error))
		return nil
	}

	switch {
	case m.host != nil:
		return m.host.handle(ctx, msg)
	case m.client != nil:
		return m.client.handle(ctx, msg)
	default:
		m.log.Debug("ignoring frame before role", zap.String("type", msg.Type))
		return nil
	}
}

func (m *Machine) onRole(role string) error {
	if m.state != StateRolePending {
		return fmt.Errorf("%w: role_assigned in %s", ErrUnexpected, m.state)
	}
	switch role {
	case types.RoleHost:
		m.state = StateHostSetup
		if err := m.game.Generate(); err != nil {
			return fmt.Errorf("generate: %w", err)
		}
		m.host = &Host{m: m}
		// The host renders right away; the map waits for a peer.
		m.state = StatePlaying
	case types.RoleClient:
		m.client = &Client{m: m}
		m.state = StateClientWait
	default:
		return fmt.Errorf("%w: role %q", ErrUnexpected, role)
	}
	m.log.Info("role assigned", zap.String("role", role))
	return nil
}

// send stamps the room id. Callers hold mu so frames leave in order.
func (m *Machine) send(ctx context.Context, msg types.ClientMessage) error {
	msg.RoomID = m.roomID
	if err := m.tr.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}
