// Command peer plays a scripted game against the relay. It is a smoke test
// for a deployed relay: run one instance per role with the same --room.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/duelrelay/internal/logging"
	"github.com/DoyleJ11/duelrelay/internal/peer"
	"github.com/DoyleJ11/duelrelay/pkg/types"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	url := flag.String("url", "ws://localhost:3000/ws", "relay websocket url")
	roomID := flag.StringP("room", "r", "", "room id to join")
	turns := flag.IntP("turns", "n", 3, "turns to play before leaving")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	if *roomID == "" {
		fmt.Fprintln(os.Stderr, "--room is required")
		os.Exit(2)
	}
	log, err := logging.New(*level, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(*url, *roomID, *turns, log); err != nil {
		log.Error("peer stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(url, roomID string, turns int, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	conn, err := peer.Dial(dialCtx, url)
	cancel()
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	game := newDemoGame()
	m := peer.New(roomID, game, conn, log)

	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return peer.Run(gctx, conn, m) })
	g.Go(func() error {
		defer cancelRun()
		return play(gctx, m, game, turns, log)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// play submits one batch per turn until turns have resolved.
func play(ctx context.Context, m *peer.Machine, game *demoGame, turns int, log *zap.Logger) error {
	for turn := 0; turn < turns; turn++ {
		if err := waitPlaying(ctx, game); err != nil {
			return err
		}
		batch, _ := json.Marshal([]string{fmt.Sprintf("move-%d", turn)})

		if h, err := m.AsHost(); err == nil {
			if err := h.Submit(ctx, batch); err != nil {
				return err
			}
		} else if c, err := m.AsClient(); err == nil {
			if err := c.Submit(ctx, batch); err != nil {
				return err
			}
		}

		select {
		case <-game.turnDone:
			log.Info("turn done", zap.Int("turn", turn+1))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func waitPlaying(ctx context.Context, game *demoGame) error {
	select {
	case <-game.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// demoGame counts turns; its state is just the turn number.
type demoGame struct {
	turn     int
	ready    chan struct{}
	turnDone chan struct{}
}

func newDemoGame() *demoGame {
	return &demoGame{ready: make(chan struct{}), turnDone: make(chan struct{}, 1)}
}

func (g *demoGame) markReady() {
	select {
	case <-g.ready:
	default:
		close(g.ready)
	}
}

func (g *demoGame) Generate() error {
	g.markReady()
	return nil
}

func (g *demoGame) Snapshot() (json.RawMessage, json.RawMessage, error) {
	state, err := json.Marshal(map[string]int{"turn": g.turn})
	return state, json.RawMessage(`[]`), err
}

func (g *demoGame) Restore(mapState, _ json.RawMessage) error {
	var s struct {
		Turn int `json:"turn"`
	}
	if err := json.Unmarshal(mapState, &s); err != nil {
		return err
	}
	g.turn = s.Turn
	g.markReady()
	return nil
}

func (g *demoGame) Resolve(hostActions, clientActions json.RawMessage) (peer.Resolution, error) {
	g.turn++
	state, err := json.Marshal(map[string]int{"turn": g.turn})
	if err != nil {
		return peer.Resolution{}, err
	}
	g.signal()
	return peer.Resolution{
		Replay: []types.ReplayAction{
			{ActorID: "host", Action: hostActions},
			{ActorID: "client", Action: clientActions},
		},
		NewState:  state,
		BattleLog: json.RawMessage(`[]`),
	}, nil
}

func (g *demoGame) Replay([]types.ReplayAction) error { return nil }

func (g *demoGame) ApplyTurn(newState, _ json.RawMessage) error {
	if err := g.Restore(newState, nil); err != nil {
		return err
	}
	g.signal()
	return nil
}

func (g *demoGame) signal() {
	select {
	case g.turnDone <- struct{}{}:
	default:
	}
}
