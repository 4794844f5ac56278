package peer

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DoyleJ11/duelrelay/internal/httpapi"
	"github.com/DoyleJ11/duelrelay/internal/hub"
	"github.com/DoyleJ11/duelrelay/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func startRelay(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := zaptest.NewLogger(t)
	h := hub.NewHub(ctx, hub.Options{Log: log})
	srv := httptest.NewServer(httpapi.SetupRoutes(httpapi.Deps{Hub: h, Log: log}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

type running struct {
	m    *Machine
	conn *Conn
	game *fakeGame
	done chan error
}

func runPeer(t *testing.T, ctx context.Context, url string) *running {
	t.Helper()
	dialCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	conn, err := Dial(dialCtx, url)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	g := &fakeGame{}
	r := &running{m: New("R1", g, conn, zaptest.NewLogger(t)), conn: conn, game: g, done: make(chan error, 1)}
	go func() { r.done <- Run(ctx, conn, r.m) }()
	return r
}

func TestRun_FullTurnOverRelay(t *testing.T) {
	url := startRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host := runPeer(t, ctx, url)
	require.Eventually(t, func() bool { return host.m.State() == StatePlaying }, 2*time.Second, 10*time.Millisecond)
	host.game.mu.Lock()
	host.game.resolution = Resolution{
		Replay:    []types.ReplayAction{{ActorID: "2", Action: json.RawMessage(`"attack"`)}},
		NewState:  json.RawMessage(`{"turn":1}`),
		BattleLog: json.RawMessage(`["B hits A"]`),
	}
	host.game.mu.Unlock()

	client := runPeer(t, ctx, url)
	require.Eventually(t, func() bool { return client.m.State() == StatePlaying }, 2*time.Second, 10*time.Millisecond)

	h, err := host.m.AsHost()
	require.NoError(t, err)
	c, err := client.m.AsClient()
	require.NoError(t, err)

	require.NoError(t, c.Submit(ctx, json.RawMessage(`["attack"]`)))
	require.NoError(t, h.Submit(ctx, json.RawMessage(`["defend"]`)))

	require.Eventually(t, func() bool { return c.Turn() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, c.Awaiting())
	assert.Equal(t, 1, h.Turn())

	client.game.mu.Lock()
	assert.Equal(t, []string{`{"tiles":[1,2]}`}, client.game.restored)
	require.Len(t, client.game.replayed, 1)
	assert.Equal(t, "2", client.game.replayed[0][0].ActorID)
	assert.Equal(t, []string{`{"turn":1}`}, client.game.applied)
	client.game.mu.Unlock()

	host.game.mu.Lock()
	assert.Equal(t, [][2]string{{`["defend"]`, `["attack"]`}}, host.game.resolved)
	host.game.mu.Unlock()

	// Client drops: the host keeps playing and waits for the next peer.
	client.conn.Close()
	require.Eventually(t, func() bool { return h.PeerID() == "" }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, StatePlaying, host.m.State())
}

func TestRun_ReturnsWhenHostLeaves(t *testing.T) {
	url := startRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host := runPeer(t, ctx, url)
	require.Eventually(t, func() bool { return host.m.State() == StatePlaying }, 2*time.Second, 10*time.Millisecond)
	client := runPeer(t, ctx, url)
	require.Eventually(t, func() bool { return client.m.State() == StatePlaying }, 2*time.Second, 10*time.Millisecond)

	host.conn.Close()

	select {
	case err := <-client.done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("client Run did not return")
	}
	assert.Equal(t, StateClosed, client.m.State())
}

func TestRun_RoomFull(t *testing.T) {
	url := startRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host := runPeer(t, ctx, url)
	require.Eventually(t, func() bool { return host.m.State() == StatePlaying }, 2*time.Second, 10*time.Millisecond)
	client := runPeer(t, ctx, url)
	require.Eventually(t, func() bool { return client.m.State() == StatePlaying }, 2*time.Second, 10*time.Millisecond)

	third := runPeer(t, ctx, url)
	select {
	case err := <-third.done:
		assert.ErrorIs(t, err, ErrRoomFull)
	case <-time.After(2 * time.Second):
		t.Fatal("third Run did not return")
	}
}
