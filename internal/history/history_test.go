package history

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestToRow(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	row := toRow(Entry{RoomID: "R1", SessionID: "A", Kind: KindPeerJoined, At: at})

	assert.Equal(t, RoomEvent{RoomID: "R1", SessionID: "A", Kind: "peer_joined", CreatedAt: at}, row)
	assert.False(t, toRow(Entry{RoomID: "R1"}).CreatedAt.IsZero(), "zero time is stamped")
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	assert.NotPanics(t, func() { r.Record(Entry{RoomID: "R1"}) })
}

func TestStore_Postgres(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	s, err := Open(dsn, zaptest.NewLogger(t))
	require.NoError(t, err)

	room := "test-" + uuid.NewString()
	s.Record(Entry{RoomID: room, SessionID: "A", Kind: KindRoomCreated})
	s.Record(Entry{RoomID: room, SessionID: "B", Kind: KindPeerJoined})

	require.Eventually(t, func() bool {
		rows, err := s.Recent(context.Background(), room, 10)
		return err == nil && len(rows) == 2
	}, 5*time.Second, 50*time.Millisecond)

	rows, err := s.Recent(context.Background(), room, 10)
	require.NoError(t, err)
	assert.Equal(t, "peer_joined", rows[0].Kind)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Close(), ErrClosed)
	s.Record(Entry{RoomID: room}) // after close: ignored
}
