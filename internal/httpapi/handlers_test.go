package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DoyleJ11/duelrelay/internal/history"
	"github.com/DoyleJ11/duelrelay/internal/hub"
	"github.com/DoyleJ11/duelrelay/internal/metrics"
	"github.com/DoyleJ11/duelrelay/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type chanSink chan types.ServerMessage

func (c chanSink) Send(m types.ServerMessage) bool {
	select {
	case c <- m:
		return true
	default:
		return false
	}
}

type fakeHistory struct {
	rows []history.RoomEvent
	err  error
}

func (f fakeHistory) Recent(_ context.Context, roomID string, _ int) ([]history.RoomEvent, error) {
	return f.rows, f.err
}

func newTestRouter(t *testing.T, d Deps) (http.Handler, *hub.Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := prometheus.NewRegistry()
	d.Log = zaptest.NewLogger(t)
	d.Hub = hub.NewHub(ctx, hub.Options{Log: d.Log, Metrics: metrics.New(reg)})
	d.Gatherer = reg
	return SetupRoutes(d), d.Hub
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter(t, Deps{})
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/healthz").Code)
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode()
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.Equal(t, strings.ToUpper(code), code)
}

func TestSuggestRoom(t *testing.T) {
	r, _ := newTestRouter(t, Deps{})
	rec := do(t, r, http.MethodPost, "/rooms")
	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		RoomID string `json:"roomId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.RoomID, 6)

	// Suggesting does not create.
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/rooms/"+body.RoomID).Code)
}

func TestGetRoom(t *testing.T) {
	r, h := newTestRouter(t, Deps{})
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/rooms/R1").Code)

	a, b := make(chanSink, 4), make(chanSink, 4)
	h.Inbox() <- hub.Join{RoomID: "R1", SessionID: "A", Sink: a}
	<-a

	rec := do(t, r, http.MethodGet, "/rooms/R1")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap types.RoomSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, types.RoomSnapshot{RoomID: "R1", HostID: "A", Phase: "host_only"}, snap)

	h.Inbox() <- hub.Join{RoomID: "R1", SessionID: "B", Sink: b}
	<-b
	rec = do(t, r, http.MethodGet, "/rooms/R1")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "paired", snap.Phase)
	assert.Equal(t, "B", snap.ClientID)

	h.Inbox() <- hub.Disconnect{SessionID: "B"}
	h.Inbox() <- hub.Disconnect{SessionID: "A"}
	assert.Eventually(t, func() bool {
		return do(t, r, http.MethodGet, "/rooms/R1").Code == http.StatusNotFound
	}, time.Second, 10*time.Millisecond)
}

func TestRoomHistory(t *testing.T) {
	r, _ := newTestRouter(t, Deps{})
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/rooms/R1/history").Code)

	rows := []history.RoomEvent{{ID: 2, RoomID: "R1", SessionID: "B", Kind: "peer_joined"}}
	r, _ = newTestRouter(t, Deps{History: fakeHistory{rows: rows}})
	rec := do(t, r, http.MethodGet, "/rooms/R1/history")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []history.RoomEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "peer_joined", got[0].Kind)

	r, _ = newTestRouter(t, Deps{History: fakeHistory{err: errors.New("db down")}})
	assert.Equal(t, http.StatusInternalServerError, do(t, r, http.MethodGet, "/rooms/R1/history").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r, h := newTestRouter(t, Deps{})
	a := make(chanSink, 4)
	h.Inbox() <- hub.Join{RoomID: "R1", SessionID: "A", Sink: a}
	<-a

	rec := do(t, r, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "relay_rooms_active 1")
	assert.Contains(t, rec.Body.String(), `relay_joins_total{result="host"} 1`)
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>game</html>"), 0o600))

	r, _ := newTestRouter(t, Deps{StaticDir: dir})
	rec := do(t, r, http.MethodGet, "/index.html")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "game")
}
