package httpapi

import (
	"net/http"

	"github.com/DoyleJ11/duelrelay/internal/hub"
	"github.com/DoyleJ11/duelrelay/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Deps struct {
	Hub      *hub.Hub
	Session  ws.Options
	Gatherer prometheus.Gatherer
	History  HistoryReader // nil when disabled
	// StaticDir, when set, is served at / for browser clients.
	StaticDir string
	Log       *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(d.Hub, d.Session, d.Log))
	r.Post("/rooms", SuggestRoom(d.Hub, d.Log))
	r.Get("/rooms/{id}", GetRoom(d.Hub))
	r.Get("/rooms/{id}/history", RoomHistory(d.History))

	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	if d.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(d.StaticDir)))
	}
	return r
}
