package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/DoyleJ11/duelrelay/internal/engine"
	"github.com/DoyleJ11/duelrelay/internal/history"
	"github.com/DoyleJ11/duelrelay/internal/hub"
	"github.com/DoyleJ11/duelrelay/pkg/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxCodeAttempts = 16

// HistoryReader is the read side of the optional room history store.
type HistoryReader interface {
	Recent(ctx context.Context, roomID string, limit int) ([]history.RoomEvent, error)
}

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

// SuggestRoom hands out an id no room currently uses. The room itself only
// exists once someone joins it.
func SuggestRoom(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for attempt := 0; attempt < maxCodeAttempts; attempt++ {
			code, err := GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			lb, err := h.Room(r.Context(), code)
			if err != nil {
				http.Error(w, "relay unavailable", http.StatusServiceUnavailable)
				return
			}
			if lb == nil {
				writeJSON(w, http.StatusCreated, struct {
					RoomID string `json:"roomId"`
				}{RoomID: code})
				return
			}
			log.Debug("collision on code, regenerating", zap.String("code", code))
		}
		http.Error(w, "failed to find a free code", http.StatusServiceUnavailable)
	}
}

func GetRoom(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		lb, err := h.Room(ctx, id)
		if err != nil {
			http.Error(w, "relay unavailable", http.StatusServiceUnavailable)
			return
		}
		if lb == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		v, err := lb.View(ctx)
		if errors.Is(err, engine.ErrRoomDestroyed) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "room unavailable", http.StatusServiceUnavailable)
			return
		}

		writeJSON(w, http.StatusOK, types.RoomSnapshot{
			RoomID:   v.State.RoomID,
			HostID:   v.State.Host,
			ClientID: v.State.Client,
			Phase:    string(v.State.Phase),
		})
	}
}

func RoomHistory(store HistoryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "history disabled", http.StatusNotFound)
			return
		}
		events, err := store.Recent(r.Context(), chi.URLParam(r, "id"), 50)
		if err != nil {
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, events)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
