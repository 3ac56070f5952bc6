package httpapi

import (
	"net/http"

	"github.com/arena-gg/arena-backend/internal/hub"
	"github.com/arena-gg/arena-backend/internal/identity"
	"github.com/arena-gg/arena-backend/internal/store"
	"github.com/arena-gg/arena-backend/internal/ws"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func SetupRoutes(h *hub.Hub, provider identity.Provider, reader store.Reader, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, provider, log))
	r.Get("/players/{userID}/stats", PlayerStats(reader, log))
	r.Get("/matches/recent", RecentMatches(reader, log))
	return r
}
