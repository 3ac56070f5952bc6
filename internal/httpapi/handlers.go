package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/arena-gg/arena-backend/internal/store"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const defaultRecentLimit = 20

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func PlayerStats(reader store.Reader, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		stats, err := reader.StatsFor(r.Context(), userID)
		if err != nil {
			log.Error("stats lookup failed", zap.String("user", userID), zap.Error(err))
			http.Error(w, "stats unavailable", http.StatusInternalServerError)
			return
		}
		if stats == nil {
			stats = []store.StatLine{}
		}
		writeJSON(w, http.StatusOK, struct {
			UserID string          `json:"userId"`
			Stats  []store.StatLine `json:"stats"`
		}{UserID: userID, Stats: stats})
	}
}

func RecentMatches(reader store.Reader, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultRecentLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 100 {
				http.Error(w, "limit must be 1-100", http.StatusBadRequest)
				return
			}
			limit = n
		}
		matches, err := reader.RecentMatches(r.Context(), limit)
		if err != nil {
			log.Error("recent matches lookup failed", zap.Error(err))
			http.Error(w, "matches unavailable", http.StatusInternalServerError)
			return
		}
		if matches == nil {
			matches = []store.MatchSummary{}
		}
		writeJSON(w, http.StatusOK, struct {
			Matches []store.MatchSummary `json:"matches"`
		}{Matches: matches})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
