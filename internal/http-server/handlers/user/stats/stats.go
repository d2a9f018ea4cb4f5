package stats

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"golang.org/x/exp/slog"

	resp "github.com/nardotini/pump-dump-server/internal/lib/api/response"
	"github.com/nardotini/pump-dump-server/internal/lib/logger/sl"
	"github.com/nardotini/pump-dump-server/internal/model"
)

type StatsResponse struct {
	resp.Response
	Stats *model.UserStats `json:"stats"`
}

type BetResponse struct {
	resp.Response
	Bet *model.Bet `json:"bet,omitempty"`
}

type Engine interface {
	UserStats(userKey string) (*model.UserStats, error)
	UserBet(userKey string) (*model.Bet, error)
}

type Stats struct {
	log    *slog.Logger
	engine Engine
}

func NewStats(log *slog.Logger, engine Engine) *Stats {
	return &Stats{
		log:    log,
		engine: engine,
	}
}

func (s *Stats) Stats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.user.stats.Stats"

		log := s.log.With(slog.String("op", op))

		userKey := chi.URLParam(r, "key")
		if userKey == "" {
			render.JSON(w, r, resp.Error("user key is required", http.StatusBadRequest))

			return
		}

		userStats, err := s.engine.UserStats(userKey)
		if err != nil {
			log.Error("failed to get user stats", sl.Err(err))

			render.JSON(w, r, resp.Error("failed to get user stats", http.StatusInternalServerError))

			return
		}

		render.JSON(w, r, StatsResponse{
			Response: resp.OK(),
			Stats:    userStats,
		})
	}
}

// Bet returns the caller's bet in the current round; the bet field is absent
// when no round is open or nothing was staked.
func (s *Stats) Bet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.user.stats.Bet"

		log := s.log.With(slog.String("op", op))

		userKey := chi.URLParam(r, "key")
		if userKey == "" {
			render.JSON(w, r, resp.Error("user key is required", http.StatusBadRequest))

			return
		}

		bet, err := s.engine.UserBet(userKey)
		if err != nil {
			log.Error("failed to get user bet", sl.Err(err))

			render.JSON(w, r, resp.Error("failed to get user bet", http.StatusInternalServerError))

			return
		}

		render.JSON(w, r, BetResponse{
			Response: resp.OK(),
			Bet:      bet,
		})
	}
}
