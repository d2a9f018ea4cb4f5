package info

import (
	"net/http"
	"time"

	"github.com/go-chi/render"
	"github.com/patrickmn/go-cache"
	"golang.org/x/exp/slog"

	"github.com/nardotini/pump-dump-server/internal/game"
	resp "github.com/nardotini/pump-dump-server/internal/lib/api/response"
	"github.com/nardotini/pump-dump-server/internal/lib/logger/sl"
)

const cacheKey = "current_round_info"

type Response struct {
	resp.Response
	Round *game.RoundInfo `json:"round,omitempty"`
}

type InfoProvider interface {
	CurrentRoundInfo() (*game.RoundInfo, error)
}

type Info struct {
	log    *slog.Logger
	engine InfoProvider
	cache  *cache.Cache
}

func NewInfo(log *slog.Logger, engine InfoProvider) *Info {
	return &Info{
		log:    log,
		engine: engine,
		cache:  cache.New(time.Second, time.Minute),
	}
}

func (i *Info) New() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.round.info.New"

		log := i.log.With(slog.String("op", op))

		round, err := i.roundFromCacheOrEngine()
		if err != nil {
			log.Error("failed to get round info", sl.Err(err))

			render.JSON(w, r, resp.Error("failed to get round info", http.StatusInternalServerError))

			return
		}

		if round == nil {
			render.JSON(w, r, resp.Error("no active round", http.StatusNotFound))

			return
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Round:    round,
		})
	}
}

// roundFromCacheOrEngine caches the snapshot briefly so observers polling the
// endpoint do not hammer the ledger during a busy betting window.
func (i *Info) roundFromCacheOrEngine() (*game.RoundInfo, error) {
	if cached, found := i.cache.Get(cacheKey); found {
		return cached.(*game.RoundInfo), nil
	}

	round, err := i.engine.CurrentRoundInfo()
	if err != nil {
		return nil, err
	}

	if round != nil {
		i.cache.Set(cacheKey, round, cache.DefaultExpiration)
	}

	return round, nil
}
