package place

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"

	resp "github.com/nardotini/pump-dump-server/internal/lib/api/response"
	"github.com/nardotini/pump-dump-server/internal/lib/logger/sl"
	"github.com/nardotini/pump-dump-server/internal/model"
)

type Request struct {
	UserKey string `json:"user_key" validate:"required"`
	Side    string `json:"side" validate:"required,oneof=PUMP DUMP"`
	Amount  string `json:"amount" validate:"required"`
}

type Response struct {
	resp.Response
}

type BetPlacer interface {
	PlaceBet(userKey string, side model.Side, amount decimal.Decimal) error
}

type Bet struct {
	log       *slog.Logger
	validator *validator.Validate
	engine    BetPlacer
}

func NewBet(log *slog.Logger, engine BetPlacer) *Bet {
	return &Bet{
		log:       log,
		validator: validator.New(),
		engine:    engine,
	}
}

func (b *Bet) New() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.bet.place.New"

		log := b.log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			if errors.Is(err, io.EOF) {
				log.Error("request body is empty")

				render.JSON(w, r, resp.Error("empty request body", http.StatusBadRequest))

				return
			}

			log.Error("failed to decode request body", sl.Err(err))

			render.JSON(w, r, resp.Error("failed to decode request body", http.StatusBadRequest))

			return
		}

		log.Info("request body decoded", slog.Any("request", req))

		if err := b.validator.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("invalid request", sl.Err(err))

			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		amount, err := decimal.NewFromString(req.Amount)
		if err != nil || !amount.IsPositive() {
			log.Error("invalid bet amount", sl.String("amount", req.Amount))

			render.JSON(w, r, resp.Error("amount must be a positive decimal", http.StatusBadRequest))

			return
		}

		if err = b.engine.PlaceBet(req.UserKey, model.Side(req.Side), amount); err != nil {
			log.Error("bet rejected", sl.Err(err))

			render.JSON(w, r, resp.BetRejection(err))

			return
		}

		render.JSON(w, r, Response{Response: resp.OK()})
	}
}
