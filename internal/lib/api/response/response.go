package response

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nardotini/pump-dump-server/internal/game"
)

type Response struct {
	Status int    `json:"status"`
	Error  string `json:"error,omitempty"`
}

const (
	StatusOK = 200
)

func OK() Response {
	return Response{
		Status: StatusOK,
	}
}

func Error(msg string, status int) Response {
	if status == 0 {
		status = http.StatusInternalServerError
	}

	return Response{
		Status: status,
		Error:  msg,
	}
}

func ValidationError(errs validator.ValidationErrors) Response {
	var errMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is required", err.Field()))
		case "oneof":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s must be one of PUMP or DUMP", err.Field()))
		case "gt":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s must be greater than zero", err.Field()))
		default:
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is invalid", err.Field()))
		}
	}

	return Response{
		Status: http.StatusBadRequest,
		Error:  strings.Join(errMsgs, ", "),
	}
}

// BetRejection maps ledger rejection reasons to responses. Anything outside
// the known taxonomy is reported as a transient failure the caller may retry.
func BetRejection(err error) Response {
	switch {
	case errors.Is(err, game.ErrRoundNotOpen):
		return Error("betting is closed for this round", http.StatusConflict)
	case errors.Is(err, game.ErrAlreadyBet):
		return Error("you already placed a bet this round", http.StatusConflict)
	case errors.Is(err, game.ErrAmountOutOfRange):
		return Error("bet amount is out of range", http.StatusBadRequest)
	case errors.Is(err, game.ErrInsufficientFunds):
		return Error("insufficient balance", http.StatusPaymentRequired)
	case errors.Is(err, game.ErrInvalidSide):
		return Error("side must be PUMP or DUMP", http.StatusBadRequest)
	default:
		return Error("failed to place bet, please try again", http.StatusInternalServerError)
	}
}
