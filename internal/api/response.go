package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"crypto_exchange/internal/domain"
)

// Caller-facing messages for upstream and internal failures. Detail goes to the log only.
const (
	msgExchangeFailure = "Error with exchange, please try again later."
	msgInternalError   = "Internal error, try later..."
	msgInvalidBody     = "Invalid request body"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func WriteJSON(w http.ResponseWriter, log *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error("Failed to encode JSON response", slog.Any("error", err))
	}
}

func WriteError(w http.ResponseWriter, log *slog.Logger, status int, message string) {
	WriteJSON(w, log, status, ErrorResponse{Error: message})
}

// classifyError maps a resolver error onto an HTTP status and a caller-facing message.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidProvider),
		errors.Is(err, domain.ErrInvalidAssetAmount),
		errors.Is(err, domain.ErrPairNotFound),
		errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrProviderBadResponse):
		return http.StatusInternalServerError, msgExchangeFailure
	default:
		return http.StatusInternalServerError, msgInternalError
	}
}

// logError records a failed conversion at a level matching its kind.
func logError(log *slog.Logger, req domain.ConvertRequest, err error) {
	attrs := []any{
		slog.String("from", req.CurrencyFrom),
		slog.String("to", req.CurrencyTo),
		slog.String("exchange", req.Exchange),
		slog.Any("error", err),
	}
	status, _ := classifyError(err)
	switch {
	case status < http.StatusInternalServerError:
		log.Info("Conversion rejected", attrs...)
	case errors.Is(err, domain.ErrProviderBadResponse):
		log.Warn("Conversion failed on upstream", attrs...)
	default:
		log.Error("Conversion failed", attrs...)
	}
}
