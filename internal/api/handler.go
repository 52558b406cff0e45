package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"crypto_exchange/internal/domain"
	"crypto_exchange/internal/infra"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const healthTimeout = 2 * time.Second

// Converter resolves a conversion request.
type Converter interface {
	Resolve(ctx context.Context, req domain.ConvertRequest) (domain.Conversion, error)
}

// HealthChecker reports backend availability.
type HealthChecker interface {
	Health(ctx context.Context) error
}

type Handler struct {
	converter Converter
	health    HealthChecker
	metrics   *infra.Metrics
	logger    *slog.Logger
}

// NewHandler builds the API handler. health and metrics may be nil.
func NewHandler(converter Converter, health HealthChecker, metrics *infra.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		converter: converter,
		health:    health,
		metrics:   metrics,
		logger:    logger.With("module", "api"),
	}
}

// Routes returns the router with all endpoints mounted.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/convert", h.Convert)
		r.Get("/ws", h.ConvertStream)
	})
	return r
}

// Convert handles POST /api/v1/convert.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	log := h.requestLog(r)
	defer r.Body.Close()

	var req domain.ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Info("Invalid JSON body", slog.Any("error", err))
		WriteError(w, log, http.StatusBadRequest, msgInvalidBody)
		return
	}

	conv, err := h.convert(r.Context(), log, req)
	if err != nil {
		status, msg := classifyError(err)
		WriteError(w, log, status, msg)
		return
	}
	WriteJSON(w, log, http.StatusOK, conv)
}

func (h *Handler) convert(ctx context.Context, log *slog.Logger, req domain.ConvertRequest) (domain.Conversion, error) {
	req.Normalize()

	conv, err := h.converter.Resolve(ctx, req)
	if err != nil {
		logError(log, req, err)
		return domain.Conversion{}, err
	}

	log.Debug("Conversion resolved",
		slog.String("from", conv.CurrencyFrom),
		slog.String("to", conv.CurrencyTo),
		slog.String("exchange", conv.Exchange),
		slog.String("rate", conv.Rate),
	)
	return conv, nil
}

// Healthz handles GET /healthz by pinging the cache backend.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	log := h.requestLog(r)
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := h.health.Health(ctx); err != nil {
			log.Warn("Health check failed", slog.Any("error", err))
			WriteError(w, log, http.StatusServiceUnavailable, "cache unavailable")
			return
		}
	}
	WriteJSON(w, log, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) requestLog(r *http.Request) *slog.Logger {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return h.logger.With(slog.String("request_id", id))
	}
	return h.logger
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.requestLog(r).Info("HTTP request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
