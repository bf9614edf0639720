// Package httpapi wires the gateway's HTTP endpoints to the spool and the
// token verifier.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pkt.systems/pslog"
	"pkt.systems/spoold/api"
	"pkt.systems/spoold/internal/auth"
	"pkt.systems/spoold/internal/correlation"
	"pkt.systems/spoold/internal/metrics"
	"pkt.systems/spoold/internal/spool"
	"pkt.systems/spoold/internal/uuidv7"
)

const defaultBodySpoolMemoryThreshold = 4 << 20 // 4 MiB in-memory, then spill to disk
const defaultMaxBodyBytes = 512 << 20

const headerCorrelationID = "X-Correlation-Id"

// Handler serves the submission endpoints.
type Handler struct {
	spool              *spool.Dir
	metrics            *metrics.Registry
	secret             string
	logger             pslog.Logger
	maxBodyBytes       int64
	spoolThreshold     int64
	tracer             trace.Tracer
	httpTracingEnabled bool
	activityHook       func()
}

// Config groups the dependencies required by Handler.
type Config struct {
	Spool   *spool.Dir
	Metrics *metrics.Registry
	// Secret is the shared HMAC key for bearer tokens. Empty disables
	// verification entirely.
	Secret               string
	Logger               pslog.Logger
	MaxBodyBytes         int64
	SpoolMemoryThreshold int64
	DisableHTTPTracing   bool
	ActivityHook         func()
}

// New constructs a Handler using the supplied configuration.
func New(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	threshold := cfg.SpoolMemoryThreshold
	if threshold <= 0 {
		threshold = defaultBodySpoolMemoryThreshold
	}
	reg := cfg.Metrics
	if reg == nil {
		reg = metrics.New(nil)
	}
	return &Handler{
		spool:              cfg.Spool,
		metrics:            reg,
		secret:             cfg.Secret,
		logger:             logger,
		maxBodyBytes:       maxBody,
		spoolThreshold:     threshold,
		tracer:             otel.Tracer("pkt.systems/spoold/httpapi"),
		httpTracingEnabled: !cfg.DisableHTTPTracing,
		activityHook:       cfg.ActivityHook,
	}
}

// Register wires the routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("/submit", h.wrap("submit", h.handleSubmit))
	mux.Handle("/status", h.wrap("status", h.handleStatus))
	mux.Handle("/metrics", h.wrap("metrics", h.handleMetrics))
	mux.Handle("/healthz", h.wrap("healthz", h.handleHealth))
	mux.Handle("/readyz", h.wrap("readyz", h.handleReady))
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func routerSys(operation string) string {
	if operation == "" {
		return "api.http.router"
	}
	return "api.http.router." + operation
}

func (h *Handler) wrap(operation string, fn handlerFunc) http.Handler {
	sys := routerSys(operation)
	httpSpanName := "spoold.http." + operation
	txSpanName := "spoold.tx." + operation

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		if h.activityHook != nil {
			h.activityHook()
		}
		reqID := uuidv7.NewString()
		instrument := h.httpTracingEnabled
		var span trace.Span
		if instrument {
			ctx, span = h.tracer.Start(ctx, txSpanName,
				trace.WithSpanKind(trace.SpanKindInternal),
				trace.WithAttributes(attribute.String("spoold.sys", sys)),
			)
			span.SetAttributes(
				attribute.String("spoold.operation", operation),
				attribute.String("spoold.route", r.URL.Path),
			)
			defer span.End()
		} else {
			span = trace.SpanFromContext(ctx)
		}

		logger := h.logger.With(
			"sys", sys,
			"req_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
		)

		if corr := strings.TrimSpace(r.Header.Get(headerCorrelationID)); corr != "" {
			if normalized, ok := correlation.Normalize(corr); ok {
				ctx = correlation.Set(ctx, normalized)
			}
		}
		if !correlation.Has(ctx) {
			ctx = correlation.Set(ctx, correlation.Generate())
		}
		if id := correlation.ID(ctx); id != "" {
			logger = logger.With("cid", id)
			if instrument {
				span.SetAttributes(attribute.String("spoold.correlation_id", id))
			}
		}
		ctx = pslog.ContextWithLogger(ctx, logger)
		r = r.WithContext(ctx)

		logger.Trace("http.request.start", "remote_addr", r.RemoteAddr)

		if corr := correlation.ID(ctx); corr != "" {
			w.Header().Set(headerCorrelationID, corr)
		}

		if err := fn(w, r); err != nil {
			if instrument {
				span.RecordError(err)
				span.SetStatus(codes.Error, "handler_error")
				var httpErr httpError
				if errors.As(err, &httpErr) {
					span.SetAttributes(
						attribute.String("spoold.error_code", httpErr.Code),
						attribute.Int("spoold.error_status", httpErr.Status),
					)
				}
			}
			h.metrics.IncErrors()
			logger.Debug("http.request.error", "elapsed", time.Since(start), "error", err)
			h.handleError(ctx, w, err)
			return
		}
		if instrument {
			span.SetStatus(codes.Ok, "")
		}
		logger.Trace("http.request.complete", "elapsed", time.Since(start))
	})

	if !h.httpTracingEnabled {
		return handler
	}
	return otelhttp.NewHandler(handler, httpSpanName,
		otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents))
}

// requireAuth validates the Authorization header against the shared secret.
func (h *Handler) requireAuth(r *http.Request) (auth.Claims, error) {
	claims, err := auth.Verify(r.Header.Get("Authorization"), h.secret)
	if err == nil {
		return claims, nil
	}
	switch {
	case errors.Is(err, auth.ErrMalformedCredential):
		return auth.Claims{}, httpError{
			Status: http.StatusBadRequest,
			Code:   "malformed_credential",
			Detail: "authorization header must be a bearer token",
		}
	default:
		return auth.Claims{}, httpError{
			Status: http.StatusUnauthorized,
			Code:   "unauthorized",
			Detail: "missing or invalid token",
		}
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	_ = enc.Encode(payload)
}

func (h *Handler) handleError(ctx context.Context, w http.ResponseWriter, err error) {
	logger := pslog.LoggerFromContext(ctx)
	if logger == nil {
		logger = h.logger
	}
	var httpErr httpError
	if errors.As(err, &httpErr) {
		logger.Debug("http.request.failure",
			"status", httpErr.Status,
			"code", httpErr.Code,
			"detail", httpErr.Detail,
		)
		h.writeJSON(w, httpErr.Status, api.ErrorResponse{
			Status:  "error",
			Error:   httpErr.Code,
			Message: httpErr.Detail,
		})
		return
	}
	logger.Error("http.request.internal_error", "error", err)
	h.writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{
		Status:  "error",
		Error:   "internal_error",
		Message: "internal server error",
	})
}

type httpError struct {
	Status int
	Code   string
	Detail string
}

func (h httpError) Error() string {
	if h.Detail != "" {
		return fmt.Sprintf("%s: %s", h.Code, h.Detail)
	}
	return h.Code
}
