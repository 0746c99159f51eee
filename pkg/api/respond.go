package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/commhub/pkg/logger"
	"github.com/dmitrymomot/commhub/pkg/validator"
)

// RequestIDExtractor adds the chi request id to records logged with the request context.
func RequestIDExtractor() logger.ContextExtractor {
	return logger.ContextValue("request_id", middleware.RequestIDKey)
}

func (h *handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.LogAttrs(r.Context(), slog.LevelWarn, "failed to write response", logger.Error(err))
	}
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	reqID := middleware.GetReqID(r.Context())

	level := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.LogAttrs(r.Context(), level, "request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		logger.Error(err),
	)

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	h.writeJSON(w, r, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: reqID,
		Fields:    validator.ExtractValidationErrors(err),
	})
}

// decode reads a JSON body into v. An empty body is rejected.
func (h *handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	return h.decodeBody(w, r, v, false)
}

// decodeOptional is like decode but leaves v untouched for an empty body.
func (h *handler) decodeOptional(w http.ResponseWriter, r *http.Request, v any) error {
	return h.decodeBody(w, r, v, true)
}

func (h *handler) decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	body := http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	return nil
}
