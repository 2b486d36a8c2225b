package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"leadcal/backend/internal/service/appointments"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	requesterKey contextKey = "requester"

	headerRequestID = "X-Request-ID"
	headerUserID    = "X-User-ID"
	headerUserRole  = "X-User-Role"
)

// unrestrictedRoles see and change every owner's calendar.
var unrestrictedRoles = map[string]bool{
	"admin":   true,
	"manager": true,
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(headerRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set(headerRequestID, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			log.Info("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", requestID(r.Context())),
			)
		})
	}
}

// requesterMiddleware reads the identity forwarded by the auth gateway.
func requesterMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(strings.TrimSpace(r.Header.Get(headerUserID)))
		if err != nil || id == uuid.Nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", headerUserID+" must be a valid UUID")
			return
		}

		req := appointments.RestrictedTo(id)
		if unrestrictedRoles[strings.ToLower(strings.TrimSpace(r.Header.Get(headerUserRole)))] {
			req = appointments.Unrestricted(id)
		}

		ctx := context.WithValue(r.Context(), requesterKey, req)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func requesterFrom(ctx context.Context) appointments.Requester {
	req, _ := ctx.Value(requesterKey).(appointments.Requester)
	return req
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
