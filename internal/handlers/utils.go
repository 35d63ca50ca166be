package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/tasknest/apiserver/internal/apperr"
	"github.com/tasknest/apiserver/internal/logger"
	"github.com/tasknest/apiserver/types"
)

const maxBodyBytes = 1 << 20

type contextKey string

const contextIdentityKey contextKey = "identity"

// Response is the envelope of every JSON response.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// WithIdentity attaches the authenticated user to ctx.
func WithIdentity(ctx context.Context, profile types.Profile) context.Context {
	return context.WithValue(ctx, contextIdentityKey, profile)
}

// IdentityFromContext returns the user attached by the auth gate.
func IdentityFromContext(ctx context.Context) (types.Profile, bool) {
	profile, ok := ctx.Value(contextIdentityKey).(types.Profile)
	if !ok || profile.ID == uuid.Nil {
		return types.Profile{}, false
	}
	return profile, true
}

func identity(r *http.Request) (types.Profile, error) {
	profile, ok := IdentityFromContext(r.Context())
	if !ok {
		return types.Profile{}, apperr.Unauthenticated(msgTokenMissing)
	}
	return profile, nil
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation("Invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeOK(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Response{Success: true, Message: message, Data: data})
}

// NotFound answers requests that match no route.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, apperr.NotFound("Route not found"))
}

// MethodNotAllowed answers requests whose path exists under another method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, apperr.MethodNotAllowed("Method not allowed"))
}

// writeError is the single place errors become HTTP responses.
// Internal causes are logged and never sent to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	} else {
		logger.Debug("request rejected",
			"request_id", middleware.GetReqID(r.Context()),
			"status", status,
			"error", err,
		)
	}
	writeJSON(w, status, Response{Success: false, Message: apperr.PublicMessage(err)})
}
