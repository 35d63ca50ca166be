package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tasknest/apiserver/internal/apperr"
	"github.com/tasknest/apiserver/internal/services"
	"github.com/tasknest/apiserver/types"
)

// TokenCookie is the name of the session cookie.
const TokenCookie = "token"

const (
	msgTokenMissing = "Not authorized, authentication token missing"
	msgTokenInvalid = "Not authorized, token is invalid or expired"
)

// TokenVerifier validates session tokens.
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}

// IdentityResolver loads the user a verified token refers to.
type IdentityResolver interface {
	Resolve(ctx context.Context, id uuid.UUID) (types.Profile, error)
}

// RequireAuth returns the auth gate middleware. A token is taken from the
// session cookie first, then from an Authorization: Bearer header.
func RequireAuth(tokens TokenVerifier, users IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := requestToken(r)
			if token == "" {
				writeError(w, r, apperr.Unauthenticated(msgTokenMissing))
				return
			}

			ownerID, err := tokens.Verify(token)
			if err != nil {
				writeError(w, r, &apperr.Error{Kind: apperr.KindUnauthenticated, Message: msgTokenInvalid, Err: err})
				return
			}

			profile, err := users.Resolve(r.Context(), ownerID)
			if err != nil {
				writeError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), profile)))
		})
	}
}

func requestToken(r *http.Request) string {
	if cookie, err := r.Cookie(TokenCookie); err == nil && strings.TrimSpace(cookie.Value) != "" {
		return strings.TrimSpace(cookie.Value)
	}
	return bearerToken(r)
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// AuthHandler provides registration and session endpoints.
type AuthHandler struct {
	users        *services.UserService
	tokenTTL     time.Duration
	secureCookie bool
}

// NewAuthHandler constructs an AuthHandler. secureCookie marks the session
// cookie Secure.
func NewAuthHandler(users *services.UserService, tokenTTL time.Duration, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		users:        users,
		tokenTTL:     tokenTTL,
		secureCookie: secureCookie,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/logout", handler.Logout)
	r.With(authMiddleware).Get("/me", handler.Me)
}

// LoginResponse is the body of a successful login.
type LoginResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Token   string        `json:"token"`
	User    types.Profile `json:"user"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if _, err := h.users.Register(r.Context(), req); err != nil {
		writeError(w, r, err)
		return
	}

	writeOK(w, http.StatusCreated, "Registration successful", nil)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, apperr.InvalidCredentials("Invalid credentials"))
		return
	}

	result, err := h.users.Login(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	http.SetCookie(w, h.sessionCookie(result.Token, h.tokenTTL))
	writeJSON(w, http.StatusOK, LoginResponse{
		Success: true,
		Message: "Login successful",
		Token:   result.Token,
		User:    result.User,
	})
}

// Logout expires the session cookie. The token itself stays valid until it expires.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.sessionCookie("", -1))
	writeOK(w, http.StatusOK, "Logout successful", nil)
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	profile, err := identity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "User retrieved successfully", profile)
}

func (h *AuthHandler) sessionCookie(value string, ttl time.Duration) *http.Cookie {
	maxAge := int(ttl / time.Second)
	if ttl < 0 {
		maxAge = -1
	}
	return &http.Cookie{
		Name:     TokenCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteNoneMode,
	}
}
