// Package auth provides the JSON API handlers for the auth service.
package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/microauthx/microauthx/internal/models"
	apierrors "github.com/microauthx/microauthx/internal/pkg/errors"
	"github.com/microauthx/microauthx/internal/pkg/response"
	"github.com/microauthx/microauthx/internal/service"
	"github.com/microauthx/microauthx/internal/session"
)

// Pinger reports connectivity of the credential store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds handler configuration.
type Config struct {
	// CookieName is the session cookie name.
	CookieName string
	// CookieTTL bounds the cookie lifetime; the server-side session TTL
	// is what actually expires the session.
	CookieTTL time.Duration
	// SecureCookies sets the Secure flag (tied to TLS termination in prod).
	SecureCookies bool
}

// Handler handles HTTP requests for the auth service.
type Handler struct {
	auth     service.AuthService
	sessions session.Store
	db       Pinger
	logger   *slog.Logger
	cfg      Config
}

// NewHandler creates a new auth API handler.
func NewHandler(auth service.AuthService, sessions session.Store, db Pinger, logger *slog.Logger, cfg Config) *Handler {
	if cfg.CookieName == "" {
		cfg.CookieName = "auth_session"
	}
	if cfg.CookieTTL <= 0 {
		cfg.CookieTTL = 24 * time.Hour
	}
	return &Handler{auth: auth, sessions: sessions, db: db, logger: logger, cfg: cfg}
}

// Routes returns the chi router with all auth service routes configured.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/signup", h.Signup)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)
		r.Get("/stats", h.Stats)

		// Legacy alias: one consistent behavior, a redirect that preserves
		// the POST body.
		r.Post("/register", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/api/signup", http.StatusTemporaryRedirect)
		})
	})

	return r
}

// Root returns a service banner for basic reachability testing.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]any{
		"message":   "Auth Service is running",
		"endpoints": []string{"/health", "/metrics", "/api/signup", "/api/login", "/api/logout", "/api/me", "/api/stats"},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Health reports liveness, credential store connectivity and user count.
// It degrades to an "error" status instead of failing when a check fails.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "OK"
	database := "connected"
	var totalUsers int64

	if err := h.db.Ping(ctx); err != nil {
		status = "error"
		database = "disconnected"
	} else if totalUsers, err = h.auth.UserCount(ctx); err != nil {
		h.logger.Error("health user count failed", slog.Any("error", err))
		status = "error"
	}

	response.OK(w, map[string]any{
		"status":     status,
		"service":    "auth-service",
		"database":   database,
		"totalUsers": totalUsers,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// Signup handles account creation.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req service.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierrors.NewValidationError("request body must be valid JSON"))
		return
	}

	identity, err := h.auth.Signup(r.Context(), req)
	if err != nil {
		h.writeError(w, r, "signup failed", err)
		return
	}

	response.Created(w, map[string]any{
		"success": true,
		"user":    identity,
	})
}

// Login verifies credentials and issues a session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierrors.NewValidationError("request body must be valid JSON"))
		return
	}

	identity, err := h.auth.Login(r.Context(), req)
	if err != nil {
		h.writeError(w, r, "login failed", err)
		return
	}

	token, err := h.sessions.Create(r.Context(), identity)
	if err != nil {
		h.logger.Error("session create failed", slog.Any("error", err))
		response.Error(w, apierrors.ErrSession)
		return
	}
	h.setSessionCookie(w, token)

	response.OK(w, map[string]any{
		"success": true,
		"user":    identity,
	})
}

// Me reports the current session state. It never errors: a missing,
// expired, or unreadable session is simply unauthenticated.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity := h.currentIdentity(r)

	if identity == nil {
		response.OK(w, map[string]any{"authenticated": false, "user": nil})
		return
	}
	response.OK(w, map[string]any{"authenticated": true, "user": identity})
}

// Logout destroys the current session. A request without a session is a
// no-op success; only a failing session-store delete is an error.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.cfg.CookieName); err == nil && cookie.Value != "" {
		if err := h.sessions.Destroy(r.Context(), cookie.Value); err != nil {
			h.logger.Error("session destroy failed", slog.Any("error", err))
			response.Error(w, apierrors.ErrSession)
			return
		}
	}
	h.clearSessionCookie(w)
	response.OK(w, map[string]any{"success": true})
}

// Stats returns aggregate user counts for the authenticated caller.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	identity := h.currentIdentity(r)
	if identity == nil {
		response.Error(w, apierrors.ErrUnauthorized)
		return
	}

	stats, err := h.auth.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, "stats failed", err)
		return
	}

	response.OK(w, map[string]any{
		"stats": stats,
		"user":  identity,
	})
}

// currentIdentity resolves the session cookie to an identity, or nil.
func (h *Handler) currentIdentity(r *http.Request) *models.Identity {
	cookie, err := r.Cookie(h.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	identity, err := h.sessions.Get(r.Context(), cookie.Value)
	if err != nil {
		h.logger.Error("session lookup failed", slog.Any("error", err))
		return nil
	}
	return identity
}

// writeError logs internal detail and writes the translated API error.
// Raw error detail never reaches the response body.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if !apierrors.IsAPIError(err) {
		h.logger.Error(msg, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	response.Error(w, err)
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cfg.CookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
