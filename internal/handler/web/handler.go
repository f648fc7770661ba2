// Package web provides the browser-facing handlers for the web service.
// It renders forms, forwards submissions to the auth service, and mirrors
// the identity the auth service returns into its own session. That session
// is a cache of the identity issued at login time, not a live view of the
// upstream record; it can go stale until the next login.
package web

import (
	"context"
	"embed"
	"encoding/gob"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"

	"github.com/microauthx/microauthx/internal/middleware"
	"github.com/microauthx/microauthx/internal/models"
	apierrors "github.com/microauthx/microauthx/internal/pkg/errors"
	"github.com/microauthx/microauthx/internal/pkg/response"
)

//go:embed templates/*.html
var templatesFS embed.FS

// SessionCookieName is the web service's own session cookie. It is
// independent of the auth service's session scope.
const SessionCookieName = "web_session"

const sessionUserKey = "user"

func init() {
	// Identities are stored in the gorilla session via gob.
	gob.Register(models.Identity{})
}

// AuthClient is the subset of the upstream client the handlers use.
type AuthClient interface {
	Signup(ctx context.Context, username, email, password string) (*models.Identity, error)
	Login(ctx context.Context, email, password string) (*models.Identity, error)
}

// Config holds configuration for the web handler.
type Config struct {
	SessionSecret string
	SessionTTL    time.Duration
	SecureCookies bool
}

// Handler handles HTTP requests for the web front-end.
type Handler struct {
	auth   AuthClient
	store  sessions.Store
	tmpl   *template.Template
	logger *slog.Logger
}

// NewHandler creates a new web handler.
func NewHandler(auth AuthClient, logger *slog.Logger, cfg Config) (*Handler, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}

	return &Handler{auth: auth, store: store, tmpl: tmpl, logger: logger}, nil
}

// Routes returns the chi router with all web routes configured.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	// Public routes
	r.Get("/", h.Home)
	r.Get("/login", h.LoginPage)
	r.Post("/login", h.Login)
	r.Get("/signup", h.SignupPage)
	r.Post("/signup", h.Signup)
	r.Get("/logout", h.Logout)
	r.Get("/health", h.Health)

	// Legacy alias for the signup page.
	r.Get("/register", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/signup", http.StatusFound)
	})

	// Protected pages: browsers get a redirect to /login, not an API error.
	r.Group(func(r chi.Router) {
		r.Use(h.RequireSession)
		r.Get("/dashboard", h.Dashboard)
		r.Get("/profile", h.Profile)
	})

	return r
}

// RequireSession redirects unauthenticated requests to the login page.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.sessionUser(r) == nil {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ============================================
// Page data
// ============================================

type homeData struct {
	User *models.Identity
}

type loginData struct {
	Error   string
	Success string
	Email   string
}

type signupData struct {
	Error    string
	Username string
	Email    string
}

type pageData struct {
	User *models.Identity
}

// ============================================
// Handlers
// ============================================

// Home renders the landing page.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	middleware.IncrementPageViews("home")
	h.render(w, http.StatusOK, "home", homeData{User: h.sessionUser(r)})
}

// LoginPage renders the login form.
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	middleware.IncrementPageViews("login")
	h.render(w, http.StatusOK, "login", loginData{
		Success: r.URL.Query().Get("success"),
		Error:   r.URL.Query().Get("error"),
	})
}

// Login forwards the login form to the auth service. On success the returned
// identity is stored verbatim in the local session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, "login", loginData{Error: "Invalid form data"})
		return
	}
	email := r.FormValue("email")
	password := r.FormValue("password")

	identity, err := h.auth.Login(r.Context(), email, password)
	if err != nil {
		status, msg := h.upstreamFailure(err, "Login failed")
		h.render(w, status, "login", loginData{Error: msg, Email: email})
		return
	}

	session, _ := h.store.Get(r, SessionCookieName)
	session.Values[sessionUserKey] = *identity
	if err := session.Save(r, w); err != nil {
		h.logger.Error("session save failed", slog.Any("error", err))
		h.render(w, http.StatusInternalServerError, "login", loginData{Error: "Login failed"})
		return
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

// SignupPage renders the signup form.
func (h *Handler) SignupPage(w http.ResponseWriter, r *http.Request) {
	middleware.IncrementPageViews("signup")
	h.render(w, http.StatusOK, "signup", signupData{Error: r.URL.Query().Get("error")})
}

// Signup forwards the signup form to the auth service.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, "signup", signupData{Error: "Invalid form data"})
		return
	}

	// Some forms post the username under "name"; map it through.
	username := r.FormValue("username")
	if username == "" {
		username = r.FormValue("name")
	}
	email := r.FormValue("email")
	password := r.FormValue("password")

	if _, err := h.auth.Signup(r.Context(), username, email, password); err != nil {
		status, msg := h.upstreamFailure(err, "Signup failed")
		h.render(w, status, "signup", signupData{Error: msg, Username: username, Email: email})
		return
	}

	http.Redirect(w, r,
		"/login?success="+url.QueryEscape("Account created. Please log in."),
		http.StatusFound)
}

// Logout destroys the local session and renders a confirmation page.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	session, _ := h.store.Get(r, SessionCookieName)
	session.Options.MaxAge = -1
	delete(session.Values, sessionUserKey)
	if err := session.Save(r, w); err != nil {
		h.logger.Error("session destroy failed", slog.Any("error", err))
	}
	h.render(w, http.StatusOK, "logout", nil)
}

// Dashboard renders the protected dashboard page.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	middleware.IncrementPageViews("dashboard")
	h.render(w, http.StatusOK, "dashboard", pageData{User: h.sessionUser(r)})
}

// Profile renders the protected profile page.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	middleware.IncrementPageViews("profile")
	h.render(w, http.StatusOK, "profile", pageData{User: h.sessionUser(r)})
}

// Health reports web service liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]any{
		"status":  "ok",
		"service": "web-service",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// ============================================
// Helpers
// ============================================

// sessionUser returns the cached identity from the local session, or nil.
func (h *Handler) sessionUser(r *http.Request) *models.Identity {
	session, err := h.store.Get(r, SessionCookieName)
	if err != nil {
		return nil
	}
	identity, ok := session.Values[sessionUserKey].(models.Identity)
	if !ok {
		return nil
	}
	return &identity
}

// upstreamFailure maps an upstream error to a render status and message.
// Unreachable/timed-out upstream gets the generic connectivity message.
func (h *Handler) upstreamFailure(err error, fallback string) (int, string) {
	var apiErr *apierrors.APIError
	if errors.As(err, &apiErr) {
		if apiErr == apierrors.ErrUpstreamUnavailable {
			h.logger.Error("auth service unreachable")
		}
		return apiErr.StatusCode, apiErr.Message
	}
	h.logger.Error("upstream call failed", slog.Any("error", err))
	return http.StatusBadGateway, fallback
}

func (h *Handler) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.tmpl.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("template render failed", slog.String("template", name), slog.Any("error", err))
	}
}

// Static serves the static assets directory.
func Static() http.Handler {
	return http.StripPrefix("/static/", http.FileServer(http.Dir("static")))
}
