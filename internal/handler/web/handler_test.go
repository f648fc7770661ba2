package web

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microauthx/microauthx/internal/models"
	apierrors "github.com/microauthx/microauthx/internal/pkg/errors"
)

// fakeAuthClient scripts the auth service's behavior.
type fakeAuthClient struct {
	signupErr error
	loginErr  error
	identity  models.Identity

	lastSignup map[string]string
	lastLogin  map[string]string
}

func (f *fakeAuthClient) Signup(ctx context.Context, username, email, password string) (*models.Identity, error) {
	f.lastSignup = map[string]string{"username": username, "email": email, "password": password}
	if f.signupErr != nil {
		return nil, f.signupErr
	}
	id := f.identity
	return &id, nil
}

func (f *fakeAuthClient) Login(ctx context.Context, email, password string) (*models.Identity, error) {
	f.lastLogin = map[string]string{"email": email, "password": password}
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	id := f.identity
	return &id, nil
}

type fixture struct {
	client *fakeAuthClient
	server *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	client := &fakeAuthClient{
		identity: models.Identity{ID: "u-1", Username: "alice", Email: "alice@example.com"},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h, err := NewHandler(client, logger, Config{SessionSecret: "test-secret", SessionTTL: time.Hour})
	require.NoError(t, err)

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	return &fixture{client: client, server: srv}
}

// noRedirect returns a client that surfaces redirects instead of following them.
func noRedirect() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (f *fixture) postForm(t *testing.T, path string, form url.Values, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.server.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := noRedirect().Do(req)
	require.NoError(t, err)
	return resp
}

func (f *fixture) get(t *testing.T, path string, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.server.URL+path, nil)
	require.NoError(t, err)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := noRedirect().Do(req)
	require.NoError(t, err)
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func webSessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	return nil
}

// --- Pages ---

func TestPublicPagesRender(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "MicroAuthX")

	resp = f.get(t, "/login")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Log in")

	resp = f.get(t, "/signup")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Sign up")
}

func TestLoginPageShowsFlashMessages(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/login?success="+url.QueryEscape("Account created. Please log in."))
	body := readBody(t, resp)
	assert.Contains(t, body, "Account created. Please log in.")
}

func TestRegisterRedirectsToSignup(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/register")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/signup", resp.Header.Get("Location"))
}

// --- Login flow ---

func TestLoginStoresIdentityAndRedirectsHome(t *testing.T) {
	f := newFixture(t)

	resp := f.postForm(t, "/login", url.Values{
		"email":    {"alice@example.com"},
		"password": {"secret1"},
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
	assert.Equal(t, "alice@example.com", f.client.lastLogin["email"])

	cookie := webSessionCookie(resp)
	require.NotNil(t, cookie, "login must establish the local session")

	// The home page now greets the cached identity.
	resp = f.get(t, "/", cookie)
	body := readBody(t, resp)
	assert.Contains(t, body, "alice")
	assert.Contains(t, body, "Log out")
}

func TestLoginFailureReRendersForm(t *testing.T) {
	f := newFixture(t)
	f.client.loginErr = apierrors.ErrAuthentication

	resp := f.postForm(t, "/login", url.Values{
		"email":    {"alice@example.com"},
		"password": {"wrong"},
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, "Invalid email or password")
	assert.Contains(t, body, "alice@example.com", "email is preserved in the form")
}

func TestLoginUpstreamDownRendersConnectivityMessage(t *testing.T) {
	f := newFixture(t)
	f.client.loginErr = apierrors.ErrUpstreamUnavailable

	resp := f.postForm(t, "/login", url.Values{
		"email":    {"alice@example.com"},
		"password": {"secret1"},
	})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "unavailable")
}

// --- Signup flow ---

func TestSignupRedirectsToLoginWithSuccess(t *testing.T) {
	f := newFixture(t)

	resp := f.postForm(t, "/signup", url.Values{
		"username": {"alice"},
		"email":    {"alice@example.com"},
		"password": {"secret1"},
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc := resp.Header.Get("Location")
	assert.True(t, strings.HasPrefix(loc, "/login?success="), "got location %q", loc)
}

func TestSignupMapsLegacyNameField(t *testing.T) {
	f := newFixture(t)

	resp := f.postForm(t, "/signup", url.Values{
		"name":     {"alice"},
		"email":    {"alice@example.com"},
		"password": {"secret1"},
	})
	resp.Body.Close()

	assert.Equal(t, "alice", f.client.lastSignup["username"])
}

func TestSignupFailureReRendersFormWithUpstreamMessage(t *testing.T) {
	f := newFixture(t)
	f.client.signupErr = apierrors.NewConflictError("A user with this email or username already exists")

	resp := f.postForm(t, "/signup", url.Values{
		"username": {"alice"},
		"email":    {"alice@example.com"},
		"password": {"secret1"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, "already exists")
	assert.Contains(t, body, "alice", "form values are preserved")
}

// --- Protected pages ---

func TestProtectedPagesRedirectAnonymousToLogin(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/dashboard", "/profile"} {
		resp := f.get(t, path)
		resp.Body.Close()
		assert.Equal(t, http.StatusFound, resp.StatusCode, path)
		assert.Equal(t, "/login", resp.Header.Get("Location"), path)
	}
}

func TestProtectedPagesRenderForAuthenticatedSession(t *testing.T) {
	f := newFixture(t)

	resp := f.postForm(t, "/login", url.Values{
		"email":    {"alice@example.com"},
		"password": {"secret1"},
	})
	resp.Body.Close()
	cookie := webSessionCookie(resp)
	require.NotNil(t, cookie)

	resp = f.get(t, "/dashboard", cookie)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "alice")

	resp = f.get(t, "/profile", cookie)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "alice@example.com")
}

// --- Logout ---

func TestLogoutDestroysSessionAndConfirms(t *testing.T) {
	f := newFixture(t)

	resp := f.postForm(t, "/login", url.Values{
		"email":    {"alice@example.com"},
		"password": {"secret1"},
	})
	resp.Body.Close()
	cookie := webSessionCookie(resp)
	require.NotNil(t, cookie)

	resp = f.get(t, "/logout", cookie)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "logged out")

	// The old cookie no longer grants access.
	expired := webSessionCookie(resp)
	if expired == nil {
		expired = cookie
	}
	resp = f.get(t, "/dashboard", expired)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

// --- Health ---

func TestHealth(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, `"status":"ok"`)
	assert.Contains(t, body, "web-service")
}
