// Package upstream implements the web service's HTTP client for the auth
// service. Transport failures and timeouts surface as ErrUpstreamUnavailable
// so callers can degrade to an error page instead of hanging or crashing.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/microauthx/microauthx/internal/middleware"
	"github.com/microauthx/microauthx/internal/models"
	apierrors "github.com/microauthx/microauthx/internal/pkg/errors"
)

// Client calls the auth service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an auth service client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authResponse is the auth service's response envelope for signup/login.
type authResponse struct {
	Success bool             `json:"success"`
	User    *models.Identity `json:"user"`
	Code    string           `json:"code"`
	Message string           `json:"message"`
}

// Signup forwards a signup submission.
func (c *Client) Signup(ctx context.Context, username, email, password string) (*models.Identity, error) {
	return c.post(ctx, "/api/signup", signupRequest{Username: username, Email: email, Password: password})
}

// Login forwards a login submission and returns the issued identity.
func (c *Client) Login(ctx context.Context, email, password string) (*models.Identity, error) {
	return c.post(ctx, "/api/login", loginRequest{Email: email, Password: password})
}

func (c *Client) post(ctx context.Context, path string, payload any) (*models.Identity, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Connection refused, DNS failure, or timeout.
		middleware.IncrementUpstreamErrors()
		return nil, apierrors.ErrUpstreamUnavailable
	}
	defer resp.Body.Close()

	var decoded authResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		middleware.IncrementUpstreamErrors()
		return nil, apierrors.ErrUpstreamUnavailable
	}

	if resp.StatusCode >= 400 || !decoded.Success {
		msg := decoded.Message
		if msg == "" {
			msg = "Request failed"
		}
		code := decoded.Code
		if code == "" {
			code = "upstream_error"
		}
		return nil, &apierrors.APIError{Code: code, Message: msg, StatusCode: resp.StatusCode}
	}

	if decoded.User == nil {
		middleware.IncrementUpstreamErrors()
		return nil, apierrors.ErrUpstreamUnavailable
	}
	return decoded.User, nil
}
