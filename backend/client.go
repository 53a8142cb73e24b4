package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	goAuthClient "github.com/MrEthical07/goAuthClient"
	"github.com/google/uuid"
)

const maxResponseBytes = 1 << 20

// authMode selects how a 401 is classified.
type authMode uint8

const (
	// authCredential endpoints authenticate with something in the body
	// (password, refresh token, one-time token).
	authCredential authMode = iota
	// authBearer endpoints authenticate with the access token.
	authBearer
)

// Client calls the authentication backend over HTTP.
type Client struct {
	baseURL   *url.URL
	paths     goAuthClient.BackendPaths
	http      *http.Client
	userAgent string
	logger    *slog.Logger
	now       func() time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. Its Timeout is
// overridden by BackendConfig.Timeout when that is set.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger logs every request at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

var _ goAuthClient.Backend = (*Client)(nil)

// NewClient returns a Client for cfg.
func NewClient(cfg goAuthClient.BackendConfig, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid backend base URL %q", cfg.BaseURL)
	}

	c := &Client{
		baseURL:   base,
		paths:     cfg.Paths,
		http:      &http.Client{},
		userAgent: cfg.UserAgent,
		logger:    slog.New(slog.DiscardHandler),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if cfg.Timeout > 0 {
		hc := *c.http
		hc.Timeout = cfg.Timeout
		c.http = &hc
	}
	return c, nil
}

type grantBody struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	TokenType    string            `json:"token_type"`
	ExpiresIn    int64             `json:"expires_in"`
	User         goAuthClient.User `json:"user"`
}

func (g grantBody) grant() goAuthClient.Grant {
	return goAuthClient.Grant{
		AccessToken:  g.AccessToken,
		RefreshToken: g.RefreshToken,
		TokenType:    g.TokenType,
		ExpiresIn:    time.Duration(g.ExpiresIn) * time.Second,
		User:         g.User,
	}
}

// CurrentUser fetches the profile of the account owning accessToken.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (goAuthClient.User, error) {
	var user goAuthClient.User
	if err := c.do(ctx, http.MethodGet, c.paths.CurrentUser, authBearer, accessToken, nil, &user); err != nil {
		return goAuthClient.User{}, err
	}
	if user.ID == "" {
		return goAuthClient.User{}, malformed("user record without id")
	}
	return user, nil
}

// Login exchanges credentials for a Grant.
func (c *Client) Login(ctx context.Context, creds goAuthClient.Credentials) (goAuthClient.Grant, error) {
	return c.grant(ctx, c.paths.Login, creds)
}

// Refresh exchanges a refresh token for a new Grant.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (goAuthClient.Grant, error) {
	return c.grant(ctx, c.paths.Refresh, map[string]string{"refresh_token": refreshToken})
}

func (c *Client) grant(ctx context.Context, path string, body any) (goAuthClient.Grant, error) {
	var out grantBody
	if err := c.do(ctx, http.MethodPost, path, authCredential, "", body, &out); err != nil {
		return goAuthClient.Grant{}, err
	}
	if out.AccessToken == "" {
		return goAuthClient.Grant{}, malformed("token response without access_token")
	}
	return out.grant(), nil
}

// Register creates an account. The backend sends a verification email.
func (c *Client) Register(ctx context.Context, req goAuthClient.RegisterRequest) error {
	return c.do(ctx, http.MethodPost, c.paths.Register, authCredential, "", req, nil)
}

// Logout revokes the session behind accessToken on the backend.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, c.paths.Logout, authBearer, accessToken, nil, nil)
}

// UpdateProfile applies the non-nil fields of update and returns the stored user.
func (c *Client) UpdateProfile(ctx context.Context, accessToken string, update goAuthClient.ProfileUpdate) (goAuthClient.User, error) {
	var user goAuthClient.User
	if err := c.do(ctx, http.MethodPut, c.paths.CurrentUser, authBearer, accessToken, update, &user); err != nil {
		return goAuthClient.User{}, err
	}
	if user.ID == "" {
		return goAuthClient.User{}, malformed("user record without id")
	}
	return user, nil
}

// VerifyEmail confirms an address with the token from the verification email.
func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, c.paths.VerifyEmail, authCredential, "", map[string]string{"token": token}, nil)
}

// RequestPasswordReset asks the backend to email a reset token to email.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, c.paths.ForgotPassword, authCredential, "", map[string]string{"email": email}, nil)
}

// ResetPassword sets a new password using a reset token.
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	body := map[string]string{"token": token, "new_password": newPassword}
	return c.do(ctx, http.MethodPost, c.paths.ResetPassword, authCredential, "", body, nil)
}

// ChangePassword returns a Grant only when the response carries a new
// access token.
func (c *Client) ChangePassword(ctx context.Context, accessToken string, req goAuthClient.ChangePasswordRequest) (*goAuthClient.Grant, error) {
	var out grantBody
	if err := c.do(ctx, http.MethodPost, c.paths.ChangePassword, authBearer, accessToken, req, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, nil
	}
	g := out.grant()
	return &g, nil
}

func (c *Client) do(ctx context.Context, method, path string, mode authMode, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &goAuthClient.Error{Kind: goAuthClient.ErrValidation, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return &goAuthClient.Error{Kind: goAuthClient.ErrNetwork, Err: fmt.Errorf("build request: %w", err)}
	}
	requestID, ok := goAuthClient.RequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.NewString()
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if mode == authBearer {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.DebugContext(ctx, "goAuthClient: backend request failed",
			slog.String("method", method), slog.String("path", path),
			slog.String("request_id", requestID), slog.String("error", err.Error()))
		return &goAuthClient.Error{Kind: goAuthClient.ErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.logger.DebugContext(ctx, "goAuthClient: backend request",
		slog.String("method", method), slog.String("path", path),
		slog.Int("status", resp.StatusCode), slog.String("request_id", requestID),
		slog.Duration("duration", c.now().Sub(start)))
	if err != nil {
		return &goAuthClient.Error{Kind: goAuthClient.ErrNetwork, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &goAuthClient.Error{
			Kind:    classify(resp.StatusCode, mode),
			Status:  resp.StatusCode,
			Message: detailMessage(data),
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &goAuthClient.Error{Kind: goAuthClient.ErrNetwork, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func classify(status int, mode authMode) error {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return goAuthClient.ErrValidation
	case status == http.StatusUnauthorized && mode == authBearer:
		return goAuthClient.ErrTokenRejected
	case (status == http.StatusUnauthorized || status == http.StatusForbidden) && mode == authCredential:
		return goAuthClient.ErrAuthentication
	default:
		return goAuthClient.ErrBackend
	}
}

// detailMessage extracts the human-readable message from an error body.
// detail may be a string, a list of {"msg": ...} items or an object with a
// message field.
func detailMessage(data []byte) string {
	var envelope struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return ""
	}

	if len(envelope.Detail) > 0 {
		var text string
		if err := json.Unmarshal(envelope.Detail, &text); err == nil {
			return text
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(envelope.Detail, &items); err == nil {
			msgs := make([]string, 0, len(items))
			for _, item := range items {
				if item.Msg != "" {
					msgs = append(msgs, item.Msg)
				}
			}
			return strings.Join(msgs, "; ")
		}
		var obj struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Detail, &obj); err == nil && obj.Message != "" {
			return obj.Message
		}
	}
	if envelope.Message != "" {
		return envelope.Message
	}
	return envelope.Error
}

func malformed(reason string) error {
	return &goAuthClient.Error{Kind: goAuthClient.ErrNetwork, Err: errors.New(reason)}
}
