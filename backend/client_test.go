package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	goAuthClient "github.com/MrEthical07/goAuthClient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := goAuthClient.DefaultConfig().Backend
	cfg.BaseURL = srv.URL
	cfg.Timeout = time.Second
	c, err := NewClient(cfg)
	require.NoError(t, err)
	return c
}

func TestNewClientRejectsBadBaseURL(t *testing.T) {
	cfg := goAuthClient.DefaultConfig().Backend
	cfg.BaseURL = "not a url"
	_, err := NewClient(cfg)
	require.Error(t, err)
}

func TestLoginSendsCredentialsAndDecodesGrant(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@b.com", body["username"])
		assert.Equal(t, "x", body["password"])

		_, _ = w.Write([]byte(`{"access_token":"T1","refresh_token":"R1","token_type":"bearer","expires_in":900,"user":{"id":"u1","email":"a@b.com","role":"admin"}}`))
	})

	grant, err := c.Login(context.Background(), goAuthClient.Credentials{Identifier: "a@b.com", Secret: "x"})
	require.NoError(t, err)
	assert.Equal(t, "T1", grant.AccessToken)
	assert.Equal(t, "R1", grant.RefreshToken)
	assert.Equal(t, 15*time.Minute, grant.ExpiresIn)
	assert.Equal(t, "u1", grant.User.ID)
	assert.Equal(t, "admin", grant.User.Role)
}

func TestLoginInvalidCredentialsCarriesDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Invalid credentials"}`))
	})

	_, err := c.Login(context.Background(), goAuthClient.Credentials{Identifier: "a@b.com", Secret: "bad"})
	require.ErrorIs(t, err, goAuthClient.ErrAuthentication)
	assert.Equal(t, "Invalid credentials", goAuthClient.ErrorMessage(err))

	var typed *goAuthClient.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, http.StatusUnauthorized, typed.Status)
}

func TestRequestIDFromContextIsForwarded(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "req-42", r.Header.Get("X-Request-ID"))
		_, _ = w.Write([]byte(`{"id":"u1","email":"a@b.com"}`))
	})

	ctx := goAuthClient.WithRequestID(context.Background(), "req-42")
	_, err := c.CurrentUser(ctx, "T1")
	require.NoError(t, err)
}

func TestCurrentUserSendsBearer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/auth/me", r.URL.Path)
		assert.Equal(t, "Bearer T1", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"u1","email":"a@b.com","email_verified":true,"usage":{"requests":3}}`))
	})

	user, err := c.CurrentUser(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.True(t, user.EmailVerified)
	assert.Equal(t, int64(3), user.Usage["requests"])
}

func TestBearerEndpointUnauthorizedIsTokenRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Token expired"}`))
	})

	_, err := c.CurrentUser(context.Background(), "T1")
	require.ErrorIs(t, err, goAuthClient.ErrTokenRejected)
	assert.NotErrorIs(t, err, goAuthClient.ErrAuthentication)
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		mode   authMode
		want   error
	}{
		{http.StatusBadRequest, authCredential, goAuthClient.ErrValidation},
		{http.StatusUnprocessableEntity, authBearer, goAuthClient.ErrValidation},
		{http.StatusUnauthorized, authCredential, goAuthClient.ErrAuthentication},
		{http.StatusForbidden, authCredential, goAuthClient.ErrAuthentication},
		{http.StatusUnauthorized, authBearer, goAuthClient.ErrTokenRejected},
		{http.StatusForbidden, authBearer, goAuthClient.ErrBackend},
		{http.StatusConflict, authCredential, goAuthClient.ErrBackend},
		{http.StatusInternalServerError, authBearer, goAuthClient.ErrBackend},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classify(tt.status, tt.mode), "status %d mode %d", tt.status, tt.mode)
	}
}

func TestDetailMessageShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"string", `{"detail":"Email already registered"}`, "Email already registered"},
		{"list", `{"detail":[{"loc":["body","email"],"msg":"invalid email"},{"msg":"password too short"}]}`, "invalid email; password too short"},
		{"object", `{"detail":{"message":"locked"}}`, "locked"},
		{"message field", `{"message":"nope"}`, "nope"},
		{"not json", `<html>bad gateway</html>`, ""},
		{"empty", ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detailMessage([]byte(tt.body)))
		})
	}
}

func TestUndecodableSuccessIsNetworkError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":`))
	})

	_, err := c.Refresh(context.Background(), "R1")
	require.ErrorIs(t, err, goAuthClient.ErrNetwork)
}

func TestGrantWithoutAccessTokenIsNetworkError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"refresh_token":"R2"}`))
	})

	_, err := c.Refresh(context.Background(), "R1")
	require.ErrorIs(t, err, goAuthClient.ErrNetwork)
}

func TestRefreshSendsRefreshToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/refresh", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "R1", body["refresh_token"])
		_, _ = w.Write([]byte(`{"access_token":"T2","refresh_token":"R2","user":{"id":"u1","email":"a@b.com"}}`))
	})

	grant, err := c.Refresh(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, "T2", grant.AccessToken)
	assert.Equal(t, "R2", grant.RefreshToken)
}

func TestRefreshRejectedIsAuthentication(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Refresh(context.Background(), "R1")
	require.ErrorIs(t, err, goAuthClient.ErrAuthentication)
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	cfg := goAuthClient.DefaultConfig().Backend
	cfg.BaseURL = srv.URL
	srv.Close()

	c, err := NewClient(cfg)
	require.NoError(t, err)
	_, err = c.CurrentUser(context.Background(), "T1")
	require.ErrorIs(t, err, goAuthClient.ErrNetwork)
}

func TestTimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	cfg := goAuthClient.DefaultConfig().Backend
	cfg.BaseURL = srv.URL
	cfg.Timeout = 50 * time.Millisecond
	c, err := NewClient(cfg)
	require.NoError(t, err)

	_, err = c.CurrentUser(context.Background(), "T1")
	require.ErrorIs(t, err, goAuthClient.ErrNetwork)
}

func TestUpdateProfileSendsOnlySetFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"name": "Ann"}, body)
		_, _ = w.Write([]byte(`{"id":"u1","email":"a@b.com","name":"Ann"}`))
	})

	name := "Ann"
	user, err := c.UpdateProfile(context.Background(), "T1", goAuthClient.ProfileUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Ann", user.Name)
}

func TestChangePasswordWithoutTokensReturnsNilGrant(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/change-password", r.URL.Path)
		_, _ = w.Write([]byte(`{"detail":"Password updated"}`))
	})

	grant, err := c.ChangePassword(context.Background(), "T1", goAuthClient.ChangePasswordRequest{CurrentPassword: "a", NewPassword: "b"})
	require.NoError(t, err)
	assert.Nil(t, grant)
}

func TestChangePasswordWithTokensReturnsGrant(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"T9","refresh_token":"R9","user":{"id":"u1","email":"a@b.com"}}`))
	})

	grant, err := c.ChangePassword(context.Background(), "T1", goAuthClient.ChangePasswordRequest{CurrentPassword: "a", NewPassword: "b"})
	require.NoError(t, err)
	require.NotNil(t, grant)
	assert.Equal(t, "T9", grant.AccessToken)
}

func TestStatelessEndpoints(t *testing.T) {
	seen := map[string]map[string]string{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		seen[r.URL.Path] = body
		w.WriteHeader(http.StatusNoContent)
	})

	ctx := context.Background()
	require.NoError(t, c.VerifyEmail(ctx, "vtok"))
	require.NoError(t, c.RequestPasswordReset(ctx, "a@b.com"))
	require.NoError(t, c.ResetPassword(ctx, "rtok", "new-secret"))
	require.NoError(t, c.Register(ctx, goAuthClient.RegisterRequest{Email: "a@b.com", Password: "pw"}))

	assert.Equal(t, "vtok", seen["/auth/verify-email"]["token"])
	assert.Equal(t, "a@b.com", seen["/auth/forgot-password"]["email"])
	assert.Equal(t, "rtok", seen["/auth/reset-password"]["token"])
	assert.Equal(t, "new-secret", seen["/auth/reset-password"]["new_password"])
	assert.Equal(t, "pw", seen["/auth/register"]["password"])
}

func TestRegisterConflictIsBackendError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"detail":"Email already registered"}`))
	})

	err := c.Register(context.Background(), goAuthClient.RegisterRequest{Email: "a@b.com", Password: "pw"})
	require.ErrorIs(t, err, goAuthClient.ErrBackend)
	assert.Equal(t, "Email already registered", goAuthClient.ErrorMessage(err))
}
