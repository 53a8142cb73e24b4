package goAuthClient

import (
	"log/slog"
	"net/http"
)

// Transport returns an http.RoundTripper that attaches the session bearer
// token to every request. A 401 response is reported to HandleRejection and
// returned unchanged; the request is not retried. A nil base uses
// http.DefaultTransport.
func (m *Manager) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &bearerTransport{manager: m, base: base}
}

type bearerTransport struct {
	manager *Manager
	base    http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	token, err := t.manager.AccessToken(ctx)
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}

	out := req.Clone(ctx)
	out.Header.Set("Authorization", "Bearer "+token)
	if id, ok := RequestIDFromContext(ctx); ok && out.Header.Get("X-Request-ID") == "" {
		out.Header.Set("X-Request-ID", id)
	}

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		if rerr := t.manager.HandleRejection(ctx, token); rerr != nil {
			t.manager.logger.DebugContext(ctx, "goAuthClient: refresh after 401 failed", slog.String("error", rerr.Error()))
		}
	}
	return resp, nil
}
