package providers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newActiveRelay(t *testing.T) *RelayServer {
	t.Helper()
	r := NewRelayServer(nil, zerolog.Nop())
	require.NoError(t, r.Activate())
	t.Cleanup(func() { _ = r.Deactivate() })
	return r
}

func doJSON(t *testing.T, r *RelayServer, method, target, body string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := r.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestInfoRoute(t *testing.T) {
	r := newActiveRelay(t)
	status, body := doJSON(t, r, http.MethodGet, "/ws/info", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["websocket"])
	assert.Equal(t, "/ws", body["endpoint"])
	assert.EqualValues(t, 0, body["clients"])
}

func TestListRoutesWhenEmpty(t *testing.T) {
	r := newActiveRelay(t)

	status, body := doJSON(t, r, http.MethodGet, "/ws/clients", "")
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["count"])

	status, body = doJSON(t, r, http.MethodGet, "/ws/channels", "")
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["count"])
}

func TestChannelUpdateRoute(t *testing.T) {
	r := newActiveRelay(t)

	status, body := doJSON(t, r, http.MethodPost, "/ws/channels/general/update", `{"name":"General","memberCount":3}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["published"])
	assert.Equal(t, "general", body["channel"])

	status, body = doJSON(t, r, http.MethodPost, "/ws/channels/general/update", `{not json`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_body", body["error"])
}

func TestDropUnknownClient(t *testing.T) {
	r := newActiveRelay(t)
	status, body := doJSON(t, r, http.MethodDelete, "/ws/clients/ghost", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body["error"])
}

func TestServeRequiresActivate(t *testing.T) {
	r := NewRelayServer(nil, zerolog.Nop())
	assert.ErrorIs(t, r.Serve(nil), ErrNotActive)
	assert.False(t, r.IsActive())
	assert.NoError(t, r.Deactivate())
}
