package stub_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundplan/client/internal/logging"
	"github.com/groundplan/client/internal/stub"
)

func newStubServer(t *testing.T, cfg stub.Config) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(stub.NewServer(cfg, logging.NewNop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAuthEndpoints(t *testing.T) {
	srv := newStubServer(t, stub.Config{})
	register := srv.URL + "/api/v1/auth/register"

	t.Run("rejects short passwords", func(t *testing.T) {
		resp := post(t, register, `{"email":"a@b.c","password":"short"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("registers once", func(t *testing.T) {
		resp := post(t, register, `{"email":"a@b.c","password":"longenough"}`)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		resp = post(t, register, `{"email":"a@b.c","password":"longenough"}`)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("rejects wrong password", func(t *testing.T) {
		resp := post(t, srv.URL+"/api/v1/auth/login", `{"email":"a@b.c","password":"wrong-password"}`)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects unknown refresh token", func(t *testing.T) {
		resp := post(t, srv.URL+"/api/v1/auth/refresh", `{"refresh_token":"bogus"}`)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestSessionEndpointsRequireAuth(t *testing.T) {
	srv := newStubServer(t, stub.Config{})

	resp, err := http.Get(srv.URL + "/api/v1/session")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/session", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestStreamRejectsBadCredentials(t *testing.T) {
	srv := newStubServer(t, stub.Config{})
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"/ws/chat/sess_x?token=bogus", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	srv := newStubServer(t, stub.Config{RateLimit: 2, Burst: 2})

	var limited bool
	for i := 0; i < 10; i++ {
		resp, err := http.Get(srv.URL + "/health")
		require.NoError(t, err)
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited, "burst of requests was never limited")
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newStubServer(t, stub.Config{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
