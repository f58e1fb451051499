package authapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"aetheris-web/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, 0)
}

func TestLogin_Success(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body domain.Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ana@example.com", body.Email)
		assert.Equal(t, "secret-password", body.Password)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"user":{"id":"u-1","email":"ana@example.com","firstName":"Ana","lastName":"Lima"},"tokens":{"accessToken":"at","refreshToken":"rt"}}}`))
	})

	res, err := client.Login(context.Background(), "ana@example.com", "secret-password")

	require.NoError(t, err)
	require.NotNil(t, res.User)
	require.NotNil(t, res.Tokens)
	assert.Equal(t, "u-1", res.User.ID)
	assert.Equal(t, "Ana Lima", res.User.DisplayName())
	assert.Equal(t, "at", res.Tokens.AccessToken)
	assert.Equal(t, "rt", res.Tokens.RefreshToken)
}

func TestLogin_HTTPErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		message    string
	}{
		{"unauthorized_with_message", http.StatusUnauthorized, `{"message":"Invalid email or password"}`, "Invalid email or password"},
		{"bad_request_with_error", http.StatusBadRequest, `{"error":"email is required"}`, "email is required"},
		{"server_error_no_body", http.StatusInternalServerError, ``, ""},
		{"unavailable_html", http.StatusServiceUnavailable, `<html>down</html>`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.body))
			})

			res, err := client.Login(context.Background(), "a@b.co", "x")

			assert.Nil(t, res)
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
			assert.Equal(t, tt.statusCode, apiErr.StatusCode)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestLogin_MissingData(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"ok"}`))
	})

	res, err := client.Login(context.Background(), "a@b.co", "x")

	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestLogin_InvalidJSON(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":`))
	})

	_, err := client.Login(context.Background(), "a@b.co", "x")

	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestLogin_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(url, time.Second)

	res, err := client.Login(context.Background(), "a@b.co", "x")

	assert.Nil(t, res)
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestRefresh_SendsRefreshToken(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/refresh", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "rt-1", body["refreshToken"])
		w.Write([]byte(`{"data":{"accessToken":"at-2","refreshToken":"rt-2"}}`))
	})

	res, err := client.Refresh(context.Background(), "rt-1")

	require.NoError(t, err)
	assert.Equal(t, "at-2", res.AccessToken)
	assert.Equal(t, "rt-2", res.RefreshToken)
}

func TestRefresh_WithoutRotation(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"accessToken":"at-2"}}`))
	})

	res, err := client.Refresh(context.Background(), "rt-1")

	require.NoError(t, err)
	assert.Equal(t, "at-2", res.AccessToken)
	assert.Empty(t, res.RefreshToken)
}

func TestRefresh_MissingData(t *testing.T) {
	bodies := map[string]string{
		"no_data":            `{}`,
		"empty_data":         `{"data":{}}`,
		"empty_access_token": `{"data":{"accessToken":"","refreshToken":"rt-2"}}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			})

			res, err := client.Refresh(context.Background(), "rt-1")

			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestRefresh_ContextCanceled(t *testing.T) {
	release := make(chan struct{})
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Refresh(ctx, "rt-1")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegisterForgotReset(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	var bodies []map[string]string
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		paths = append(paths, r.URL.Path)
		bodies = append(bodies, body)
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"u-9"}}`))
	})
	ctx := context.Background()

	require.NoError(t, client.Register(ctx, domain.Registration{Email: "n@x.io", Password: "pw-123456", FirstName: "N", LastName: "X"}))
	require.NoError(t, client.ForgotPassword(ctx, "n@x.io"))
	require.NoError(t, client.ResetPassword(ctx, "reset-tok", "new-password"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/auth/register", "/auth/forgot-password", "/auth/reset-password"}, paths)
	assert.Equal(t, "N", bodies[0]["firstName"])
	assert.Equal(t, "n@x.io", bodies[1]["email"])
	assert.Equal(t, "reset-tok", bodies[2]["token"])
	assert.Equal(t, "new-password", bodies[2]["password"])
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	client := NewClient("https://api.example.com/v1/", 0)
	assert.Equal(t, "https://api.example.com/v1", client.BaseURL())
}

func TestAPIError_Message(t *testing.T) {
	assert.Equal(t, "auth API returned status 502", (&APIError{StatusCode: 502}).Error())
	assert.Equal(t, "auth API returned status 401: nope", (&APIError{StatusCode: 401, Message: "nope"}).Error())
}
