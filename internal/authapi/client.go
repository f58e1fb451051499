package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aetheris-web/internal/domain"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	ErrMalformedResponse = errors.New("malformed response from auth API")
)

// maxErrorBody bounds how much of an error response is kept for logging.
const maxErrorBody = 4 << 10

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("auth API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("auth API returned status %d: %s", e.StatusCode, e.Message)
}

// LoginResult is the data part of a successful login response.
type LoginResult struct {
	User   *domain.User      `json:"user"`
	Tokens *domain.TokenPair `json:"tokens"`
}

// RefreshResult is the data part of a successful refresh response.
// RefreshToken is empty when the API does not rotate refresh tokens.
type RefreshResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type envelope[T any] struct {
	Data    *T     `json:"data"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Client talks JSON to the external auth API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new auth API client. A zero timeout leaves outbound
// calls bounded only by the request context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// NewClientWithHTTP creates a client around an existing http.Client.
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login exchanges credentials for a user record and a token pair.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out envelope[LoginResult]
	if err := c.post(ctx, "/auth/login", domain.Credentials{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return nil, ErrMalformedResponse
	}
	return out.Data, nil
}

// Refresh exchanges a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	var out envelope[RefreshResult]
	body := map[string]string{"refreshToken": refreshToken}
	if err := c.post(ctx, "/auth/refresh", body, &out); err != nil {
		return nil, err
	}
	if out.Data == nil || out.Data.AccessToken == "" {
		return nil, ErrMalformedResponse
	}
	return out.Data, nil
}

// Register creates an account. The API's response body is not interpreted.
func (c *Client) Register(ctx context.Context, reg domain.Registration) error {
	return c.post(ctx, "/auth/register", reg, nil)
}

// ForgotPassword asks the API to send a password reset link.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.post(ctx, "/auth/forgot-password", map[string]string{"email": email}, nil)
}

// ResetPassword sets a new password using a reset token.
func (c *Client) ResetPassword(ctx context.Context, resetToken, password string) error {
	body := map[string]string{"token": resetToken, "password": password}
	return c.post(ctx, "/auth/reset-password", body, nil)
}

// Ping checks that the API answers at all. Any HTTP response counts as up.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth API unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}

func (c *Client) post(ctx context.Context, path string, in any, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func newAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		apiErr.Message = parsed.Message
		if apiErr.Message == "" {
			apiErr.Message = parsed.Error
		}
	}
	return apiErr
}
