package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"aetheris-web/internal/authapi"
	"aetheris-web/internal/domain"
	"aetheris-web/internal/middleware"
	"aetheris-web/internal/observability"
	"aetheris-web/internal/security"
)

// DefaultCallbackURL is where a login lands without a usable callbackUrl.
const DefaultCallbackURL = "/dashboard"

// Authenticator is the credential and account side of the auth service.
type Authenticator interface {
	Authorize(ctx context.Context, email, password string) (*domain.Identity, error)
	Register(ctx context.Context, reg domain.Registration) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, resetToken, password string) error
}

// Sessions starts and ends browser sessions.
type Sessions interface {
	Begin(ctx context.Context, w http.ResponseWriter, id *domain.Identity) (domain.Token, error)
	End(ctx context.Context, w http.ResponseWriter, r *http.Request) error
	LoginFailed(ctx context.Context, email string)
}

// AuthHandler handles the /api/auth endpoints
type AuthHandler struct {
	auth     Authenticator
	sessions Sessions
	csrf     *security.TokenManager
	secure   bool
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(auth Authenticator, sessions Sessions, csrf *security.TokenManager, secure bool) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		sessions: sessions,
		csrf:     csrf,
		secure:   secure,
	}
}

// LoginRequest represents login request
type LoginRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	CallbackURL string `json:"callbackUrl"`
}

// LoginResponse represents login response
type LoginResponse struct {
	OK   bool               `json:"ok"`
	User domain.SessionUser `json:"user"`
	URL  string             `json:"url"`
}

// RegisterRequest represents registration request
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// CSRF issues the double-submit token. An existing cookie is reused so that
// several open tabs keep working.
func (h *AuthHandler) CSRF(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(middleware.CSRFCookieName); err == nil && c.Value != "" {
		token = c.Value
	} else {
		token, err = h.csrf.Generate()
		if err != nil {
			observability.FromContext(r.Context()).Error("failed to generate CSRF token",
				slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CSRFCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}

// Login authenticates credentials and starts a session
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeRequest(r, &req, func(f url.Values) {
		req.Email, req.Password, req.CallbackURL = f.Get("email"), f.Get("password"), f.Get("callbackUrl")
	}); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := r.Context()
	id, err := h.auth.Authorize(ctx, req.Email, req.Password)
	if err != nil {
		h.sessions.LoginFailed(ctx, strings.TrimSpace(req.Email))
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	tok, err := h.sessions.Begin(ctx, w, id)
	if err != nil {
		observability.FromContext(ctx).Error("failed to start session",
			slog.String("user_id", id.ID),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		OK:   true,
		User: domain.SessionUser{ID: tok.ID, Name: tok.Name, Email: tok.Email},
		URL:  SafeCallbackURL(req.CallbackURL),
	})
}

// Logout ends the session, if any
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.End(r.Context(), w, r); err != nil {
		observability.FromContext(r.Context()).Error("failed to end session",
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to logout")
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// Session returns the session view, or an empty object without a session.
// Errored sessions are returned with their error flag set.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	out, ok := middleware.GetSession(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, out.View())
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeRequest(r, &req, func(f url.Values) {
		req.Email, req.Password = f.Get("email"), f.Get("password")
		req.FirstName, req.LastName = f.Get("firstName"), f.Get("lastName")
	}); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := h.auth.Register(r.Context(), domain.Registration{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.writeAccountError(w, r, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, okResponse{OK: true})
}

// ForgotPassword always answers 202 for a well-formed address.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := decodeRequest(r, &req, func(f url.Values) {
		req.Email = f.Get("email")
	}); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		h.writeAccountError(w, r, "forgot_password", err)
		return
	}
	writeJSON(w, http.StatusAccepted, okResponse{OK: true})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decodeRequest(r, &req, func(f url.Values) {
		req.Token, req.Password = f.Get("token"), f.Get("password")
	}); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.auth.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		h.writeAccountError(w, r, "reset_password", err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// writeAccountError maps validation errors to 400 and passes client errors
// of the auth API through. Anything else is a bad gateway.
func (h *AuthHandler) writeAccountError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, domain.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, "Invalid input")
		return
	}

	var apiErr *authapi.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		writeError(w, apiErr.StatusCode, msg)
		return
	}

	observability.FromContext(r.Context()).Error("auth API request failed",
		slog.String("operation", op),
		slog.String("error", err.Error()))
	writeError(w, http.StatusBadGateway, "Auth service unavailable")
}

// SafeCallbackURL keeps same-origin relative paths and falls back to the
// dashboard for anything else.
func SafeCallbackURL(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, `/\`) {
		return DefaultCallbackURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return DefaultCallbackURL
	}
	return u.RequestURI()
}

// decodeRequest reads a JSON body, or a urlencoded form through fromForm.
func decodeRequest(r *http.Request, v any, fromForm func(url.Values)) error {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return err
		}
		fromForm(r.PostForm)
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
