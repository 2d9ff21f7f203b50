package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"todoflow/application/services"
	"todoflow/domain/core/entities"
	pkgerrors "todoflow/pkg/errors"
	"todoflow/pkg/observability"
	"todoflow/pkg/utils"
)

// RefreshCookieName is the cookie carrying the refresh token.
const RefreshCookieName = "refresh_token"

// AuthUseCases is what the auth endpoints need from the application layer.
type AuthUseCases interface {
	Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
}

var _ AuthUseCases = (*services.AuthService)(nil)

// AuthHandler handles login, logout and token refresh.
type AuthHandler struct {
	auth         AuthUseCases
	errorHandler *pkgerrors.ErrorHandler
	metrics      *observability.Collector
	logger       *zap.Logger
	cookieSecure bool
}

// NewAuthHandler creates a new auth handler. metrics may be nil.
func NewAuthHandler(
	auth AuthUseCases,
	errorHandler *pkgerrors.ErrorHandler,
	metrics *observability.Collector,
	logger *zap.Logger,
	cookieSecure bool,
) *AuthHandler {
	return &AuthHandler{
		auth:         auth,
		errorHandler: errorHandler,
		metrics:      metrics,
		logger:       logger,
		cookieSecure: cookieSecure,
	}
}

// LoginRequest represents the request body for a login. AccessToken is the
// identity provider's token; RefreshToken is the provider's own refresh
// token and is accepted but not used.
type LoginRequest struct {
	UID          string  `json:"uid" validate:"required,max=128"`
	Email        string  `json:"email" validate:"omitempty,email"`
	DisplayName  string  `json:"displayName" validate:"max=200"`
	PhotoURL     *string `json:"photoURL,omitempty" validate:"omitempty,url"`
	AccessToken  string  `json:"accessToken" validate:"required"`
	RefreshToken string  `json:"refreshToken"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	User                 *entities.User `json:"user"`
	AccessToken          string         `json:"accessToken"`
	AccessTokenExpiresAt time.Time      `json:"accessTokenExpiresAt"`
	RefreshToken         string         `json:"refreshToken"`
}

// TokenResponse is returned by a successful refresh.
type TokenResponse struct {
	AccessToken          string    `json:"accessToken"`
	AccessTokenExpiresAt time.Time `json:"accessTokenExpiresAt"`
	RefreshToken         string    `json:"refreshToken"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	result, err := h.auth.Login(r.Context(), services.LoginInput{
		UID:           req.UID,
		Email:         req.Email,
		DisplayName:   req.DisplayName,
		PhotoURL:      req.PhotoURL,
		IdentityToken: req.AccessToken,
	})
	if err != nil {
		h.metrics.RecordLogin("failure")
		h.errorHandler.Handle(w, r, err)
		return
	}
	h.metrics.RecordLogin("success")

	h.setRefreshCookie(w, result.Tokens.RefreshToken, result.Tokens.RefreshExpiresAt)
	utils.RespondJSON(w, http.StatusOK, LoginResponse{
		User:                 result.User,
		AccessToken:          result.Tokens.AccessToken,
		AccessTokenExpiresAt: result.Tokens.AccessExpiresAt,
		RefreshToken:         result.Tokens.RefreshToken,
	})
}

// Refresh handles POST /auth/refresh-token. The refresh token is read from
// the cookie, falling back to the body.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, err := h.refreshTokenFrom(w, r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	pair, err := h.auth.Refresh(r.Context(), token)
	if err != nil {
		h.metrics.RecordRefresh("rejected")
		if pkgerrors.IsUnauthorized(err) {
			h.clearRefreshCookie(w)
		}
		h.errorHandler.Handle(w, r, err)
		return
	}
	h.metrics.RecordRefresh("rotated")

	h.setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiresAt)
	utils.RespondJSON(w, http.StatusOK, TokenResponse{
		AccessToken:          pair.AccessToken,
		AccessTokenExpiresAt: pair.AccessExpiresAt,
		RefreshToken:         pair.RefreshToken,
	})
}

// Logout handles POST /auth/logout. It succeeds even without a token so a
// client can always clear its state.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, err := h.refreshTokenFrom(w, r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if err := h.auth.Logout(r.Context(), token); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) refreshTokenFrom(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(RefreshCookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}
	if r.ContentLength == 0 {
		return "", nil
	}
	var req refreshRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		return "", err
	}
	return req.RefreshToken, nil
}

func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     "/auth",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
