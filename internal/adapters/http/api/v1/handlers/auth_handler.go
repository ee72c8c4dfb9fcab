package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/example/identity-service/internal/domain"
	"github.com/example/identity-service/internal/telegramauth"
	"github.com/example/identity-service/internal/usecase"
	res "github.com/example/identity-service/pkg/http"
)

type AuthHandler struct {
	service usecase.Service
}

func NewAuthHandler(s usecase.Service) *AuthHandler { return &AuthHandler{service: s} }

type googleLoginRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required,uuid"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required,uuid"`
}

func (h *AuthHandler) TelegramLogin(c echo.Context) error {
	req := new(telegramauth.Payload)
	if err := decode(c, req); err != nil {
		return invalidRequest(c, err)
	}
	result, err := h.service.LoginTelegram(c.Request().Context(), requestIDFromCtx(c), *req)
	if err != nil {
		return failure(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *AuthHandler) GoogleLogin(c echo.Context) error {
	req := new(googleLoginRequest)
	if err := decode(c, req); err != nil {
		return invalidRequest(c, err)
	}
	result, err := h.service.LoginGoogle(c.Request().Context(), requestIDFromCtx(c), req.IDToken)
	if err != nil {
		return failure(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	req := new(refreshRequest)
	if err := decode(c, req); err != nil {
		return invalidRequest(c, err)
	}
	tokens, err := h.service.Refresh(c.Request().Context(), requestIDFromCtx(c), req.RefreshToken)
	if err != nil {
		return failure(c, err)
	}
	return c.JSON(http.StatusOK, tokens)
}

func (h *AuthHandler) Logout(c echo.Context) error {
	req := new(logoutRequest)
	if err := decode(c, req); err != nil {
		return invalidRequest(c, err)
	}
	if err := h.service.Logout(c.Request().Context(), requestIDFromCtx(c), req.RefreshToken); err != nil {
		return failure(c, err)
	}
	return res.Message(c, http.StatusOK, "Logged out successfully")
}

func (h *AuthHandler) LogoutAll(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	if err := h.service.LogoutAll(c.Request().Context(), requestIDFromCtx(c), userID); err != nil {
		return failure(c, err)
	}
	return res.Message(c, http.StatusOK, "Logged out from all sessions")
}

func (h *AuthHandler) Me(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	user, err := h.service.Profile(c.Request().Context(), requestIDFromCtx(c), userID)
	if err != nil {
		return failure(c, err)
	}
	return c.JSON(http.StatusOK, user.Profile())
}

var errBadPayload = errors.New("invalid payload")

// decode binds and validates req. A bind failure is reported as errBadPayload.
func decode(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return errBadPayload
	}
	return c.Validate(req)
}

func invalidRequest(c echo.Context, err error) error {
	if errors.Is(err, errBadPayload) {
		return res.ErrorJSON(c, http.StatusBadRequest, "bad_request", err.Error(), requestIDFromCtx(c), nil)
	}
	return res.ErrorJSON(c, http.StatusBadRequest, "validation_failed", err.Error(), requestIDFromCtx(c), nil)
}

func failure(c echo.Context, err error) error {
	traceID := requestIDFromCtx(c)
	switch {
	case errors.Is(err, usecase.ErrAuthFailed):
		return res.ErrorJSON(c, http.StatusUnauthorized, "auth_failed", err.Error(), traceID, nil)
	case errors.Is(err, usecase.ErrProviderUnavailable):
		return res.ErrorJSON(c, http.StatusServiceUnavailable, "provider_unavailable", err.Error(), traceID, nil)
	case errors.Is(err, usecase.ErrTryAgain):
		return res.ErrorJSON(c, http.StatusConflict, "conflict", err.Error(), traceID, nil)
	case errors.Is(err, domain.ErrNotFound):
		return res.ErrorJSON(c, http.StatusNotFound, "not_found", "user not found", traceID, nil)
	default:
		return res.ErrorJSON(c, http.StatusInternalServerError, "internal", "internal error", traceID, nil)
	}
}

func requestIDFromCtx(c echo.Context) string {
	if reqID := c.Response().Header().Get(echo.HeaderXRequestID); reqID != "" {
		return reqID
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}
