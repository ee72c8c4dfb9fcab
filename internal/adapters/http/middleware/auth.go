package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/example/identity-service/internal/tokenverify"
	res "github.com/example/identity-service/pkg/http"
)

type AuthMiddleware struct {
	parser tokenverify.Parser
	now    func() time.Time
}

func NewAuthMiddleware(parser tokenverify.Parser) *AuthMiddleware {
	return &AuthMiddleware{parser: parser, now: time.Now}
}

func (m *AuthMiddleware) Handler(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authz := c.Request().Header.Get(echo.HeaderAuthorization)
		parts := strings.SplitN(authz, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return res.ErrorJSON(c, http.StatusUnauthorized, "unauthorized", "missing token", requestIDFromCtx(c), nil)
		}
		result, err := tokenverify.Verify(m.parser, strings.TrimSpace(parts[1]), m.now)
		if err != nil {
			return res.ErrorJSON(c, http.StatusUnauthorized, "unauthorized", reason(err), requestIDFromCtx(c), nil)
		}
		c.Set("user_id", result.UserID)
		c.Set("telegram_id", result.TelegramID)
		c.Set("google_id", result.GoogleID)
		return next(c)
	}
}

func reason(err error) string {
	switch {
	case errors.Is(err, tokenverify.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, tokenverify.ErrSubjectMissing):
		return "subject missing"
	default:
		return "invalid token"
	}
}

func requestIDFromCtx(c echo.Context) string {
	if reqID := c.Response().Header().Get(echo.HeaderXRequestID); reqID != "" {
		return reqID
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}
