package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/example/identity-service/internal/adapters/http/api/v1/handlers"
)

type Router struct {
	handlers *handlers.AuthHandler
	authMW   echo.MiddlewareFunc
}

func NewRouter(h *handlers.AuthHandler, authMW echo.MiddlewareFunc) *Router {
	return &Router{handlers: h, authMW: authMW}
}

func (r *Router) Register(g *echo.Group) {
	auth := g.Group("/auth")
	auth.POST("/telegram", r.handlers.TelegramLogin)
	auth.POST("/google", r.handlers.GoogleLogin)
	auth.POST("/refresh", r.handlers.Refresh)
	auth.POST("/logout", r.handlers.Logout)
	auth.POST("/logout-all", r.handlers.LogoutAll, r.authMW)

	user := g.Group("/user", r.authMW)
	user.GET("/me", r.handlers.Me)
}
