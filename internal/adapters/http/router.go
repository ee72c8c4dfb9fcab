package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/example/identity-service/config"
	v1 "github.com/example/identity-service/internal/adapters/http/api/v1"
	internalhttp "github.com/example/identity-service/internal/adapters/http/internal"
	"github.com/example/identity-service/internal/adapters/http/validation"
)

type Router struct {
	cfg       *config.Config
	apiRouter *v1.Router
	metrics   http.Handler
}

func NewRouter(cfg *config.Config, apiRouter *v1.Router, metrics http.Handler) *Router {
	return &Router{cfg: cfg, apiRouter: apiRouter, metrics: metrics}
}

func (r *Router) Setup(e *echo.Echo) {
	e.HideBanner = true
	e.Validator = validation.New()
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: r.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	internalhttp.Register(e, r.metrics)
	apiGroup := e.Group(r.cfg.HTTPBasePath)
	r.apiRouter.Register(apiGroup)
}
