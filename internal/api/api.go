// Package api exposes the HTTP read and admin surface.
package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"feedhub/internal/config"
	"feedhub/internal/query"
	"feedhub/internal/storage"
)

// Handler bundles the dependencies of the HTTP handlers.
type Handler struct {
	store  storage.Storage
	query  *query.Service
	apiKey string
	log    *slog.Logger
}

// NewRouter builds the Echo instance with all routes and middleware registered.
func NewRouter(cfg *config.Config, store storage.Storage, q *query.Service, log *slog.Logger) *echo.Echo {
	h := &Handler{store: store, query: q, apiKey: cfg.APIKey, log: log}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, "X-API-Key"},
	}))
	e.Use(middleware.BodyLimit("10K"))
	e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool { return c.Path() == "/health" },
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(100.0 / 60.0), // 100 requests per minute per IP
			Burst:     100,
			ExpiresIn: time.Minute,
		}),
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	api := e.Group("/api")
	api.GET("/articles", h.listArticles)
	api.GET("/sources", h.listSources)
	api.POST("/sources", h.upsertSources, h.requireAPIKey)

	return e
}

// requireAPIKey guards admin writes. When no key is configured the
// endpoint is open, matching the original development behavior.
func (h *Handler) requireAPIKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.apiKey == "" {
			return next(c)
		}
		key := c.Request().Header.Get("X-API-Key")
		if key == "" {
			key = strings.TrimPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
		}
		if key != h.apiKey {
			return c.JSON(http.StatusUnauthorized, errorResponse("Invalid or missing API key"))
		}
		return next(c)
	}
}

func errorResponse(msg string) map[string]any {
	return map[string]any{"success": false, "error": msg}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
