package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
)

// NewApp creates a Fiber app whose errors are rendered as JSON
func NewApp(readTimeout, writeTimeout time.Duration, log *zap.Logger) *fiber.App {
	return fiber.New(fiber.Config{
		ReadTimeout:           readTimeout,
		WriteTimeout:          writeTimeout,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			if code >= fiber.StatusInternalServerError {
				log.Error("HTTP error",
					zap.String("method", c.Method()),
					zap.String("path", c.Path()),
					zap.Error(err))
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})
}

// SetupRoutes registers middleware, the reporting API and /metrics.
// A nil metrics handler leaves /metrics unregistered.
func SetupRoutes(app *fiber.App, handler *Handler, metrics http.Handler) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time} ${locals:requestid} ${status} - ${method} ${path}\n",
		TimeFormat: time.RFC3339,
	}))

	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics))
	}

	api := app.Group("/api/v1")
	api.Get("/health", handler.GetHealth)
	api.Get("/locations", handler.GetLocations)

	reports := api.Group("/reports")
	reports.Get("/daily-summary", handler.GetDailySummary)
	reports.Get("/hourly-profile", handler.GetHourlyProfile)
	reports.Get("/hourly-profile/last7days", handler.GetHourlyProfileLast7Days)
	reports.Get("/hourly-profile/last30days", handler.GetHourlyProfileLast30Days)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Endpoint not found",
			"path":  c.Path(),
		})
	})
}
