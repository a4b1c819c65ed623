package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/smukkama/weather-warehouse/internal/reporting"
	"github.com/smukkama/weather-warehouse/internal/warehouse"
)

// Reports is the read side served by the API
type Reports interface {
	DailySummary(ctx context.Context) ([]reporting.DailySummary, error)
	HourlyProfile(ctx context.Context) ([]reporting.HourlyProfile, error)
	HourlyProfileLast7Days(ctx context.Context) ([]reporting.HourlyProfile, error)
	HourlyProfileLast30Days(ctx context.Context) ([]reporting.HourlyProfile, error)
}

// Locations lists the monitored locations
type Locations interface {
	List(ctx context.Context) ([]warehouse.Location, error)
}

type Handler struct {
	reports   Reports
	locations Locations
	logger    *zap.Logger
	startedAt time.Time
}

func NewHandler(reports Reports, locations Locations, logger *zap.Logger) *Handler {
	return &Handler{
		reports:   reports,
		locations: locations,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// GetHealth handles GET /api/v1/health
func (h *Handler) GetHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startedAt).String(),
	})
}

// GetLocations handles GET /api/v1/locations
func (h *Handler) GetLocations(c *fiber.Ctx) error {
	locations, err := h.locations.List(c.UserContext())
	if err != nil {
		return h.fail(c, "Failed to list locations", err)
	}
	return c.JSON(locations)
}

// GetDailySummary handles GET /api/v1/reports/daily-summary
func (h *Handler) GetDailySummary(c *fiber.Ctx) error {
	rows, err := h.reports.DailySummary(c.UserContext())
	if err != nil {
		return h.fail(c, "Failed to build daily summary", err)
	}
	return c.JSON(filterCity(rows, c.Query("city"), func(r reporting.DailySummary) string { return r.City }))
}

// GetHourlyProfile handles GET /api/v1/reports/hourly-profile
func (h *Handler) GetHourlyProfile(c *fiber.Ctx) error {
	return h.hourly(c, h.reports.HourlyProfile)
}

// GetHourlyProfileLast7Days handles GET /api/v1/reports/hourly-profile/last7days
func (h *Handler) GetHourlyProfileLast7Days(c *fiber.Ctx) error {
	return h.hourly(c, h.reports.HourlyProfileLast7Days)
}

// GetHourlyProfileLast30Days handles GET /api/v1/reports/hourly-profile/last30days
func (h *Handler) GetHourlyProfileLast30Days(c *fiber.Ctx) error {
	return h.hourly(c, h.reports.HourlyProfileLast30Days)
}

func (h *Handler) hourly(c *fiber.Ctx, build func(context.Context) ([]reporting.HourlyProfile, error)) error {
	rows, err := build(c.UserContext())
	if err != nil {
		return h.fail(c, "Failed to build hourly profile", err)
	}
	return c.JSON(filterCity(rows, c.Query("city"), func(r reporting.HourlyProfile) string { return r.City }))
}

func (h *Handler) fail(c *fiber.Ctx, msg string, err error) error {
	h.logger.Error(msg, zap.String("path", c.Path()), zap.Error(err))

	code := fiber.StatusInternalServerError
	if errors.Is(err, warehouse.ErrPersistenceUnavailable) {
		code = fiber.StatusServiceUnavailable
	}
	return fiber.NewError(code, msg)
}

func filterCity[R any](rows []R, city string, cityOf func(R) string) []R {
	if city == "" {
		return rows
	}
	filtered := make([]R, 0, len(rows))
	for _, r := range rows {
		if cityOf(r) == city {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
