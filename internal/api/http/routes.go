package httpapi

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-stream-pipeline/internal/orchestrator"
	"github.com/i474232898/weather-stream-pipeline/internal/pipeline"
	"github.com/i474232898/weather-stream-pipeline/internal/store"
)

var validate = validator.New()

// RegisterRoutes wires the operational HTTP handlers into the Fiber app.
// This surface is inspection-only; the pipeline itself is driven by the
// scheduler, not by HTTP.
func RegisterRoutes(app *fiber.App, holder *orchestrator.ReportHolder, memStore *store.MemoryStore) {
	v1 := app.Group("/api/v1")

	v1.Get("/report/latest", func(c *fiber.Ctx) error {
		report, ok := holder.Latest()
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no cycle has completed yet")
		}
		return c.JSON(report)
	})

	v1.Get("/records/recent", func(c *fiber.Ctx) error {
		var req recentQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		records, err := memStore.GetRecent(req.Location, pipeline.Category(req.Category), req.Limit)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no records for requested location and category")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch records")
		}

		return c.JSON(fiber.Map{
			"location": req.Location,
			"category": req.Category,
			"records":  records,
		})
	})
}

// recentQuery holds query parameters for the recent-records endpoint.
type recentQuery struct {
	Location string `validate:"required"`
	Category string `validate:"required,oneof=CurrentConditions Forecast Alerts AirQuality"`
	Limit    int    `validate:"min=1,max=100"`
}

func (q *recentQuery) bind(c *fiber.Ctx) error {
	q.Location = c.Query("location")
	q.Category = c.Query("category")
	q.Limit = c.QueryInt("limit", 20)
	return validate.Struct(q)
}
