package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/rtirumala2025/InvestX-Labs/internal/metrics"
	"github.com/rtirumala2025/InvestX-Labs/internal/search"
	"github.com/rtirumala2025/InvestX-Labs/pkg/logger"
)

type SearchHandler struct {
	engine *search.Engine
}

func NewSearchHandler(engine *search.Engine) *SearchHandler {
	return &SearchHandler{engine: engine}
}

func (h *SearchHandler) Search(c *fiber.Ctx) error {
	var req struct {
		Query   string                 `json:"query"`
		Filters map[string]interface{} `json:"filters"`
		Limit   int                    `json:"limit"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	start := time.Now()
	results := h.engine.Search(c.Context(), req.Query, search.Filters(req.Filters), req.Limit)
	metrics.SearchDuration.WithLabelValues("api").Observe(time.Since(start).Seconds())
	metrics.SearchTotal.WithLabelValues("ok").Inc()
	metrics.SearchResultsCount.Observe(float64(len(results)))

	return c.JSON(fiber.Map{
		"query":   req.Query,
		"results": results,
		"count":   len(results),
	})
}

func (h *SearchHandler) RelatedContent(c *fiber.Ctx) error {
	contentID := c.Params("id")
	if contentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Content id is required",
		})
	}

	limit := c.QueryInt("limit", 3)
	results := h.engine.RelatedContent(c.Context(), contentID, limit)

	return c.JSON(fiber.Map{
		"content_id": contentID,
		"related":    results,
	})
}

func (h *SearchHandler) Suggestions(c *fiber.Ctx) error {
	partial := c.Query("q")
	if partial == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "q is required",
		})
	}

	limit := c.QueryInt("limit", 5)
	return c.JSON(fiber.Map{
		"suggestions": h.engine.Suggestions(partial, limit),
	})
}
