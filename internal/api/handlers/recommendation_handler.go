package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/rtirumala2025/InvestX-Labs/internal/metrics"
	"github.com/rtirumala2025/InvestX-Labs/internal/recommend"
	"github.com/rtirumala2025/InvestX-Labs/pkg/logger"
)

type RecommendationHandler struct {
	engine *recommend.Engine
}

func NewRecommendationHandler(engine *recommend.Engine) *RecommendationHandler {
	return &RecommendationHandler{engine: engine}
}

func (h *RecommendationHandler) GetPersonalized(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	limit := c.QueryInt("limit", 10)
	candidates := h.engine.GetPersonalized(c.Context(), userID, limit)

	metrics.RecommendationsServed.WithLabelValues("personalized").Inc()
	for _, candidate := range candidates {
		metrics.RecommendationScore.Observe(candidate.Score)
	}

	return c.JSON(fiber.Map{
		"user_id":         userID,
		"recommendations": candidates,
		"count":           len(candidates),
	})
}

func (h *RecommendationHandler) GetTrending(c *fiber.Ctx) error {
	period := c.Query("period", "week")
	limit := c.QueryInt("limit", 10)

	candidates := h.engine.Trending(c.Context(), period, limit)
	metrics.RecommendationsServed.WithLabelValues("trending").Inc()

	return c.JSON(fiber.Map{
		"period":          period,
		"recommendations": candidates,
		"count":           len(candidates),
	})
}

func (h *RecommendationHandler) UpdateInterests(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	var req struct {
		Interests []string `json:"interests"`
	}
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if len(req.Interests) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Interests are required",
		})
	}

	if err := h.engine.UpdateUserInterests(c.Context(), userID, req.Interests); err != nil {
		logger.Error("Failed to update interests",
			zap.String("user_id", userID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update interests",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Interests updated",
		"user_id": userID,
	})
}
