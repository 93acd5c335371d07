package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/rtirumala2025/InvestX-Labs/internal/contextagg"
	"github.com/rtirumala2025/InvestX-Labs/internal/conversation"
	"github.com/rtirumala2025/InvestX-Labs/internal/metrics"
	"github.com/rtirumala2025/InvestX-Labs/internal/storage/sqlite"
	"github.com/rtirumala2025/InvestX-Labs/pkg/logger"
)

type ContextHandler struct {
	aggregator *contextagg.Aggregator
	tracker    *conversation.Tracker
	db         *sqlite.Client
}

func NewContextHandler(aggregator *contextagg.Aggregator, tracker *conversation.Tracker, db *sqlite.Client) *ContextHandler {
	return &ContextHandler{
		aggregator: aggregator,
		tracker:    tracker,
		db:         db,
	}
}

func (h *ContextHandler) RetrieveContext(c *fiber.Ctx) error {
	var req struct {
		Query       string `json:"query"`
		UserID      string `json:"user_id"`
		SessionID   string `json:"session_id"`
		ContextType string `json:"context_type"`
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
	if req.ContextType == "" {
		req.ContextType = contextagg.TypeAll
	}

	profile, err := h.db.GetUserProfile(c.Context(), req.UserID)
	if err != nil {
		logger.Warn("Failed to load profile for context request",
			zap.String("user_id", req.UserID), zap.Error(err))
		profile = nil
	}
	if profile != nil && profile.Validate() != nil {
		profile = nil
	}

	history := h.tracker.History(req.UserID, req.SessionID)

	start := time.Now()
	bundle, err := h.aggregator.RetrieveContext(c.Context(), req.Query, profile, history, req.ContextType)
	metrics.ContextDuration.WithLabelValues(req.ContextType).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, contextagg.ErrAllSourcesUnavailable) {
			logger.Error("All context sources unavailable", zap.String("query", req.Query))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Context sources are temporarily unavailable",
			})
		}
		logger.Error("Failed to retrieve context", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve context",
		})
	}

	return c.JSON(fiber.Map{
		"context":   bundle,
		"formatted": bundle.FormatForPrompt(),
	})
}
