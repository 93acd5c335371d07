package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/rtirumala2025/InvestX-Labs/internal/ingestion"
	"github.com/rtirumala2025/InvestX-Labs/pkg/logger"
)

type ContentHandler struct {
	processor *ingestion.Processor
}

func NewContentHandler(processor *ingestion.Processor) *ContentHandler {
	return &ContentHandler{processor: processor}
}

func (h *ContentHandler) UploadContent(c *fiber.Ctx) error {
	var req struct {
		URL         string `json:"url"`
		HTMLContent string `json:"html_content"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.URL == "" || req.HTMLContent == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "URL and HTML content are required",
		})
	}

	item, err := h.processor.ProcessContent(c.Context(), req.URL, req.HTMLContent)
	if err != nil {
		logger.Error("Failed to process content", zap.Error(err))
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Failed to process content",
		})
	}

	return c.JSON(fiber.Map{
		"message":    "Content processed successfully",
		"content_id": item.ID,
		"category":   item.Category,
		"difficulty": item.DifficultyLevel,
	})
}
