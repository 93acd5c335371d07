package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/rtirumala2025/InvestX-Labs/internal/conversation"
	"github.com/rtirumala2025/InvestX-Labs/internal/metrics"
	"github.com/rtirumala2025/InvestX-Labs/internal/safety"
	"github.com/rtirumala2025/InvestX-Labs/internal/storage/models"
	"github.com/rtirumala2025/InvestX-Labs/internal/storage/sqlite"
	"github.com/rtirumala2025/InvestX-Labs/pkg/logger"
)

type ConversationHandler struct {
	tracker  *conversation.Tracker
	screener *safety.Screener
	db       *sqlite.Client
}

func NewConversationHandler(tracker *conversation.Tracker, screener *safety.Screener, db *sqlite.Client) *ConversationHandler {
	return &ConversationHandler{
		tracker:  tracker,
		screener: screener,
		db:       db,
	}
}

// AppendTurn records one completed user/assistant exchange posted by the
// generation layer after it responds.
func (h *ConversationHandler) AppendTurn(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	sessionID := c.Params("session_id")
	if userID == "" || sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id and session_id are required",
		})
	}

	var req struct {
		Message      string     `json:"message"`
		Response     string     `json:"response"`
		MessageTime  *time.Time `json:"message_time"`
		ResponseTime *time.Time `json:"response_time"`
	}
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	now := time.Now().UTC()
	messageTime, responseTime := now, now
	if req.MessageTime != nil {
		messageTime = *req.MessageTime
	}
	if req.ResponseTime != nil {
		responseTime = *req.ResponseTime
	}

	screen := h.screener.Screen(req.Message)
	if !screen.Safe {
		for _, category := range screen.Categories {
			metrics.SafetyScreenHits.WithLabelValues(category).Inc()
		}
	}

	state, err := h.tracker.AppendTurn(userID, sessionID,
		models.Message{Role: models.RoleUser, Content: req.Message, Timestamp: messageTime},
		models.Message{Role: models.RoleAssistant, Content: req.Response, Timestamp: responseTime},
	)
	if err != nil {
		metrics.ConversationTurnsTotal.WithLabelValues("rejected").Inc()
		switch {
		case errors.Is(err, conversation.ErrConversationEnded):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Conversation has ended",
			})
		case errors.Is(err, conversation.ErrCorruptUpdate):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Rejected malformed or out-of-order turn",
			})
		default:
			logger.Error("Failed to append turn", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to append turn",
			})
		}
	}
	metrics.ConversationTurnsTotal.WithLabelValues("ok").Inc()

	// Feed the engagement history that recommendation scoring reads.
	if err := h.db.RecordEngagement(c.Context(), userID, req.Message); err != nil {
		logger.Warn("Failed to record engagement",
			zap.String("user_id", userID), zap.Error(err))
	}

	return c.JSON(fiber.Map{
		"conversation_id": state.ID,
		"message_count":   state.MessageCount,
		"context":         state.Context,
		"flagged":         !screen.Safe,
	})
}

func (h *ConversationHandler) GetContext(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	sessionID := c.Params("session_id")
	if userID == "" || sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id and session_id are required",
		})
	}

	return c.JSON(fiber.Map{
		"user_id":    userID,
		"session_id": sessionID,
		"context":    h.tracker.Context(userID, sessionID),
	})
}

func (h *ConversationHandler) End(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	sessionID := c.Params("session_id")
	if userID == "" || sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id and session_id are required",
		})
	}

	state := h.tracker.End(userID, sessionID)
	return c.JSON(fiber.Map{
		"conversation_id": state.ID,
		"ended":           state.Ended,
		"summary":         state.Context.Summary,
	})
}
