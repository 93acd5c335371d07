package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/rtirumala2025/InvestX-Labs/internal/contextagg"
	"github.com/rtirumala2025/InvestX-Labs/internal/conversation"
	"github.com/rtirumala2025/InvestX-Labs/internal/storage/sqlite"
	"github.com/rtirumala2025/InvestX-Labs/pkg/logger"
)

// WebSocketHandler streams context bundles to chat clients as the user
// types questions, so the generation layer on the other side of the socket
// can prompt with fresh retrieval.
type WebSocketHandler struct {
	aggregator *contextagg.Aggregator
	tracker    *conversation.Tracker
	db         *sqlite.Client
}

func NewWebSocketHandler(aggregator *contextagg.Aggregator, tracker *conversation.Tracker, db *sqlite.Client) *WebSocketHandler {
	return &WebSocketHandler{
		aggregator: aggregator,
		tracker:    tracker,
		db:         db,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type        string `json:"type"`
			Content     string `json:"content"`
			UserID      string `json:"user_id"`
			SessionID   string `json:"session_id"`
			ContextType string `json:"context_type"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Error("Failed to read WebSocket message", zap.Error(err))
			break
		}

		if msg.Type != "query" {
			continue
		}

		logger.Info("Processing WebSocket query", zap.String("query", msg.Content))

		err = h.streamContext(c, msg.Content, msg.UserID, msg.SessionID, msg.ContextType)
		if err != nil {
			logger.Error("Failed to stream context", zap.Error(err))
			h.sendError(c, "Failed to retrieve context")
		}
	}
}

func (h *WebSocketHandler) streamContext(c *websocket.Conn, query, userID, sessionID, contextType string) error {
	ctx := context.Background()

	if contextType == "" {
		contextType = contextagg.TypeAll
	}

	h.sendChunk(c, "status", "Retrieving context...")

	profile, err := h.db.GetUserProfile(ctx, userID)
	if err != nil || (profile != nil && profile.Validate() != nil) {
		profile = nil
	}
	history := h.tracker.History(userID, sessionID)

	bundle, err := h.aggregator.RetrieveContext(ctx, query, profile, history, contextType)
	if err != nil {
		return err
	}

	words := splitIntoWords(bundle.FormatForPrompt())
	for i, word := range words {
		chunk := word
		if i < len(words)-1 {
			chunk += " "
		}

		if err := h.sendChunk(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return c.WriteJSON(map[string]interface{}{
		"type":           "complete",
		"context_type":   bundle.ContextType,
		"educational":    len(bundle.Educational),
		"market":         len(bundle.MarketData),
		"news":           len(bundle.NewsArticles),
		"related_topics": bundle.RelatedTopics,
	})
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	msg := map[string]interface{}{
		"type":    msgType,
		"content": content,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	c.WriteJSON(msg)
}

func splitIntoWords(text string) []string {
	words := []string{}
	currentWord := ""

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if currentWord != "" {
				words = append(words, currentWord)
				currentWord = ""
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			currentWord += string(char)
		}
	}

	if currentWord != "" {
		words = append(words, currentWord)
	}

	return words
}
