package conversation

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/rtirumala2025/InvestX-Labs/internal/metrics"
	"github.com/rtirumala2025/InvestX-Labs/internal/storage/models"
	"github.com/rtirumala2025/InvestX-Labs/pkg/config"
	"github.com/rtirumala2025/InvestX-Labs/pkg/logger"
)

var (
	// ErrConversationEnded rejects updates to a conversation that was
	// explicitly ended. The transition is irreversible.
	ErrConversationEnded = errors.New("conversation has ended")

	// ErrCorruptUpdate rejects out-of-order or malformed turns. Prior state
	// is retained untouched.
	ErrCorruptUpdate = errors.New("corrupt conversation update")
)

// DerivedContext is recomputed from the recent window after every turn.
type DerivedContext struct {
	CurrentTopic  string   `json:"current_topic"`
	UserInterests []string `json:"user_interests"`
	KeyPoints     []string `json:"key_points"`
	Summary       string   `json:"summary"`
}

// State is a snapshot of one conversation. Messages are append-only with
// non-decreasing timestamps.
type State struct {
	ID           string           `json:"id"`
	UserID       string           `json:"user_id"`
	SessionID    string           `json:"session_id"`
	Messages     []models.Message `json:"messages"`
	MessageCount int              `json:"message_count"`
	Context      DerivedContext   `json:"context"`
	CreatedAt    time.Time        `json:"created_at"`
	LastUpdated  time.Time        `json:"last_updated"`
	Ended        bool             `json:"ended"`
}

type entry struct {
	mu    sync.Mutex
	state State
}

// Tracker holds rolling per-session dialogue state keyed by
// (user_id, session_id). Updates for the same conversation are serialized;
// different conversations never contend.
type Tracker struct {
	mu            sync.Mutex
	conversations map[string]*entry

	contextWindow int
	summaryLength int
}

func NewTracker(cfg config.ConversationConfig) *Tracker {
	window := cfg.ContextWindow
	if window <= 0 {
		window = 10
	}
	summaryLength := cfg.SummaryLength
	if summaryLength <= 0 {
		summaryLength = 200
	}
	return &Tracker{
		conversations: make(map[string]*entry),
		contextWindow: window,
		summaryLength: summaryLength,
	}
}

// GetOrCreate returns the conversation for (user_id, session_id), creating
// it on first use. An empty session id starts a fresh session.
func (t *Tracker) GetOrCreate(userID, sessionID string) State {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return t.lookup(userID, sessionID).snapshotLocked()
}

func (t *Tracker) lookup(userID, sessionID string) *entry {
	key := userID + ":" + sessionID

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.conversations[key]
	if !ok {
		now := time.Now().UTC()
		e = &entry{state: State{
			ID:          uuid.NewString(),
			UserID:      userID,
			SessionID:   sessionID,
			CreatedAt:   now,
			LastUpdated: now,
		}}
		t.conversations[key] = e
		metrics.ConversationsActive.Inc()
		logger.Info("Conversation created",
			zap.String("user_id", userID), zap.String("session_id", sessionID))
	}
	return e
}

func (e *entry) snapshotLocked() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

// snapshot copies the state so callers never alias tracker internals.
// Caller holds e.mu.
func (e *entry) snapshot() State {
	s := e.state
	s.Messages = append([]models.Message(nil), e.state.Messages...)
	s.Context.UserInterests = append([]string(nil), e.state.Context.UserInterests...)
	s.Context.KeyPoints = append([]string(nil), e.state.Context.KeyPoints...)
	return s
}

// AppendTurn appends one user/assistant exchange. Turns alternate strictly
// and timestamps must not go backwards; a violation leaves prior state
// intact and returns ErrCorruptUpdate.
func (t *Tracker) AppendTurn(userID, sessionID string, userMsg, assistantMsg models.Message) (State, error) {
	e := t.lookup(userID, sessionID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Ended {
		return e.snapshot(), ErrConversationEnded
	}

	if err := validateTurn(e.state.Messages, userMsg, assistantMsg); err != nil {
		logger.Warn("Rejected conversation update",
			zap.String("user_id", userID),
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return e.snapshot(), fmt.Errorf("%w: %v", ErrCorruptUpdate, err)
	}

	e.state.Messages = append(e.state.Messages, userMsg, assistantMsg)
	e.state.MessageCount = len(e.state.Messages)
	e.state.LastUpdated = time.Now().UTC()

	t.recomputeContext(&e.state)

	return e.snapshot(), nil
}

// End marks the conversation terminal. Further AppendTurn calls fail.
func (t *Tracker) End(userID, sessionID string) State {
	e := t.lookup(userID, sessionID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.Ended {
		e.state.Ended = true
		e.state.LastUpdated = time.Now().UTC()
		metrics.ConversationsActive.Dec()
		logger.Info("Conversation ended",
			zap.String("user_id", userID), zap.String("session_id", sessionID))
	}
	return e.snapshot()
}

// Context returns the derived context for a conversation, or the zero value
// if it does not exist yet.
func (t *Tracker) Context(userID, sessionID string) DerivedContext {
	key := userID + ":" + sessionID

	t.mu.Lock()
	e, ok := t.conversations[key]
	t.mu.Unlock()
	if !ok {
		return DerivedContext{}
	}
	return e.snapshotLocked().Context
}

// History returns the message sequence for handing to the context
// aggregator.
func (t *Tracker) History(userID, sessionID string) []models.Message {
	key := userID + ":" + sessionID

	t.mu.Lock()
	e, ok := t.conversations[key]
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return e.snapshotLocked().Messages
}

func validateTurn(existing []models.Message, userMsg, assistantMsg models.Message) error {
	if userMsg.Role != models.RoleUser || assistantMsg.Role != models.RoleAssistant {
		return fmt.Errorf("turn must be a user message followed by an assistant message")
	}
	if strings.TrimSpace(userMsg.Content) == "" || strings.TrimSpace(assistantMsg.Content) == "" {
		return fmt.Errorf("empty message content")
	}
	if userMsg.Timestamp.IsZero() || assistantMsg.Timestamp.IsZero() {
		return fmt.Errorf("missing message timestamp")
	}
	if assistantMsg.Timestamp.Before(userMsg.Timestamp) {
		return fmt.Errorf("assistant timestamp precedes user timestamp")
	}
	if len(existing) > 0 {
		last := existing[len(existing)-1]
		if userMsg.Timestamp.Before(last.Timestamp) {
			return fmt.Errorf("turn timestamp precedes last message")
		}
	}
	return nil
}

// recomputeContext refreshes the derived fields from the recent window.
// Summary generation only kicks in past ten messages.
func (t *Tracker) recomputeContext(s *State) {
	recent := s.Messages
	if len(recent) > t.contextWindow {
		recent = recent[len(recent)-t.contextWindow:]
	}

	s.Context.CurrentTopic = dominantTopic(recent)
	s.Context.UserInterests = extractInterests(recent)
	s.Context.KeyPoints = extractKeyPoints(recent)

	if s.MessageCount > 10 {
		s.Context.Summary = t.summarize(s.Context)
	} else {
		s.Context.Summary = ""
	}
}

// topicLexicon maps taxonomy topics to their trigger words. Order matters:
// vote ties resolve to the earlier topic.
var topicLexicon = []struct {
	topic    string
	keywords []string
}{
	{"stocks", []string{"stock", "stocks", "share", "shares", "equity", "equities"}},
	{"bonds", []string{"bond", "bonds", "fixed income", "treasury", "corporate bond"}},
	{"etfs", []string{"etf", "etfs", "exchange traded fund", "index fund"}},
	{"portfolio", []string{"portfolio", "diversification", "asset allocation", "balance"}},
	{"risk", []string{"risk", "risky", "safe", "volatility", "uncertainty"}},
	{"savings", []string{"save", "saving", "savings", "budget", "budgeting"}},
	{"retirement", []string{"retirement", "401k", "ira", "pension", "future"}},
	{"market", []string{"market", "trading", "buy", "sell", "price", "value"}},
	{"education", []string{"learn", "learning", "understand", "explain", "teach"}},
}

// dominantTopic runs a keyword-frequency vote over the recent window.
func dominantTopic(messages []models.Message) string {
	if len(messages) == 0 {
		return ""
	}

	recent := messages
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	var parts []string
	for _, msg := range recent {
		parts = append(parts, msg.Content)
	}
	text := strings.ToLower(strings.Join(parts, " "))

	best := "general"
	bestScore := 0
	for _, candidate := range topicLexicon {
		score := 0
		for _, keyword := range candidate.keywords {
			if strings.Contains(text, keyword) {
				score++
			}
		}
		if score > bestScore {
			best = candidate.topic
			bestScore = score
		}
	}
	return best
}

var interestPhrases = []string{
	"interested in", "want to learn about", "curious about",
	"like", "love", "enjoy", "fascinated by", "want to know more about",
}

// extractInterests pulls the few words following an interest phrase in user
// messages. First occurrence wins, capped at five.
func extractInterests(messages []models.Message) []string {
	var interests []string
	seen := make(map[string]struct{})

	for _, msg := range messages {
		if msg.Role != models.RoleUser {
			continue
		}
		content := strings.ToLower(msg.Content)
		for _, phrase := range interestPhrases {
			idx := strings.Index(content, phrase)
			if idx < 0 {
				continue
			}
			rest := strings.Fields(content[idx+len(phrase):])
			if len(rest) > 3 {
				rest = rest[:3]
			}
			topic := strings.Trim(strings.Join(rest, " "), ".,!?")
			if topic == "" {
				continue
			}
			if _, dup := seen[topic]; dup {
				continue
			}
			seen[topic] = struct{}{}
			interests = append(interests, topic)
			if len(interests) == 5 {
				return interests
			}
		}
	}
	return interests
}

var emphasisMarkers = []string{"important", "key", "remember", "note"}

// extractKeyPoints keeps assistant sentences carrying an emphasis marker,
// capped at five.
func extractKeyPoints(messages []models.Message) []string {
	var points []string
	for _, msg := range messages {
		if msg.Role != models.RoleAssistant {
			continue
		}
		if !containsMarker(strings.ToLower(msg.Content)) {
			continue
		}
		for _, sentence := range splitSentences(msg.Content) {
			if containsMarker(strings.ToLower(sentence)) {
				points = append(points, strings.TrimSpace(sentence))
				if len(points) == 5 {
					return points
				}
			}
		}
	}
	return points
}

func containsMarker(text string) bool {
	for _, marker := range emphasisMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// splitSentences uses prose's segmenter so abbreviations and decimals do not
// produce spurious breaks. Falls back to a period split if the document
// fails to parse.
func splitSentences(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return strings.Split(text, ".")
	}

	sentences := doc.Sentences()
	out := make([]string, 0, len(sentences))
	for _, s := range sentences {
		out = append(out, s.Text)
	}
	return out
}

// summarize renders topic, top interests and the first key point into a
// single capped line.
func (t *Tracker) summarize(dc DerivedContext) string {
	var parts []string

	if dc.CurrentTopic != "" && dc.CurrentTopic != "general" {
		parts = append(parts, "Discussed "+dc.CurrentTopic)
	}
	if len(dc.UserInterests) > 0 {
		top := dc.UserInterests
		if len(top) > 2 {
			top = top[:2]
		}
		parts = append(parts, "User interested in "+strings.Join(top, ", "))
	}
	if len(dc.KeyPoints) > 0 {
		point := dc.KeyPoints[0]
		if r := []rune(point); len(r) > 100 {
			point = string(r[:100])
		}
		parts = append(parts, "Key points: "+point+"...")
	}

	summary := strings.Join(parts, ". ")
	if summary == "" {
		summary = "General investing conversation"
	}
	if r := []rune(summary); len(r) > t.summaryLength {
		summary = string(r[:t.summaryLength-3]) + "..."
	}
	return summary
}
