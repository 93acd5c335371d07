package conversation

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtirumala2025/InvestX-Labs/internal/storage/models"
	"github.com/rtirumala2025/InvestX-Labs/pkg/config"
)

func newTestTracker() *Tracker {
	return NewTracker(config.ConversationConfig{ContextWindow: 10, SummaryLength: 200})
}

func turn(at time.Time, userText, assistantText string) (models.Message, models.Message) {
	return models.Message{Role: models.RoleUser, Content: userText, Timestamp: at},
		models.Message{Role: models.RoleAssistant, Content: assistantText, Timestamp: at.Add(time.Second)}
}

func TestGetOrCreate(t *testing.T) {
	tracker := newTestTracker()

	t.Run("same key returns same conversation", func(t *testing.T) {
		first := tracker.GetOrCreate("u1", "s1")
		second := tracker.GetOrCreate("u1", "s1")
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "u1", first.UserID)
		assert.Equal(t, "s1", first.SessionID)
	})

	t.Run("empty session id starts a fresh session", func(t *testing.T) {
		a := tracker.GetOrCreate("u1", "")
		b := tracker.GetOrCreate("u1", "")
		assert.NotEmpty(t, a.SessionID)
		assert.NotEqual(t, a.SessionID, b.SessionID)
		assert.NotEqual(t, a.ID, b.ID)
	})
}

func TestAppendTurn_AccumulatesMessages(t *testing.T) {
	tracker := newTestTracker()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	u1, a1 := turn(base, "what are stocks", "Stocks are shares of a company.")
	state, err := tracker.AppendTurn("u1", "s1", u1, a1)
	require.NoError(t, err)
	assert.Equal(t, 2, state.MessageCount)

	u2, a2 := turn(base.Add(time.Minute), "and bonds?", "Bonds are loans to companies or governments.")
	state, err = tracker.AppendTurn("u1", "s1", u2, a2)
	require.NoError(t, err)
	assert.Equal(t, 4, state.MessageCount)
	require.Len(t, state.Messages, 4)
	assert.Equal(t, "what are stocks", state.Messages[0].Content)
	assert.Equal(t, "and bonds?", state.Messages[2].Content)
}

// TestAppendTurn_RejectsCorruptUpdates checks every validation branch leaves
// prior state untouched and reports ErrCorruptUpdate.
func TestAppendTurn_RejectsCorruptUpdates(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		user      models.Message
		assistant models.Message
	}{
		{
			"wrong roles",
			models.Message{Role: models.RoleAssistant, Content: "hi", Timestamp: base},
			models.Message{Role: models.RoleUser, Content: "hello", Timestamp: base},
		},
		{
			"empty content",
			models.Message{Role: models.RoleUser, Content: "   ", Timestamp: base},
			models.Message{Role: models.RoleAssistant, Content: "hello", Timestamp: base},
		},
		{
			"missing timestamp",
			models.Message{Role: models.RoleUser, Content: "hi"},
			models.Message{Role: models.RoleAssistant, Content: "hello", Timestamp: base},
		},
		{
			"assistant before user",
			models.Message{Role: models.RoleUser, Content: "hi", Timestamp: base},
			models.Message{Role: models.RoleAssistant, Content: "hello", Timestamp: base.Add(-time.Second)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := newTestTracker()
			u, a := turn(base, "seed question", "Seed answer.")
			_, err := tracker.AppendTurn("u1", "s1", u, a)
			require.NoError(t, err)

			state, err := tracker.AppendTurn("u1", "s1", tt.user, tt.assistant)
			assert.ErrorIs(t, err, ErrCorruptUpdate)
			assert.Equal(t, 2, state.MessageCount, "rejected turn must not mutate state")
		})
	}
}

func TestAppendTurn_RejectsBackwardsTimestamps(t *testing.T) {
	tracker := newTestTracker()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	u1, a1 := turn(base, "first question", "First answer.")
	_, err := tracker.AppendTurn("u1", "s1", u1, a1)
	require.NoError(t, err)

	u2, a2 := turn(base.Add(-time.Hour), "time traveling", "Nope.")
	state, err := tracker.AppendTurn("u1", "s1", u2, a2)
	assert.ErrorIs(t, err, ErrCorruptUpdate)
	assert.Equal(t, 2, state.MessageCount)
}

func TestEnd_IsTerminal(t *testing.T) {
	tracker := newTestTracker()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	u1, a1 := turn(base, "what are stocks", "Stocks are shares.")
	_, err := tracker.AppendTurn("u1", "s1", u1, a1)
	require.NoError(t, err)

	ended := tracker.End("u1", "s1")
	assert.True(t, ended.Ended)

	u2, a2 := turn(base.Add(time.Minute), "one more", "Sorry.")
	state, err := tracker.AppendTurn("u1", "s1", u2, a2)
	assert.ErrorIs(t, err, ErrConversationEnded)
	assert.Equal(t, 2, state.MessageCount)

	// Ending twice is a no-op.
	assert.True(t, tracker.End("u1", "s1").Ended)
}

func TestContext_TopicVote(t *testing.T) {
	tracker := newTestTracker()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	u, a := turn(base, "how do stocks and shares work", "Stocks represent equity in a company.")
	state, err := tracker.AppendTurn("u1", "s1", u, a)
	require.NoError(t, err)
	assert.Equal(t, "stocks", state.Context.CurrentTopic)

	t.Run("no recognizable topic falls back to general", func(t *testing.T) {
		u, a := turn(base, "hello there", "Hi! How can I help?")
		state, err := tracker.AppendTurn("u2", "s1", u, a)
		require.NoError(t, err)
		assert.Equal(t, "general", state.Context.CurrentTopic)
	})

	t.Run("unknown conversation yields zero context", func(t *testing.T) {
		assert.Equal(t, DerivedContext{}, tracker.Context("ghost", "s1"))
	})
}

func TestContext_InterestExtraction(t *testing.T) {
	tracker := newTestTracker()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	u, a := turn(base, "I'm interested in index funds", "Great choice to start with.")
	state, err := tracker.AppendTurn("u1", "s1", u, a)
	require.NoError(t, err)
	assert.Contains(t, state.Context.UserInterests, "index funds")

	t.Run("assistant phrasing does not count", func(t *testing.T) {
		u, a := turn(base, "ok", "You might be interested in crypto speculation.")
		state, err := tracker.AppendTurn("u2", "s1", u, a)
		require.NoError(t, err)
		assert.Empty(t, state.Context.UserInterests)
	})
}

func TestContext_KeyPoints(t *testing.T) {
	tracker := newTestTracker()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	u, a := turn(base, "any advice",
		"Diversification spreads risk. Remember to start small. Markets move daily.")
	state, err := tracker.AppendTurn("u1", "s1", u, a)
	require.NoError(t, err)

	require.NotEmpty(t, state.Context.KeyPoints)
	assert.Contains(t, state.Context.KeyPoints[0], "Remember to start small")
}

// TestSummary_GeneratedPastTenMessages drives a conversation across the
// ten-message boundary and checks the summary appears only after it.
func TestSummary_GeneratedPastTenMessages(t *testing.T) {
	tracker := newTestTracker()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	var state State
	var err error
	for i := 0; i < 5; i++ {
		u, a := turn(base.Add(time.Duration(i)*time.Minute),
			"tell me about stocks and shares",
			"Stocks are equity. It is important to diversify.")
		state, err = tracker.AppendTurn("u1", "s1", u, a)
		require.NoError(t, err)
	}
	assert.Equal(t, 10, state.MessageCount)
	assert.Empty(t, state.Context.Summary, "no summary at exactly ten messages")

	u, a := turn(base.Add(6*time.Minute),
		"I'm interested in etfs too",
		"ETFs bundle many stocks. Remember fees matter.")
	state, err = tracker.AppendTurn("u1", "s1", u, a)
	require.NoError(t, err)

	assert.Equal(t, 12, state.MessageCount)
	require.NotEmpty(t, state.Context.Summary)
	assert.LessOrEqual(t, len(state.Context.Summary), 200)
	assert.True(t, strings.HasPrefix(state.Context.Summary, "Discussed "))
}

func TestSummarize_CapsLength(t *testing.T) {
	tracker := newTestTracker()

	dc := DerivedContext{
		CurrentTopic:  "stocks",
		UserInterests: []string{strings.Repeat("long interest ", 10), "etfs"},
		KeyPoints:     []string{strings.Repeat("an important point ", 10)},
	}

	summary := tracker.summarize(dc)
	assert.LessOrEqual(t, len(summary), 200)
	assert.True(t, strings.HasSuffix(summary, "..."))
}

func TestSummarize_MultibyteSafe(t *testing.T) {
	tracker := newTestTracker()

	dc := DerivedContext{
		CurrentTopic:  "stocks",
		UserInterests: []string{strings.Repeat("долгосрочные инвестиции ", 5)},
		KeyPoints:     []string{strings.Repeat("важно начинать с малого ", 10)},
	}

	summary := tracker.summarize(dc)
	assert.True(t, utf8.ValidString(summary))
	assert.LessOrEqual(t, utf8.RuneCountInString(summary), 200)
	assert.True(t, strings.HasSuffix(summary, "..."))
}

func TestSummarize_EmptyContext(t *testing.T) {
	tracker := newTestTracker()
	assert.Equal(t, "General investing conversation", tracker.summarize(DerivedContext{}))
}

func TestHistory_SnapshotIsolation(t *testing.T) {
	tracker := newTestTracker()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	u, a := turn(base, "what are stocks", "Stocks are shares.")
	_, err := tracker.AppendTurn("u1", "s1", u, a)
	require.NoError(t, err)

	history := tracker.History("u1", "s1")
	require.Len(t, history, 2)
	history[0].Content = "mutated"

	again := tracker.History("u1", "s1")
	assert.Equal(t, "what are stocks", again[0].Content)

	t.Run("unknown conversation", func(t *testing.T) {
		assert.Nil(t, tracker.History("ghost", "s1"))
	})
}

func TestDominantTopic_TieResolvesToEarlierTopic(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleUser, Content: "stock or bond"},
	}
	// One keyword hit each; stocks is listed before bonds.
	assert.Equal(t, "stocks", dominantTopic(messages))
}

func TestExtractInterests_CapAndDedupe(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleUser, Content: "I'm interested in stocks and I'm curious about bonds"},
		{Role: models.RoleUser, Content: "still interested in stocks and I love etf funds today"},
		{Role: models.RoleUser, Content: "I enjoy market news, want to learn about retirement accounts now"},
		{Role: models.RoleUser, Content: "fascinated by compound interest growth"},
	}

	interests := extractInterests(messages)
	assert.LessOrEqual(t, len(interests), 5)

	seen := make(map[string]struct{})
	for _, interest := range interests {
		_, dup := seen[interest]
		assert.False(t, dup, "interest %q extracted twice", interest)
		seen[interest] = struct{}{}
	}
}
