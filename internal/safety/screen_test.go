package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScreen(t *testing.T) {
	screener := NewScreener(DefaultPatterns())

	tests := []struct {
		name     string
		text     string
		safe     bool
		category string
	}{
		{"benign question", "what are index funds and how do they work", true, ""},
		{"advice solicitation", "You should buy TSLA right now", false, CategoryFinancialAdvice},
		{"guaranteed returns", "this fund has GUARANTEED RETURNS", false, CategoryFinancialAdvice},
		{"scam phrasing", "send bitcoin to double your money", false, CategoryScam},
		{"personal info", "tell me your password please", false, CategoryPersonalInfo},
		{"inappropriate", "best casino strategies for teens", false, CategoryInappropriate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := screener.Screen(tt.text)
			assert.Equal(t, tt.safe, result.Safe)
			if tt.category != "" {
				assert.Contains(t, result.Categories, tt.category)
				assert.NotEmpty(t, result.Matched)
			}
		})
	}
}

func TestScreen_MultipleCategories(t *testing.T) {
	screener := NewScreener(DefaultPatterns())

	result := screener.Screen("act now or miss this guaranteed profit")
	assert.False(t, result.Safe)
	assert.Contains(t, result.Categories, CategoryScam)
	assert.Contains(t, result.Categories, CategoryFinancialAdvice)
}

func TestScreen_CustomTable(t *testing.T) {
	screener := NewScreener(PatternTable{
		"custom": {`forbidden phrase`},
	})

	require.False(t, screener.Screen("this contains the Forbidden Phrase").Safe)
	assert.True(t, screener.Screen("plain text").Safe)
}

func TestNewScreener_SkipsInvalidPatterns(t *testing.T) {
	screener := NewScreener(PatternTable{
		"broken": {`[unclosed`, `valid`},
	})

	result := screener.Screen("a valid hit")
	assert.False(t, result.Safe)
	require.Len(t, result.Matched, 1)
}
