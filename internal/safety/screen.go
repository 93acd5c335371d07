// Package safety provides keyword-based screening of inbound queries. This
// is deliberately simple screening, not a moderation system; anything beyond
// pattern tables belongs to an upstream classifier.
package safety

import (
	"regexp"
	"strings"
)

// Category labels for flagged content.
const (
	CategoryFinancialAdvice = "financial_advice"
	CategoryScam            = "scam"
	CategoryPersonalInfo    = "personal_info"
	CategoryInappropriate   = "inappropriate"
)

// PatternTable maps a category to its detection patterns. Tables are data,
// so deployments can extend them without code changes.
type PatternTable map[string][]string

// DefaultPatterns covers solicitation of financial advice, scam phrasing,
// personal-information requests and age-inappropriate topics.
func DefaultPatterns() PatternTable {
	return PatternTable{
		CategoryFinancialAdvice: {
			`you should (buy|sell|invest in)`,
			`i recommend (buying|selling|investing in)`,
			`guaranteed (return|profit|gain)`,
			`risk-free (investment|return)`,
			`get rich quick`,
			`make money fast`,
			`insider (tip|information)`,
			`can't lose`,
		},
		CategoryScam: {
			`send (money|cash|bitcoin)`,
			`wire (money|funds)`,
			`urgent (investment|opportunity)`,
			`limited time (offer|deal)`,
			`act now or (lose|miss)`,
			`double your (money|investment)`,
			`free (money|investment)`,
			`click here to (invest|earn)`,
		},
		CategoryPersonalInfo: {
			`what's your (name|address|phone|email)`,
			`give me your (social security|ssn|credit card)`,
			`what's your (bank account|routing number)`,
			`tell me your (password|pin|code)`,
		},
		CategoryInappropriate: {
			`(gambling|betting|casino)`,
			`(illegal|unlawful|criminal)`,
			`adults only`,
			`not for kids`,
		},
	}
}

// ScreenResult reports whether text passed screening and which categories
// and patterns matched.
type ScreenResult struct {
	Safe       bool
	Categories []string
	Matched    []string
}

// Screener compiles pattern tables once and screens text without further
// allocation of regexps. It is safe for concurrent use.
type Screener struct {
	compiled map[string][]*regexp.Regexp
}

func NewScreener(table PatternTable) *Screener {
	compiled := make(map[string][]*regexp.Regexp, len(table))
	for category, patterns := range table {
		for _, p := range patterns {
			re, err := regexp.Compile(`(?i)` + p)
			if err != nil {
				continue
			}
			compiled[category] = append(compiled[category], re)
		}
	}
	return &Screener{compiled: compiled}
}

// Screen checks text against every category table.
func (s *Screener) Screen(text string) ScreenResult {
	result := ScreenResult{Safe: true}
	lowered := strings.ToLower(text)

	for category, patterns := range s.compiled {
		for _, re := range patterns {
			if re.MatchString(lowered) {
				result.Safe = false
				result.Matched = append(result.Matched, re.String())
				if !contains(result.Categories, category) {
					result.Categories = append(result.Categories, category)
				}
			}
		}
	}

	return result
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
