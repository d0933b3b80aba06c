package frontmatter

import (
	"regexp"
	"strings"
	"unicode"
)

const zwj = 0x200D

// EmojiRule maps a topic keyword to its symbol. Keywords match at the start
// of a word, case-insensitively, so "tech" matches "Technology".
type EmojiRule struct {
	Keyword string
	Symbol  string
}

// FallbackEmoji decorates titles that match no rule.
const FallbackEmoji = "✨"

// DefaultEmojiRules is searched in order; the first match wins.
var DefaultEmojiRules = []EmojiRule{
	{"tech", "💻"},
	{"software", "💻"},
	{"programming", "💻"},
	{"code", "💻"},
	{"artificial intelligence", "🤖"},
	{"machine learning", "🤖"},
	{"robot", "🤖"},
	{"writing", "✍️"},
	{"book", "📚"},
	{"business", "💼"},
	{"startup", "💼"},
	{"finance", "💰"},
	{"money", "💰"},
	{"marketing", "📈"},
	{"health", "🏥"},
	{"fitness", "💪"},
	{"science", "🔬"},
	{"space", "🚀"},
	{"education", "🎓"},
	{"learning", "🎓"},
	{"travel", "✈️"},
	{"food", "🍳"},
	{"music", "🎵"},
	{"painting", "🎨"},
	{"design", "🎨"},
	{"game", "🎮"},
	{"sport", "⚽"},
	{"nature", "🌿"},
	{"climate", "🌍"},
	{"environment", "🌍"},
	{"security", "🔒"},
	{"data", "📊"},
	{"productivity", "⏱️"},
	{"history", "📜"},
	{"photo", "📷"},
}

type emojiMatcher struct {
	rules    []EmojiRule
	patterns []*regexp.Regexp
	fallback string
}

func newEmojiMatcher(rules []EmojiRule, fallback string) *emojiMatcher {
	m := &emojiMatcher{rules: rules, fallback: fallback}
	for _, r := range rules {
		m.patterns = append(m.patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(r.Keyword)))
	}
	return m
}

// pick checks tags in order, then the prompt, then falls back.
func (m *emojiMatcher) pick(tags []string, prompt string) string {
	for _, tag := range tags {
		for i, p := range m.patterns {
			if p.MatchString(tag) {
				return m.rules[i].Symbol
			}
		}
	}
	prompt = strings.ToLower(prompt)
	for i, p := range m.patterns {
		if p.MatchString(prompt) {
			return m.rules[i].Symbol
		}
	}
	return m.fallback
}

// decorated reports whether title already starts with an emoji token: a run
// of symbols, possibly joined or modified, followed by a space.
func (m *emojiMatcher) decorated(title string) bool {
	if strings.HasPrefix(title, m.fallback+" ") {
		return true
	}
	token, _, ok := strings.Cut(title, " ")
	if !ok || token == "" {
		return false
	}
	for i, r := range token {
		switch {
		case unicode.Is(unicode.So, r):
		case i == 0:
			return false
		case r == zwj, r == 0xFE0E, r == 0xFE0F, r == 0x20E3,
			unicode.Is(unicode.Sk, r) && r > unicode.MaxLatin1:
		default:
			return false
		}
	}
	return true
}

// decorate prefixes title with the chosen symbol unless it already has one.
func (m *emojiMatcher) decorate(title string, tags []string, prompt string) string {
	if m.decorated(title) {
		return title
	}
	return m.pick(tags, prompt) + " " + title
}
