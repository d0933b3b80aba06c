package article

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/TobiSchelling/autoblog/internal/llm"
)

// DefaultEmoji is used when no suggestion can be obtained.
const DefaultEmoji = "✨📝"

const maxEmojiRunes = 12

// Suggester asks the model for a short run of emoji for a cover image.
// Failures never abort a round; they degrade to the fallback pair.
type Suggester struct {
	provider llm.Provider
	fallback string
	logger   *zap.Logger
}

// NewSuggester creates a suggester. An empty fallback means DefaultEmoji.
func NewSuggester(provider llm.Provider, fallback string, logger *zap.Logger) *Suggester {
	if fallback == "" {
		fallback = DefaultEmoji
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Suggester{provider: provider, fallback: fallback, logger: logger}
}

// Suggest returns the model's emoji for title, or the fallback.
func (s *Suggester) Suggest(ctx context.Context, title string, tags []string) string {
	text, err := s.suggest(ctx, title, tags)
	if err != nil {
		s.logger.Warn("using default emoji", zap.Error(err))
		return s.fallback
	}
	return text
}

func (s *Suggester) suggest(ctx context.Context, title string, tags []string) (string, error) {
	if s.provider == nil {
		return "", fmt.Errorf("%w: no provider", ErrEmojiSuggestionFailed)
	}
	resp, err := s.provider.Generate(ctx, llm.Request{
		Prompt:      fmt.Sprintf(emojiPrompt, title, strings.Join(tags, ", ")),
		MaxTokens:   32,
		Temperature: 0.5,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEmojiSuggestionFailed, err)
	}
	symbols := keepSymbols(resp)
	if symbols == "" {
		return "", fmt.Errorf("%w: response had no symbols: %q", ErrEmojiSuggestionFailed, resp)
	}
	return symbols, nil
}

// keepSymbols keeps symbol characters plus the joiners and modifiers that
// compose multi-rune emoji.
func keepSymbols(s string) string {
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n >= maxEmojiRunes {
			break
		}
		switch {
		case unicode.Is(unicode.So, r), unicode.Is(unicode.Sk, r) && r > unicode.MaxLatin1:
		case r == 0x200D, r == 0xFE0F:
			if b.Len() == 0 {
				continue
			}
		default:
			continue
		}
		b.WriteRune(r)
		n++
	}
	return strings.TrimRight(b.String(), "\u200d")
}
